package oddsfeed

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/models"
)

const (
	testBaseURL   = "https://statpal.test/api/v1/horse-racing"
	testAccessKey = "sk-test-123"
)

func testHTTPConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           time.Second,
		MaxRetries:        2,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      2 * time.Millisecond,
		RateLimit:         1000,
		CircuitBreakerMax: 3,
		CircuitCooldown:   time.Minute,
	}
}

func newTestClient(t *testing.T, limit int) (*StatPalClient, *httpmock.MockTransport, *QuotaTracker) {
	t.Helper()

	httpClient := NewRateLimitedHTTPClient(testHTTPConfig(), nil)
	transport := httpmock.NewMockTransport()
	httpClient.HTTPClient().Transport = transport

	quota := NewQuotaTracker(NewMemoryQuotaStore(), limit, time.UTC, nil)
	client := NewStatPalClient(httpClient, quota, testBaseURL, testAccessKey, nil)
	return client, transport, quota
}

func TestStatPalFetchOdds(t *testing.T) {
	client, transport, quota := newTestClient(t, 100)

	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-42",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, testAccessKey, req.URL.Query().Get("access_key"))
			return httpmock.NewStringResponse(http.StatusOK, `{
				"race_id": "R-42",
				"horses": [
					{"number": "3", "name": "Gate Crasher", "win_odds": "9/2", "pool": 1520.5},
					{"number": 1, "name": "Morning Glory", "win_odds": "5/1"},
					{"number": "2", "name": "Scratched Sam", "win_odds": "SCR"},
					{"number": "4", "name": "Even Steven", "win_odds": "EVN"}
				]
			}`), nil
		})

	odds, err := client.FetchOdds(context.Background(), "R-42", models.Interval5MinBefore)
	require.NoError(t, err)

	require.Len(t, odds.Runners, 3)
	assert.Equal(t, 1, odds.Runners[0].ProgramNumber)
	assert.InDelta(t, 6.0, odds.Runners[0].DecimalOdds, 1e-9)
	assert.Equal(t, 3, odds.Runners[1].ProgramNumber)
	assert.InDelta(t, 5.5, odds.Runners[1].DecimalOdds, 1e-9)
	require.NotNil(t, odds.Runners[1].PoolSize)
	assert.InDelta(t, 1520.5, *odds.Runners[1].PoolSize, 1e-9)
	assert.Equal(t, 4, odds.Runners[2].ProgramNumber)
	assert.InDelta(t, 2.0, odds.Runners[2].DecimalOdds, 1e-9)

	require.Len(t, odds.Malformed, 1)
	assert.Equal(t, "2", odds.Malformed[0].Number)
	assert.Equal(t, "SCR", odds.Malformed[0].Raw)

	status, err := quota.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Used)
}

func TestStatPalEmptyBoardIsNotAnError(t *testing.T) {
	client, transport, _ := newTestClient(t, 100)
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-7",
		httpmock.NewStringResponder(http.StatusOK, `{"race_id":"R-7","horses":[{"number":"1","win_odds":"SCR"}]}`))

	odds, err := client.FetchOdds(context.Background(), "R-7", models.Interval1MinBefore)
	require.NoError(t, err)
	assert.Equal(t, "R-7", odds.ExternalRaceID)
	assert.Empty(t, odds.Runners)
	assert.Len(t, odds.Malformed, 1)
}

func TestStatPalQuotaExceededMakesNoRequest(t *testing.T) {
	client, transport, _ := newTestClient(t, 1)
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-1",
		httpmock.NewStringResponder(http.StatusOK, `{"horses":[{"number":1,"win_odds":"2/1"}]}`))

	_, err := client.FetchOdds(context.Background(), "R-1", models.Interval10MinBefore)
	require.NoError(t, err)

	_, err = client.FetchOdds(context.Background(), "R-1", models.Interval5MinBefore)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestStatPalRetriesThenUnavailable(t *testing.T) {
	client, transport, _ := newTestClient(t, 100)
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-9",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	_, err := client.FetchOdds(context.Background(), "R-9", models.IntervalAtPost)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	var feedErr *FeedError
	require.True(t, errors.As(err, &feedErr))
	assert.Equal(t, ErrCodeServerError, feedErr.Code)
	assert.Equal(t, 3, transport.GetTotalCallCount(), "one attempt plus two retries")
}

func TestStatPalStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, ErrCodeAuthenticationFailed},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusBadRequest, ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, transport, _ := newTestClient(t, 100)
			transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-5",
				httpmock.NewStringResponder(tt.status, "{}"))

			_, err := client.FetchOdds(context.Background(), "R-5", models.Interval2MinBefore)
			var feedErr *FeedError
			require.True(t, errors.As(err, &feedErr))
			assert.Equal(t, tt.code, feedErr.Code)
			assert.ErrorIs(t, err, ErrProviderUnavailable)
		})
	}
}

func TestStatPalMalformedBody(t *testing.T) {
	client, transport, _ := newTestClient(t, 100)
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-7",
		httpmock.NewStringResponder(http.StatusOK, `{"horses": [{"number": "x", "win_odds": "5/1"}]}`))

	_, err := client.FetchOdds(context.Background(), "R-7", models.Interval1MinBefore)
	assert.ErrorIs(t, err, ErrMalformedOddsData)

	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-8",
		httpmock.NewStringResponder(http.StatusOK, `not json`))
	_, err = client.FetchOdds(context.Background(), "R-8", models.Interval1MinBefore)
	assert.ErrorIs(t, err, ErrMalformedOddsData)
}

func TestStatPalNetworkErrorHidesAccessKey(t *testing.T) {
	client, transport, _ := newTestClient(t, 100)
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-3",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := client.FetchOdds(context.Background(), "R-3", models.IntervalAtPost)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotContains(t, err.Error(), testAccessKey)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	client, transport, _ := newTestClient(t, 100)
	now := time.Date(2026, 5, 16, 12, 0, 0, 0, time.UTC)
	client.httpClient.now = func() time.Time { return now }

	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-1",
		httpmock.NewStringResponder(http.StatusBadGateway, ""))

	for i := 0; i < 3; i++ {
		_, err := client.FetchOdds(context.Background(), "R-1", models.IntervalAtPost)
		require.Error(t, err)
	}
	assert.True(t, client.httpClient.IsOpen())
	calls := transport.GetTotalCallCount()

	_, err := client.FetchOdds(context.Background(), "R-1", models.IntervalAtPost)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, calls, transport.GetTotalCallCount())

	transport.RegisterResponder(http.MethodGet, testBaseURL+"/odds/R-1",
		httpmock.NewStringResponder(http.StatusOK, `{"horses":[{"number":1,"win_odds":"3/1"}]}`))
	now = now.Add(2 * time.Minute)

	_, err = client.FetchOdds(context.Background(), "R-1", models.IntervalAtPost)
	require.NoError(t, err)
	assert.False(t, client.httpClient.IsOpen())
}
