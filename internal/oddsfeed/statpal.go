package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
)

const (
	statPalName    = "statpal"
	maxErrorBody   = 512
	DefaultBaseURL = "https://statpal.io/api/v1/horse-racing"
)

// Provider fetches the current odds board for one race
type Provider interface {
	FetchOdds(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*RaceOdds, error)
	Name() string
}

// RunnerOdds is one entry's normalized odds
type RunnerOdds struct {
	ProgramNumber int      `json:"program_number"`
	Name          string   `json:"name"`
	RawOdds       string   `json:"raw_odds"`
	DecimalOdds   float64  `json:"decimal_odds"`
	PoolSize      *float64 `json:"pool_size,omitempty"`
}

// MalformedRunner is a provider row that was skipped
type MalformedRunner struct {
	Number string `json:"number"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// RaceOdds is a normalized odds board. Runners is ordered by program number.
type RaceOdds struct {
	ExternalRaceID string            `json:"external_race_id"`
	FetchedAt      time.Time         `json:"fetched_at"`
	Runners        []RunnerOdds      `json:"runners"`
	Malformed      []MalformedRunner `json:"malformed,omitempty"`
}

type statPalResponse struct {
	RaceID json.RawMessage `json:"race_id"`
	Horses []statPalRunner `json:"horses"`
}

type statPalRunner struct {
	Number  json.RawMessage `json:"number"`
	Name    string          `json:"name"`
	WinOdds json.RawMessage `json:"win_odds"`
	Pool    *float64        `json:"pool"`
}

// StatPalClient implements Provider for the StatPal horse racing API
type StatPalClient struct {
	httpClient *RateLimitedHTTPClient
	quota      *QuotaTracker
	baseURL    string
	accessKey  string
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewStatPalClient creates a client; every fetch reserves one call from quota
func NewStatPalClient(httpClient *RateLimitedHTTPClient, quota *QuotaTracker, baseURL, accessKey string, logger logrus.FieldLogger) *StatPalClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &StatPalClient{
		httpClient: httpClient,
		quota:      quota,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accessKey:  accessKey,
		logger:     logger,
		now:        time.Now,
	}
}

// Name returns the provider name
func (c *StatPalClient) Name() string {
	return statPalName
}

// FetchOdds retrieves the odds board for a race
func (c *StatPalClient) FetchOdds(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*RaceOdds, error) {
	if externalRaceID == "" {
		return nil, NewFeedError(statPalName, ErrCodeNotFound, "race has no provider id", nil)
	}

	// an open breaker would refuse the request; do not spend quota on it
	if err := c.httpClient.allow(); err != nil {
		return nil, NewFeedError(statPalName, ErrCodeNetworkError, "provider circuit open", err)
	}

	if err := c.quota.Reserve(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/odds/%s?access_key=%s",
		c.baseURL, url.PathEscape(externalRaceID), url.QueryEscape(c.accessKey))

	start := time.Now()
	resp, err := c.httpClient.Get(ctx, endpoint)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordProviderRequest(statPalName, ErrCodeNetworkError, elapsed)
		return nil, NewFeedError(statPalName, ErrCodeNetworkError, "failed to fetch odds", redact(err, c.accessKey))
	}
	defer resp.Body.Close()

	if feedErr := statusError(resp); feedErr != nil {
		metrics.RecordProviderRequest(statPalName, feedErr.Code, elapsed)
		return nil, feedErr
	}

	var payload statPalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.RecordProviderRequest(statPalName, ErrCodeInvalidData, elapsed)
		return nil, NewFeedError(statPalName, ErrCodeInvalidData, "failed to parse response", err)
	}
	metrics.RecordProviderRequest(statPalName, "ok", elapsed)

	odds := c.convert(externalRaceID, &payload)
	for _, bad := range odds.Malformed {
		c.logger.WithFields(logrus.Fields{
			"race_id":  externalRaceID,
			"interval": interval,
			"number":   bad.Number,
			"raw":      bad.Raw,
			"reason":   bad.Reason,
		}).Warn("Skipping malformed runner odds")
	}

	// an empty board does not mean the race is gone; callers decide
	if len(odds.Runners) == 0 {
		c.logger.WithFields(logrus.Fields{
			"race_id":  externalRaceID,
			"interval": interval,
			"rows":     len(payload.Horses),
		}).Warn("Provider returned no usable runners")
	}
	return odds, nil
}

func statusError(resp *http.Response) *FeedError {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewFeedError(statPalName, ErrCodeAuthenticationFailed, "invalid access key", nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewFeedError(statPalName, ErrCodeNotFound, "race not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewFeedError(statPalName, ErrCodeRateLimited, "rate limit exceeded", nil)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return NewFeedError(statPalName, ErrCodeServerError,
		fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
}

// convert normalizes provider rows; rows that fail to parse are reported, not fatal
func (c *StatPalClient) convert(externalRaceID string, payload *statPalResponse) *RaceOdds {
	odds := &RaceOdds{ExternalRaceID: externalRaceID, FetchedAt: c.now().UTC()}
	seen := make(map[int]bool, len(payload.Horses))

	for _, h := range payload.Horses {
		number := rawString(h.Number)
		raw := rawString(h.WinOdds)

		program, err := strconv.Atoi(number)
		if err != nil || program <= 0 {
			odds.Malformed = append(odds.Malformed, MalformedRunner{Number: number, Raw: raw, Reason: "invalid program number"})
			continue
		}
		if seen[program] {
			odds.Malformed = append(odds.Malformed, MalformedRunner{Number: number, Raw: raw, Reason: "duplicate program number"})
			continue
		}

		decimalOdds, err := ParseOdds(raw)
		if err != nil {
			odds.Malformed = append(odds.Malformed, MalformedRunner{Number: number, Raw: raw, Reason: err.Error()})
			continue
		}

		seen[program] = true
		odds.Runners = append(odds.Runners, RunnerOdds{
			ProgramNumber: program,
			Name:          h.Name,
			RawOdds:       raw,
			DecimalOdds:   decimalOdds,
			PoolSize:      h.Pool,
		})
	}

	sort.Slice(odds.Runners, func(i, j int) bool {
		return odds.Runners[i].ProgramNumber < odds.Runners[j].ProgramNumber
	})
	return odds
}

// rawString reads a JSON scalar that may be quoted or bare
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	return s
}
