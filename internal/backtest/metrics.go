// Package backtest settles recorded recommendations against race results
// and reports how the stakes and probabilities would have performed.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bet is one positive-stake recommendation settled against the result
type Bet struct {
	RaceID        uuid.UUID `json:"race_id"`
	ProgramNumber int       `json:"program_number"`
	PostTime      time.Time `json:"post_time"`
	Probability   float64   `json:"probability"`
	DecimalOdds   float64   `json:"decimal_odds"`
	Stake         float64   `json:"stake"`
	Won           bool      `json:"won"`
	Return        float64   `json:"return"`
	ProfitLoss    float64   `json:"profit_loss"`
}

// Prediction pairs a ranked probability with whether the entry won
type Prediction struct {
	Probability float64
	Won         bool
	Rank        int
}

// Metrics summarizes settled recommendations over a period
type Metrics struct {
	Races          int       `json:"races"`
	TotalBets      int       `json:"total_bets"`
	WinningBets    int       `json:"winning_bets"`
	LosingBets     int       `json:"losing_bets"`
	WinRate        float64   `json:"win_rate"`
	TotalStaked    float64   `json:"total_staked"`
	TotalReturned  float64   `json:"total_returned"`
	NetProfit      float64   `json:"net_profit"`
	ROI            float64   `json:"roi"`
	ProfitFactor   float64   `json:"profit_factor"`
	AverageWin     float64   `json:"average_win"`
	AverageLoss    float64   `json:"average_loss"`
	Expectancy     float64   `json:"expectancy"`
	LargestWin     float64   `json:"largest_win"`
	LargestLoss    float64   `json:"largest_loss"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	BrierScore     float64   `json:"brier_score"`
	LogLoss        float64   `json:"log_loss"`
	TopPickWinRate float64   `json:"top_pick_win_rate"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// CalculateMetrics computes betting and calibration metrics. bankroll seeds
// the equity curve used for drawdown and per-bet returns.
func CalculateMetrics(bets []Bet, predictions []Prediction, races int, bankroll float64, from, to time.Time) (Metrics, EquityCurve) {
	m := Metrics{Races: races, StartDate: from, EndDate: to}

	sorted := append([]Bet(nil), bets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PostTime.Before(sorted[j].PostTime) })

	m.TotalBets = len(sorted)
	for _, b := range sorted {
		m.TotalStaked += b.Stake
		m.TotalReturned += b.Return
	}
	m.TotalStaked = roundCents(m.TotalStaked)
	m.TotalReturned = roundCents(m.TotalReturned)
	m.NetProfit = roundCents(m.TotalReturned - m.TotalStaked)
	if m.TotalStaked > 0 {
		m.ROI = m.NetProfit / m.TotalStaked
	}

	m.WinningBets, m.LosingBets, m.AverageWin, m.AverageLoss, m.LargestWin, m.LargestLoss = calculateBetStats(sorted)
	m.WinRate = calculateWinRate(m.WinningBets, m.TotalBets)
	m.ProfitFactor = calculateProfitFactor(sorted)
	m.Expectancy = calculateExpectancy(sorted)

	curve := buildEquityCurve(sorted, bankroll)
	m.MaxDrawdown = calculateMaxDrawdown(curve)
	m.SharpeRatio = calculateSharpeRatio(curve.GetReturns())

	m.BrierScore, m.LogLoss = calibration(predictions)
	m.TopPickWinRate = topPickWinRate(predictions)
	return m, curve
}

func buildEquityCurve(bets []Bet, bankroll float64) EquityCurve {
	if bankroll <= 0 || len(bets) == 0 {
		return EquityCurve{}
	}
	curve := make(EquityCurve, 0, len(bets)+1)
	curve = append(curve, EquityPoint{Time: bets[0].PostTime, Value: bankroll})

	value, peak := bankroll, bankroll
	for _, b := range bets {
		value += b.ProfitLoss
		if value > peak {
			peak = value
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - value) / peak
		}
		curve = append(curve, EquityPoint{Time: b.PostTime, Value: roundCents(value), Drawdown: dd, PnL: b.ProfitLoss})
	}
	return curve
}

// calculateSharpeRatio is per bet, not annualized; bets are irregular in time.
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	std := stddev(returns)
	if std == 0 {
		return 0
	}
	return average(returns) / std
}

func calculateMaxDrawdown(curve EquityCurve) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak == 0 {
			continue
		}
		drawdown := (peak - p.Value) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return maxDD
}

func calculateProfitFactor(bets []Bet) float64 {
	grossProfit := 0.0
	grossLoss := 0.0
	for _, bet := range bets {
		if bet.ProfitLoss > 0 {
			grossProfit += bet.ProfitLoss
		} else {
			grossLoss += math.Abs(bet.ProfitLoss)
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return 999
		}
		return 0
	}
	return grossProfit / grossLoss
}

func calculateExpectancy(bets []Bet) float64 {
	if len(bets) == 0 {
		return 0
	}
	net := 0.0
	for _, bet := range bets {
		net += bet.ProfitLoss
	}
	return net / float64(len(bets))
}

func calculateBetStats(bets []Bet) (int, int, float64, float64, float64, float64) {
	wins := 0
	losses := 0
	winSum := 0.0
	lossSum := 0.0
	largestWin := 0.0
	largestLoss := 0.0
	for _, bet := range bets {
		pl := bet.ProfitLoss
		if pl > 0 {
			wins++
			winSum += pl
			if pl > largestWin {
				largestWin = pl
			}
		} else if pl < 0 {
			losses++
			lossSum += pl
			if pl < largestLoss {
				largestLoss = pl
			}
		}
	}

	avgWin := 0.0
	avgLoss := 0.0
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return wins, losses, avgWin, avgLoss, largestWin, largestLoss
}

func calculateWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// calibration returns the Brier score and log loss of win probabilities.
func calibration(predictions []Prediction) (float64, float64) {
	if len(predictions) == 0 {
		return 0, 0
	}
	const eps = 1e-15
	brier, logLoss := 0.0, 0.0
	for _, p := range predictions {
		y := 0.0
		if p.Won {
			y = 1
		}
		brier += (p.Probability - y) * (p.Probability - y)

		q := math.Min(math.Max(p.Probability, eps), 1-eps)
		logLoss -= y*math.Log(q) + (1-y)*math.Log(1-q)
	}
	n := float64(len(predictions))
	return brier / n, logLoss / n
}

func topPickWinRate(predictions []Prediction) float64 {
	picks, wins := 0, 0
	for _, p := range predictions {
		if p.Rank != 1 {
			continue
		}
		picks++
		if p.Won {
			wins++
		}
	}
	return calculateWinRate(wins, picks)
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	return mean / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
