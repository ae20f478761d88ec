// Package probability turns entry attributes and market odds into a ranked
// win-probability table with edge and stake sizing.
package probability

import (
	"fmt"
	"math"

	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/models"
)

// WeightTolerance bounds how far weights may drift from summing to 1.0
const WeightTolerance = 1e-6

// Factor is one of the six fixed handicapping components
type Factor int

const (
	FactorForm Factor = iota
	FactorClass
	FactorConnections
	FactorSpeed
	FactorConditions
	FactorFitness
)

var factorNames = [...]string{"form", "class", "connections", "speed", "conditions", "fitness"}

func (f Factor) String() string {
	if f < FactorForm || f > FactorFitness {
		return fmt.Sprintf("factor(%d)", int(f))
	}
	return factorNames[f]
}

// Factors returns every factor in declaration order
func Factors() []Factor {
	return []Factor{FactorForm, FactorClass, FactorConnections, FactorSpeed, FactorConditions, FactorFitness}
}

// Weights assigns a weight to each factor
type Weights struct {
	Form        float64 `json:"form"`
	Class       float64 `json:"class"`
	Connections float64 `json:"connections"`
	Speed       float64 `json:"speed"`
	Conditions  float64 `json:"conditions"`
	Fitness     float64 `json:"fitness"`
}

// DefaultWeights returns the stock weighting
func DefaultWeights() Weights {
	return Weights{
		Form:        0.25,
		Class:       0.20,
		Connections: 0.15,
		Speed:       0.20,
		Conditions:  0.10,
		Fitness:     0.10,
	}
}

// WeightsFromConfig converts configured weights
func WeightsFromConfig(cfg config.WeightsConfig) Weights {
	return Weights{
		Form:        cfg.Form,
		Class:       cfg.Class,
		Connections: cfg.Connections,
		Speed:       cfg.Speed,
		Conditions:  cfg.Conditions,
		Fitness:     cfg.Fitness,
	}
}

// Get returns the weight for f
func (w Weights) Get(f Factor) float64 {
	switch f {
	case FactorForm:
		return w.Form
	case FactorClass:
		return w.Class
	case FactorConnections:
		return w.Connections
	case FactorSpeed:
		return w.Speed
	case FactorConditions:
		return w.Conditions
	case FactorFitness:
		return w.Fitness
	}
	return 0
}

// AsMap returns weights keyed by factor name, for logging
func (w Weights) AsMap() map[string]float64 {
	out := make(map[string]float64, len(factorNames))
	for _, f := range Factors() {
		out[f.String()] = w.Get(f)
	}
	return out
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	var total float64
	for _, f := range Factors() {
		total += w.Get(f)
	}
	return total
}

// Validate rejects weights outside [0,1] or not summing to 1.0
func (w Weights) Validate() error {
	for _, f := range Factors() {
		v := w.Get(f)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return &config.ConfigurationError{
				Field:   "engine.weights." + f.String(),
				Message: fmt.Sprintf("weight %v must be within [0, 1]", v),
			}
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return &config.ConfigurationError{
			Field:   "engine.weights",
			Message: fmt.Sprintf("weights sum to %.6f, expected 1.0", sum),
		}
	}
	return nil
}

// Score returns the weighted sum of a runner's components
func (w Weights) Score(s models.FactorScores) float64 {
	return s.Form*w.Form +
		s.Class*w.Class +
		s.Connections*w.Connections +
		s.Speed*w.Speed +
		s.Conditions*w.Conditions +
		s.Fitness*w.Fitness
}
