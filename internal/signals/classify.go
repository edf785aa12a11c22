// Package signals turns per-company job-posting volume into a hiring-trend label.
package signals

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput marks negative counts or malformed thresholds.
var ErrInvalidInput = errors.New("invalid input")

type Label string

const (
	LabelAggressiveHirer Label = "aggressive_hirer"
	LabelCoolingDown     Label = "cooling_down"
	LabelStable          Label = "stable"
)

// Thresholds configures the labeling policy. Low is expected to be negative.
type Thresholds struct {
	MinVolume int     `mapstructure:"min-volume"`
	High      float64 `mapstructure:"high"`
	Low       float64 `mapstructure:"low"`
}

func (t Thresholds) Validate() error {
	if t.MinVolume < 0 {
		return fmt.Errorf("%w: min volume %d is negative", ErrInvalidInput, t.MinVolume)
	}
	if math.IsNaN(t.High) || math.IsInf(t.High, 0) || math.IsNaN(t.Low) || math.IsInf(t.Low, 0) {
		return fmt.Errorf("%w: thresholds must be finite", ErrInvalidInput)
	}
	if t.Low > 0 {
		return fmt.Errorf("%w: low threshold %v must not be positive", ErrInvalidInput, t.Low)
	}
	if t.High < 0 {
		return fmt.Errorf("%w: high threshold %v must not be negative", ErrInvalidInput, t.High)
	}
	if t.Low >= t.High {
		return fmt.Errorf("%w: low threshold %v must be below high threshold %v", ErrInvalidInput, t.Low, t.High)
	}
	return nil
}

// Velocity is the relative change between two window counts. The denominator is
// floored at 1 so a company with no previous postings still gets a finite value.
func Velocity(current, previous int) float64 {
	return float64(current-previous) / float64(max(previous, 1))
}

// Classify computes velocity and label for one company. It is a pure function
// of its arguments.
func Classify(current, previous int, t Thresholds) (float64, Label, error) {
	if current < 0 || previous < 0 {
		return 0, "", fmt.Errorf("%w: negative posting count (current=%d, previous=%d)", ErrInvalidInput, current, previous)
	}
	if err := t.Validate(); err != nil {
		return 0, "", err
	}

	v := Velocity(current, previous)

	switch {
	case current < t.MinVolume:
		return v, LabelStable, nil
	case v >= t.High:
		return v, LabelAggressiveHirer, nil
	case v <= t.Low:
		return v, LabelCoolingDown, nil
	default:
		return v, LabelStable, nil
	}
}
