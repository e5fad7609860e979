// Package planner turns activity and preference tables into a mixed-integer
// model, and turns a solved model back into schedules, rosters and
// statistics.
package planner

import (
	"fmt"
	"math"
	"time"
)

// Objective weights used when no configuration overrides them.
const (
	DefaultPrefReward          = 10.0
	DefaultVetoPenalty         = 1000.0
	DefaultDeviationWeight     = 1.0
	DefaultExtraNeutralPenalty = 25.0
	DefaultTimeLimit           = 300 * time.Second
)

// DefaultSessions is the canonical five-slot event week.
var DefaultSessions = []string{"Monday AM", "Monday PM", "Tuesday AM", "Tuesday PM", "Wednesday AM"}

// Options carries the run parameters. It is passed by value and never mutated
// by the planner.
type Options struct {
	Sessions            []string
	PrefReward          float64
	VetoPenalty         float64
	DeviationWeight     float64
	ExtraNeutralPenalty float64
	// HardVetoes forbids vetoed assignments outright instead of pricing them
	// at VetoPenalty.
	HardVetoes bool
	TimeLimit  time.Duration
}

// DefaultOptions returns the stock weights and calendar.
func DefaultOptions() Options {
	return Options{
		Sessions:            append([]string(nil), DefaultSessions...),
		PrefReward:          DefaultPrefReward,
		VetoPenalty:         DefaultVetoPenalty,
		DeviationWeight:     DefaultDeviationWeight,
		ExtraNeutralPenalty: DefaultExtraNeutralPenalty,
		TimeLimit:           DefaultTimeLimit,
	}
}

// Validate checks the weights and the session list.
func (o Options) Validate() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"pref reward", o.PrefReward},
		{"veto penalty", o.VetoPenalty},
		{"deviation weight", o.DeviationWeight},
		{"extra neutral penalty", o.ExtraNeutralPenalty},
	}
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return &ModelConstructionError{Reason: fmt.Sprintf("%s must be a finite non-negative number, got %v", w.name, w.value)}
		}
	}
	if o.TimeLimit < 0 {
		return &ModelConstructionError{Reason: "time limit must not be negative"}
	}
	_, err := NewCalendar(o.Sessions)
	return err
}

// Calendar builds the session calendar described by the options.
func (o Options) Calendar() (*Calendar, error) {
	return NewCalendar(o.Sessions)
}
