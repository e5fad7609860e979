package planner

import (
	"fmt"
	"strings"
)

// SchemaError reports required columns absent from an input table.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s table is missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// EmptyInputError reports that normalization left nothing to schedule.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("no valid %s after normalization", e.What)
}

// ModelConstructionError reports structurally invalid data reaching the
// builder.
type ModelConstructionError struct {
	Reason string
}

func (e *ModelConstructionError) Error() string {
	return "model construction: " + e.Reason
}

// Warning is a non-fatal row or cell defect found while normalizing.
type Warning struct {
	Table   string
	Row     int
	Subject string
	Message string
}

func (w Warning) String() string {
	if w.Subject == "" {
		return fmt.Sprintf("%s row %d: %s", w.Table, w.Row, w.Message)
	}
	return fmt.Sprintf("%s row %d (%s): %s", w.Table, w.Row, w.Subject, w.Message)
}

// Consistency check kinds.
const (
	FaultOverlap   = "overlap"
	FaultDuration  = "duration"
	FaultCapacity  = "capacity"
	FaultDuplicate = "duplicate_code"
	FaultDeviation = "deviation"
)

// ConsistencyWarning is a post-solve check that failed. It never blocks
// output generation.
type ConsistencyWarning struct {
	Kind    string
	Subject string
	Detail  string
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("consistency %s for %s: %s", w.Kind, w.Subject, w.Detail)
}
