package planner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/noah-isme/sma-activity-planner/pkg/milp"
)

// SolveStatus is the outcome of a run as reported to callers.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "Optimal"
	StatusInfeasible SolveStatus = "Infeasible"
	StatusUnbounded  SolveStatus = "Unbounded"
	StatusNotSolved  SolveStatus = "NotSolved"
	StatusTimedOut   SolveStatus = "TimedOut"
)

const valueTol = 1e-6

// Assignment is one instance in a student's schedule.
type Assignment struct {
	InstanceID string
	Code       string
	Vote       Vote
}

// StudentSchedule lists a student's placements. BySession holds the activity
// code of each calendar slot, empty when unassigned.
type StudentSchedule struct {
	Student     Student
	Assignments []Assignment
	BySession   []string
}

// Roster is the headcount of one instance.
type Roster struct {
	Instance  ActivityInstance
	Students  []Student
	Deviation float64
}

// Assigned is the number of students placed in the instance.
func (r Roster) Assigned() int {
	return len(r.Students)
}

// Statistics summarizes an optimal run. Rates are fractions of
// TotalAssignments and are zero when nothing was assigned.
type Statistics struct {
	Objective         float64
	PreferenceCost    float64
	VetoCost          float64
	DeviationCost     float64
	NeutralExcessCost float64

	TotalAssignments    int
	StudentSessionSlots int
	PreferenceCount     int
	VetoCount           int
	NeutralCount        int
	PreferenceRate      float64
	VetoRate            float64
	NeutralRate         float64

	TotalDeviation   float64
	AverageDeviation float64
	TotalIdeal       int

	// NeutralHistogram[k] is the number of students with k neutral
	// placements; PreferenceHistogram likewise for satisfied preferences.
	NeutralHistogram    []int
	PreferenceHistogram []int
}

// Result is the interpreted outcome of a run. Schedules, Rosters and Stats
// are only populated when Status is StatusOptimal.
type Result struct {
	Status         SolveStatus
	Classification string
	Sessions       []string
	Objective      float64
	Schedules      []StudentSchedule
	Rosters        []Roster
	Stats          *Statistics
	Warnings       []*ConsistencyWarning
	Nodes          int
	Runtime        time.Duration
}

// Optimal reports whether schedules are available.
func (r *Result) Optimal() bool {
	return r != nil && r.Status == StatusOptimal
}

// Faults combines the consistency warnings into a single error, nil when the
// solution passed every check.
func (r *Result) Faults() error {
	var err error
	for _, w := range r.Warnings {
		err = multierr.Append(err, w)
	}
	return err
}

func statusFrom(s milp.Status) SolveStatus {
	switch s {
	case milp.StatusOptimal:
		return StatusOptimal
	case milp.StatusInfeasible:
		return StatusInfeasible
	case milp.StatusUnbounded:
		return StatusUnbounded
	case milp.StatusTimeLimit:
		return StatusTimedOut
	default:
		return StatusNotSolved
	}
}

// Classify renders a human-readable explanation of a status.
func Classify(status SolveStatus) string {
	switch status {
	case StatusOptimal:
		return "optimal solution found"
	case StatusInfeasible:
		return "infeasible: no assignment satisfies every constraint"
	case StatusNotSolved:
		return "not solved: the solver did not start or was interrupted"
	default:
		return fmt.Sprintf("no optimal solution found (status %s)", status)
	}
}

// Extract interprets a solution of m. Non-optimal outcomes produce a result
// carrying only the status and its classification.
func Extract(m *Model, sol *milp.Solution) *Result {
	in := m.Input
	res := &Result{Status: StatusNotSolved, Sessions: in.Calendar.Names()}
	if sol != nil {
		res.Status = statusFrom(sol.Status)
		res.Nodes = sol.Nodes
		res.Runtime = sol.Runtime
	}
	res.Classification = Classify(res.Status)
	if res.Status != StatusOptimal {
		return res
	}
	res.Objective = sol.Objective

	total := in.Calendar.Len()
	opts := m.Options
	stats := &Statistics{
		Objective:           sol.Objective,
		StudentSessionSlots: len(in.Students) * total,
	}
	members := make([][]Student, len(in.Instances))
	neutralPer := make([]int, len(in.Students))
	prefPer := make([]int, len(in.Students))

	for s, st := range in.Students {
		sched := StudentSchedule{Student: st, BySession: make([]string, total)}
		var picked []int
		for a := range in.Instances {
			if sol.Value(m.Assign[s][a]) > 0.5 {
				picked = append(picked, a)
			}
		}
		sort.SliceStable(picked, func(i, j int) bool {
			return in.Instances[picked[i]].StartSession().Index < in.Instances[picked[j]].StartSession().Index
		})

		covered := 0
		codes := map[string]bool{}
		for _, a := range picked {
			inst := in.Instances[a]
			vote := st.Vote(inst.Code)
			sched.Assignments = append(sched.Assignments, Assignment{InstanceID: inst.ID, Code: inst.Code, Vote: vote})
			members[a] = append(members[a], st)
			covered += inst.Duration()

			if codes[inst.Code] {
				res.warn(FaultDuplicate, st.ID, fmt.Sprintf("activity %s assigned more than once", inst.Code))
			}
			codes[inst.Code] = true
			for _, sess := range inst.Sessions {
				if prev := sched.BySession[sess.Index]; prev != "" {
					res.warn(FaultOverlap, st.ID, fmt.Sprintf("session %s holds both %s and %s", sess.Name, prev, inst.Code))
					continue
				}
				sched.BySession[sess.Index] = inst.Code
			}

			stats.TotalAssignments++
			switch vote {
			case VotePrefer:
				stats.PreferenceCount++
				prefPer[s]++
			case VoteVeto:
				stats.VetoCount++
			default:
				stats.NeutralCount++
				neutralPer[s]++
			}
		}
		if covered != total {
			res.warn(FaultDuration, st.ID, fmt.Sprintf("assigned duration %d, event has %d sessions", covered, total))
		}
		res.Schedules = append(res.Schedules, sched)
		stats.NeutralExcessCost += opts.ExtraNeutralPenalty * sol.Value(m.NeutralExcess[s])
	}

	for a, inst := range in.Instances {
		students := members[a]
		sort.SliceStable(students, func(i, j int) bool {
			return students[i].DisplayName() < students[j].DisplayName()
		})
		dev := sol.Value(m.Deviation[a])
		if math.Abs(dev) < valueTol {
			dev = 0
		}
		res.Rosters = append(res.Rosters, Roster{Instance: inst, Students: students, Deviation: dev})

		if len(students) > inst.MaxCapacity {
			res.warn(FaultCapacity, inst.ID, fmt.Sprintf("%d students exceed capacity %d", len(students), inst.MaxCapacity))
		}
		actual := math.Abs(float64(len(students) - inst.IdealCapacity))
		if dev < actual-valueTol || (opts.DeviationWeight > 0 && dev > actual+valueTol) {
			res.warn(FaultDeviation, inst.ID, fmt.Sprintf("deviation variable %.4g but |assigned - ideal| = %g", dev, actual))
		}
		stats.TotalDeviation += dev
		stats.TotalIdeal += inst.IdealCapacity
	}

	stats.PreferenceCost = -opts.PrefReward * float64(stats.PreferenceCount)
	stats.VetoCost = opts.VetoPenalty * float64(stats.VetoCount)
	stats.DeviationCost = opts.DeviationWeight * stats.TotalDeviation
	stats.AverageDeviation = stats.TotalDeviation / float64(len(in.Instances))
	if stats.TotalAssignments > 0 {
		n := float64(stats.TotalAssignments)
		stats.PreferenceRate = float64(stats.PreferenceCount) / n
		stats.VetoRate = float64(stats.VetoCount) / n
		stats.NeutralRate = float64(stats.NeutralCount) / n
	}
	stats.NeutralHistogram = histogram(neutralPer)
	stats.PreferenceHistogram = histogram(prefPer)
	res.Stats = stats
	return res
}

func (r *Result) warn(kind, subject, detail string) {
	r.Warnings = append(r.Warnings, &ConsistencyWarning{Kind: kind, Subject: subject, Detail: detail})
}

func histogram(counts []int) []int {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	hist := make([]int, maxCount+1)
	for _, c := range counts {
		hist[c]++
	}
	return hist
}
