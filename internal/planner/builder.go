package planner

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-activity-planner/pkg/milp"
)

// Model is the MILP of one run together with the handles needed to read a
// solution back. Assign is indexed [student][instance] in Input order.
type Model struct {
	Problem       *milp.Problem
	Input         *Input
	Options       Options
	Assign        [][]milp.Var
	Deviation     []milp.Var
	NeutralCount  []milp.Var
	NeutralExcess []milp.Var
}

// AssignmentCost is the objective coefficient of placing a student with the
// given vote into an instance.
func (o Options) AssignmentCost(v Vote) float64 {
	switch v {
	case VotePrefer:
		return -o.PrefReward
	case VoteVeto:
		return o.VetoPenalty
	default:
		return 0
	}
}

// BuildModel encodes the assignment problem. It fails with a
// ModelConstructionError when the normalized data is structurally invalid.
func BuildModel(in *Input, opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := validateInput(in, opts); err != nil {
		return nil, err
	}

	p := milp.NewProblem("activity_week")
	m := &Model{
		Problem:       p,
		Input:         in,
		Options:       opts,
		Assign:        make([][]milp.Var, len(in.Students)),
		Deviation:     make([]milp.Var, len(in.Instances)),
		NeutralCount:  make([]milp.Var, len(in.Students)),
		NeutralExcess: make([]milp.Var, len(in.Students)),
	}
	names := newRowNamer()
	total := float64(in.Calendar.Len())

	for s, st := range in.Students {
		m.Assign[s] = make([]milp.Var, len(in.Instances))
		for a, inst := range in.Instances {
			v := p.Binary(fmt.Sprintf("x_%s_%s", sanitize(st.ID), sanitize(inst.ID)))
			if opts.HardVetoes && st.Vote(inst.Code) == VoteVeto {
				p.SetBounds(v, 0, 0)
			}
			m.Assign[s][a] = v
		}
		m.NeutralCount[s] = p.NonNegInteger("z_" + sanitize(st.ID))
		m.NeutralExcess[s] = p.NonNegContinuous("w_" + sanitize(st.ID))
	}
	for a, inst := range in.Instances {
		m.Deviation[a] = p.NonNegContinuous("dev_" + sanitize(inst.ID))
	}

	// Every student fills the whole event.
	for s, st := range in.Students {
		terms := make([]milp.Term, 0, len(in.Instances))
		for a, inst := range in.Instances {
			terms = append(terms, milp.Term{Var: m.Assign[s][a], Coef: float64(inst.Duration())})
		}
		p.AddConstraint(names.next("TotalDuration", st.ID), terms, milp.Equal, total)
	}

	// Capacity and deviation from the ideal headcount.
	for a, inst := range in.Instances {
		terms := make([]milp.Term, 0, len(in.Students)+1)
		for s := range in.Students {
			terms = append(terms, milp.Term{Var: m.Assign[s][a], Coef: 1})
		}
		p.AddConstraint(names.next("MaxCapacity", inst.ID), terms, milp.LessEq, float64(inst.MaxCapacity))

		ideal := float64(inst.IdealCapacity)
		pos := append(append([]milp.Term(nil), terms...), milp.Term{Var: m.Deviation[a], Coef: -1})
		p.AddConstraint(names.next("DevPos", inst.ID), pos, milp.LessEq, ideal)
		neg := append(append([]milp.Term(nil), terms...), milp.Term{Var: m.Deviation[a], Coef: 1})
		p.AddConstraint(names.next("DevNeg", inst.ID), neg, milp.GreaterEq, ideal)
	}

	byCode := make(map[string][]int)
	var codes []string
	for a, inst := range in.Instances {
		if _, ok := byCode[inst.Code]; !ok {
			codes = append(codes, inst.Code)
		}
		byCode[inst.Code] = append(byCode[inst.Code], a)
	}
	covering := make([][]int, in.Calendar.Len())
	for a, inst := range in.Instances {
		for _, sess := range inst.Sessions {
			covering[sess.Index] = append(covering[sess.Index], a)
		}
	}

	for s, st := range in.Students {
		// At most one instance per code.
		for _, code := range codes {
			idx := byCode[code]
			if len(idx) < 2 {
				continue
			}
			terms := make([]milp.Term, len(idx))
			for i, a := range idx {
				terms[i] = milp.Term{Var: m.Assign[s][a], Coef: 1}
			}
			p.AddConstraint(names.next("UniqueCode", st.ID+"_"+code), terms, milp.LessEq, 1)
		}

		// At most one instance per session.
		for t, idx := range covering {
			if len(idx) < 2 {
				continue
			}
			terms := make([]milp.Term, len(idx))
			for i, a := range idx {
				terms[i] = milp.Term{Var: m.Assign[s][a], Coef: 1}
			}
			sess, _ := in.Calendar.At(t)
			p.AddConstraint(names.next("NoOverlap", st.ID+"_"+sess.Name), terms, milp.LessEq, 1)
		}

		// z counts neutral placements, w >= z - 1 penalizes all but the first.
		count := []milp.Term{{Var: m.NeutralCount[s], Coef: 1}}
		for a, inst := range in.Instances {
			if st.Vote(inst.Code) == VoteNeutral {
				count = append(count, milp.Term{Var: m.Assign[s][a], Coef: -1})
			}
		}
		p.AddConstraint(names.next("NeutralCount", st.ID), count, milp.Equal, 0)
		p.AddConstraint(names.next("NeutralExcess", st.ID), []milp.Term{
			{Var: m.NeutralExcess[s], Coef: 1},
			{Var: m.NeutralCount[s], Coef: -1},
		}, milp.GreaterEq, -1)
	}

	var objective []milp.Term
	for s, st := range in.Students {
		for a, inst := range in.Instances {
			if c := opts.AssignmentCost(st.Vote(inst.Code)); c != 0 {
				objective = append(objective, milp.Term{Var: m.Assign[s][a], Coef: c})
			}
		}
	}
	if opts.DeviationWeight != 0 {
		for _, v := range m.Deviation {
			objective = append(objective, milp.Term{Var: v, Coef: opts.DeviationWeight})
		}
	}
	if opts.ExtraNeutralPenalty != 0 {
		for _, v := range m.NeutralExcess {
			objective = append(objective, milp.Term{Var: v, Coef: opts.ExtraNeutralPenalty})
		}
	}
	p.SetObjective(objective)

	if err := p.Validate(); err != nil {
		return nil, &ModelConstructionError{Reason: err.Error()}
	}
	return m, nil
}

func validateInput(in *Input, opts Options) error {
	if in == nil || in.Calendar == nil {
		return &ModelConstructionError{Reason: "input has no calendar"}
	}
	if got, want := in.Calendar.Names(), opts.Sessions; !sameSessions(got, want) {
		return &ModelConstructionError{Reason: fmt.Sprintf("input calendar %v does not match configured sessions %v", got, want)}
	}
	if len(in.Instances) == 0 {
		return &ModelConstructionError{Reason: "no activity instances"}
	}
	if len(in.Students) == 0 {
		return &ModelConstructionError{Reason: "no students"}
	}

	ids := make(map[string]struct{}, len(in.Instances))
	for _, inst := range in.Instances {
		if inst.ID == "" {
			return &ModelConstructionError{Reason: fmt.Sprintf("instance of %s has no id", inst.Code)}
		}
		if _, dup := ids[inst.ID]; dup {
			return &ModelConstructionError{Reason: fmt.Sprintf("duplicate instance id %s", inst.ID)}
		}
		ids[inst.ID] = struct{}{}
		if inst.MaxCapacity <= 0 {
			return &ModelConstructionError{Reason: fmt.Sprintf("instance %s has non-positive max capacity %d", inst.ID, inst.MaxCapacity)}
		}
		if inst.IdealCapacity < 0 {
			return &ModelConstructionError{Reason: fmt.Sprintf("instance %s has negative ideal capacity %d", inst.ID, inst.IdealCapacity)}
		}
		if len(inst.Sessions) == 0 {
			return &ModelConstructionError{Reason: fmt.Sprintf("instance %s covers no session", inst.ID)}
		}
		seen := make(map[int]bool, len(inst.Sessions))
		for _, sess := range inst.Sessions {
			if !in.Calendar.Contains(sess) {
				return &ModelConstructionError{Reason: fmt.Sprintf("instance %s references session %q outside the calendar", inst.ID, sess.Name)}
			}
			if seen[sess.Index] {
				return &ModelConstructionError{Reason: fmt.Sprintf("instance %s lists session %q twice", inst.ID, sess.Name)}
			}
			seen[sess.Index] = true
		}
	}

	students := make(map[string]struct{}, len(in.Students))
	for _, st := range in.Students {
		if _, dup := students[st.ID]; dup {
			return &ModelConstructionError{Reason: fmt.Sprintf("duplicate student id %s", st.ID)}
		}
		students[st.ID] = struct{}{}
	}
	return nil
}

func sameSessions(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != strings.TrimSpace(want[i]) {
			return false
		}
	}
	return true
}

var nameReplacer = strings.NewReplacer(" ", "_", "/", "_", ":", "_", "-", "_", "#", "_")

func sanitize(id string) string {
	return nameReplacer.Replace(id)
}

// rowNamer produces Kind_<id> row names, suffixing a counter when two
// identifiers sanitize to the same text.
type rowNamer struct {
	used map[string]int
}

func newRowNamer() *rowNamer {
	return &rowNamer{used: map[string]int{}}
}

func (n *rowNamer) next(kind, id string) string {
	name := kind + "_" + sanitize(id)
	n.used[name]++
	if c := n.used[name]; c > 1 {
		return fmt.Sprintf("%s_%d", name, c)
	}
	return name
}
