package planner

import "fmt"

// Vote is a student's stance on an activity code.
type Vote int

const (
	VoteVeto    Vote = -1
	VoteNeutral Vote = 0
	VotePrefer  Vote = 1
)

// String implements fmt.Stringer.
func (v Vote) String() string {
	switch v {
	case VotePrefer:
		return "prefer"
	case VoteVeto:
		return "veto"
	default:
		return "neutral"
	}
}

// ActivityInstance is one schedulable occurrence of an activity. Several
// instances may share a Code.
type ActivityInstance struct {
	ID              string
	Code            string
	Description     string
	Owner           string
	Location        string
	MaxCapacity     int
	IdealCapacity   int
	Sessions        []Session
	DeclaredPeriods int
}

// Duration is the number of distinct sessions the instance occupies.
func (a ActivityInstance) Duration() int {
	return len(a.Sessions)
}

// StartSession is the earliest session of the instance.
func (a ActivityInstance) StartSession() Session {
	if len(a.Sessions) == 0 {
		return Session{Index: -1}
	}
	return a.Sessions[0]
}

// SessionNames lists the covered session names in calendar order.
func (a ActivityInstance) SessionNames() []string {
	names := make([]string, len(a.Sessions))
	for i, s := range a.Sessions {
		names[i] = s.Name
	}
	return names
}

// Student is one participant with their votes keyed by activity code.
type Student struct {
	ID                  string
	LastName            string
	FirstName           string
	ClassGroup          string
	Sequence            int
	Votes               map[string]Vote
	DeclaredPreferences int
}

// Vote returns the student's vote for code, neutral when absent.
func (s Student) Vote(code string) Vote {
	if v, ok := s.Votes[code]; ok {
		return v
	}
	return VoteNeutral
}

// DisplayName renders "Last First (Class)".
func (s Student) DisplayName() string {
	return fmt.Sprintf("%s %s (%s)", s.LastName, s.FirstName, s.ClassGroup)
}

// Input is the normalized data of one run.
type Input struct {
	Calendar  *Calendar
	Instances []ActivityInstance
	Students  []Student
	// Codes lists the activity codes seen in the preferences table, in column
	// order.
	Codes []string
}
