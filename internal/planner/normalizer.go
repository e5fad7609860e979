package planner

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-activity-planner/pkg/export"
)

// Table names used in warnings and schema errors.
const (
	TableActivities  = "Activities"
	TablePreferences = "Preferences"
)

// Input column headers.
const (
	ColCode            = "Code"
	ColDescription     = "Description"
	ColOwner           = "Owner"
	ColLocation        = "Location"
	ColPeriodCount     = "PeriodCount"
	ColMaxPerSession   = "MaxPerSession"
	ColIdealPerSession = "IdealPerSession"

	ColLastName        = "LastName"
	ColFirstName       = "FirstName"
	ColClassGroup      = "ClassGroup"
	ColPreferenceCount = "PreferenceCount"
)

var identityColumns = map[string]struct{}{
	ColLastName:        {},
	ColFirstName:       {},
	ColClassGroup:      {},
	ColPreferenceCount: {},
}

// Normalize validates the raw tables and builds the canonical collections.
// Row-level defects are reported as warnings and never abort the run.
func Normalize(activities, preferences export.Dataset, opts Options) (*Input, []Warning, error) {
	cal, err := opts.Calendar()
	if err != nil {
		return nil, nil, err
	}

	required := append([]string{ColCode, ColMaxPerSession, ColIdealPerSession}, cal.SessionColumns()...)
	if missing := missingColumns(activities.Headers, required); len(missing) > 0 {
		return nil, nil, &SchemaError{Table: TableActivities, Missing: missing}
	}
	if missing := missingColumns(preferences.Headers, []string{ColLastName, ColFirstName, ColClassGroup}); len(missing) > 0 {
		return nil, nil, &SchemaError{Table: TablePreferences, Missing: missing}
	}

	var warnings []Warning
	instances, w := normalizeActivities(activities, cal)
	warnings = append(warnings, w...)
	students, codes, w := normalizePreferences(preferences, instances)
	warnings = append(warnings, w...)

	if len(instances) == 0 {
		return nil, warnings, &EmptyInputError{What: "activity instances"}
	}
	if len(students) == 0 {
		return nil, warnings, &EmptyInputError{What: "students"}
	}
	return &Input{Calendar: cal, Instances: instances, Students: students, Codes: codes}, warnings, nil
}

func missingColumns(headers, required []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[strings.TrimSpace(h)] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func normalizeActivities(data export.Dataset, cal *Calendar) ([]ActivityInstance, []Warning) {
	var (
		instances   []ActivityInstance
		warnings    []Warning
		occurrences = map[string]int{}
	)
	for i, row := range data.Rows {
		line := i + 2
		code := cell(row, ColCode)
		warn := func(format string, args ...any) {
			warnings = append(warnings, Warning{Table: TableActivities, Row: line, Subject: code, Message: fmt.Sprintf(format, args...)})
		}
		if isBlankRow(row) {
			continue
		}
		if code == "" {
			warn("empty activity code, row skipped")
			continue
		}

		seen := make(map[int]bool, cal.Len())
		var sessions []Session
		for _, col := range cal.SessionColumns() {
			name := cell(row, col)
			if name == "" {
				continue
			}
			s, ok := cal.Lookup(name)
			if !ok {
				warn("unknown session %q in %s ignored", name, col)
				continue
			}
			if seen[s.Index] {
				continue
			}
			seen[s.Index] = true
			sessions = append(sessions, s)
		}
		if len(sessions) == 0 {
			warn("no recognized session, row skipped")
			continue
		}
		sortSessions(sessions)

		maxCap, err := parseCount(cell(row, ColMaxPerSession))
		if err != nil {
			warn("invalid %s: %v, row skipped", ColMaxPerSession, err)
			continue
		}
		if maxCap <= 0 {
			warn("%s must be positive, got %d, row skipped", ColMaxPerSession, maxCap)
			continue
		}
		ideal, err := parseCount(cell(row, ColIdealPerSession))
		if err != nil {
			warn("invalid %s: %v, row skipped", ColIdealPerSession, err)
			continue
		}
		if ideal < 0 {
			warn("negative %s %d clamped to 0", ColIdealPerSession, ideal)
			ideal = 0
		}

		inst := ActivityInstance{
			Code:          code,
			Description:   cell(row, ColDescription),
			Owner:         cell(row, ColOwner),
			Location:      cell(row, ColLocation),
			MaxCapacity:   maxCap,
			IdealCapacity: ideal,
			Sessions:      sessions,
		}
		if raw := cell(row, ColPeriodCount); raw != "" {
			if declared, err := parseCount(raw); err == nil {
				inst.DeclaredPeriods = declared
				if declared != inst.Duration() {
					warn("%s says %d but %d sessions are listed", ColPeriodCount, declared, inst.Duration())
				}
			}
		}
		occurrences[code]++
		inst.ID = fmt.Sprintf("%s#%d", code, occurrences[code])
		instances = append(instances, inst)
	}
	return instances, warnings
}

func normalizePreferences(data export.Dataset, instances []ActivityInstance) ([]Student, []string, []Warning) {
	var warnings []Warning
	known := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		known[inst.Code] = struct{}{}
	}

	var codes []string
	for _, h := range data.Headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, identity := identityColumns[h]; identity {
			continue
		}
		codes = append(codes, h)
		if _, ok := known[h]; !ok {
			warnings = append(warnings, Warning{Table: TablePreferences, Row: 1, Subject: h, Message: "column does not match any activity code"})
		}
	}

	var (
		students []Student
		sequence = map[string]int{}
	)
	for i, row := range data.Rows {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		s := Student{
			LastName:   cell(row, ColLastName),
			FirstName:  cell(row, ColFirstName),
			ClassGroup: cell(row, ColClassGroup),
			Votes:      map[string]Vote{},
		}
		if s.LastName == "" && s.FirstName == "" && s.ClassGroup == "" {
			warnings = append(warnings, Warning{Table: TablePreferences, Row: line, Message: "student without identity, row skipped"})
			continue
		}
		// Sequenced by rendered prefix so ids stay unique when a name contains "_".
		base := fmt.Sprintf("%s_%s_%s", s.LastName, s.FirstName, s.ClassGroup)
		sequence[base]++
		s.Sequence = sequence[base]
		s.ID = fmt.Sprintf("%s_%d", base, s.Sequence)

		for _, code := range codes {
			raw := cell(row, code)
			vote, ok := parseVote(raw)
			if !ok {
				warnings = append(warnings, Warning{Table: TablePreferences, Row: line, Subject: s.ID, Message: fmt.Sprintf("invalid vote %q for %s treated as neutral", raw, code)})
			}
			if vote != VoteNeutral {
				s.Votes[code] = vote
			}
		}
		if raw := cell(row, ColPreferenceCount); raw != "" {
			if n, err := parseCount(raw); err == nil {
				s.DeclaredPreferences = n
			}
		}
		students = append(students, s)
	}
	return students, codes, warnings
}

func cell(row map[string]string, col string) string {
	return strings.TrimSpace(row[col])
}

func isBlankRow(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseCount reads a spreadsheet number and truncates it toward zero.
func parseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty value")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return int(math.Trunc(f)), nil
}

// parseVote accepts +1 and -1 in any numeric spelling. Blank and zero are
// neutral; anything else is neutral and reported as not ok.
func parseVote(raw string) (Vote, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VoteNeutral, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return VoteNeutral, false
	}
	switch f {
	case 1:
		return VotePrefer, true
	case -1:
		return VoteVeto, true
	case 0:
		return VoteNeutral, true
	default:
		return VoteNeutral, false
	}
}

func sortSessions(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Index < sessions[j].Index })
}
