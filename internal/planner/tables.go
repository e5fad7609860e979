package planner

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-activity-planner/pkg/export"
)

// Output table names.
const (
	TableStudentSchedule = "StudentSchedule"
	TableActivityRoster  = "ActivityRoster"
	TableStatistics      = "Statistics"
)

// Output table headers and labels.
const (
	ColField        = "Field"
	ColStatistic    = "Statistic"
	ColValue        = "Value"
	RosterSeparator = "--- Students ---"
)

var rosterLabels = []string{
	"Code", "Description", "Owner", "Location", "StartSession", "SessionsCovered",
	"Duration", "MaxCapacity", "IdealCapacity", "AssignedCount", RosterSeparator,
}

// StatPair is one labelled statistic.
type StatPair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ActivityHeaders is the activities table schema for the calendar.
func ActivityHeaders(cal *Calendar) []string {
	headers := []string{ColCode, ColDescription, ColOwner, ColLocation, ColPeriodCount, ColMaxPerSession, ColIdealPerSession}
	return append(headers, cal.SessionColumns()...)
}

// PreferenceHeaders is the preferences table schema for the given codes.
func PreferenceHeaders(codes []string) []string {
	return append([]string{ColLastName, ColFirstName, ColClassGroup, ColPreferenceCount}, codes...)
}

// TemplateDatasets returns empty activities and preferences tables for the
// configured calendar.
func TemplateDatasets(opts Options) (export.Dataset, export.Dataset, error) {
	cal, err := opts.Calendar()
	if err != nil {
		return export.Dataset{}, export.Dataset{}, err
	}
	return export.Dataset{Headers: ActivityHeaders(cal)}, export.Dataset{Headers: PreferenceHeaders(nil)}, nil
}

// ActivitiesDataset renders canonical instances in the input schema.
func ActivitiesDataset(in *Input) export.Dataset {
	data := export.Dataset{Headers: ActivityHeaders(in.Calendar)}
	for _, inst := range in.Instances {
		row := map[string]string{
			ColCode:            inst.Code,
			ColDescription:     inst.Description,
			ColOwner:           inst.Owner,
			ColLocation:        inst.Location,
			ColMaxPerSession:   strconv.Itoa(inst.MaxCapacity),
			ColIdealPerSession: strconv.Itoa(inst.IdealCapacity),
		}
		if inst.DeclaredPeriods != 0 {
			row[ColPeriodCount] = strconv.Itoa(inst.DeclaredPeriods)
		}
		for i, sess := range inst.Sessions {
			row[sessionColumn(i)] = sess.Name
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// PreferencesDataset renders canonical students in the input schema.
func PreferencesDataset(in *Input) export.Dataset {
	data := export.Dataset{Headers: PreferenceHeaders(in.Codes)}
	for _, st := range in.Students {
		row := map[string]string{
			ColLastName:   st.LastName,
			ColFirstName:  st.FirstName,
			ColClassGroup: st.ClassGroup,
		}
		if st.DeclaredPreferences != 0 {
			row[ColPreferenceCount] = strconv.Itoa(st.DeclaredPreferences)
		}
		for code, vote := range st.Votes {
			row[code] = strconv.Itoa(int(vote))
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// StudentScheduleDataset renders one row per student with the activity code
// held in each session.
func StudentScheduleDataset(res *Result) export.Dataset {
	data := export.Dataset{Headers: append([]string{ColLastName, ColFirstName, ColClassGroup}, res.Sessions...)}
	for _, sched := range res.Schedules {
		row := map[string]string{
			ColLastName:   sched.Student.LastName,
			ColFirstName:  sched.Student.FirstName,
			ColClassGroup: sched.Student.ClassGroup,
		}
		for i, code := range sched.BySession {
			row[res.Sessions[i]] = code
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// RosterColumn is the roster table header of an instance.
func RosterColumn(inst ActivityInstance) string {
	return "Activity_" + inst.ID
}

// ActivityRosterDataset renders one column per instance with the fixed row
// labels followed by Student_1..Student_K.
func ActivityRosterDataset(res *Result) export.Dataset {
	data := export.Dataset{Headers: []string{ColField}}
	if len(res.Rosters) == 0 {
		return data
	}
	longest := 0
	for _, r := range res.Rosters {
		data.Headers = append(data.Headers, RosterColumn(r.Instance))
		if r.Assigned() > longest {
			longest = r.Assigned()
		}
	}

	labels := append([]string(nil), rosterLabels...)
	for k := 1; k <= longest; k++ {
		labels = append(labels, fmt.Sprintf("Student_%d", k))
	}
	rows := make([]map[string]string, len(labels))
	for i, label := range labels {
		rows[i] = map[string]string{ColField: label}
	}
	for _, r := range res.Rosters {
		col := RosterColumn(r.Instance)
		inst := r.Instance
		values := []string{
			inst.Code,
			inst.Description,
			inst.Owner,
			inst.Location,
			inst.StartSession().Name,
			strings.Join(inst.SessionNames(), ", "),
			strconv.Itoa(inst.Duration()),
			strconv.Itoa(inst.MaxCapacity),
			strconv.Itoa(inst.IdealCapacity),
			strconv.Itoa(r.Assigned()),
			"",
		}
		for _, st := range r.Students {
			values = append(values, st.DisplayName())
		}
		for i, v := range values {
			rows[i][col] = v
		}
	}
	data.Rows = rows
	return data
}

// StatisticsPairs lists the statistics in display order. Non-optimal results
// only carry the solver status and the classification.
func StatisticsPairs(res *Result) []StatPair {
	pairs := []StatPair{{"Solver status", string(res.Status)}}
	if !res.Optimal() || res.Stats == nil {
		return append(pairs, StatPair{"No optimal solution found", res.Classification})
	}
	s := res.Stats
	pairs = append(pairs,
		StatPair{"Objective value", formatFloat(s.Objective)},
		StatPair{"  Preference cost (-)", formatFloat(s.PreferenceCost)},
		StatPair{"  Veto cost (+)", formatFloat(s.VetoCost)},
		StatPair{"  Deviation cost (+)", formatFloat(s.DeviationCost)},
		StatPair{"  Extra neutral cost (+)", formatFloat(s.NeutralExcessCost)},
		StatPair{"--- Assignments ---", ""},
		StatPair{"Total assignments", strconv.Itoa(s.TotalAssignments)},
		StatPair{"Student-session slots", strconv.Itoa(s.StudentSessionSlots)},
		StatPair{"Preference assignments", strconv.Itoa(s.PreferenceCount)},
		StatPair{"Veto assignments", strconv.Itoa(s.VetoCount)},
		StatPair{"Neutral assignments", strconv.Itoa(s.NeutralCount)},
		StatPair{"Preference rate", formatRate(s.PreferenceRate, s.TotalAssignments)},
		StatPair{"Veto rate", formatRate(s.VetoRate, s.TotalAssignments)},
		StatPair{"Neutral rate", formatRate(s.NeutralRate, s.TotalAssignments)},
		StatPair{"--- Activity instances ---", ""},
		StatPair{"Total deviation", strconv.FormatFloat(s.TotalDeviation, 'f', 2, 64)},
		StatPair{"Average deviation per instance", strconv.FormatFloat(s.AverageDeviation, 'f', 2, 64)},
		StatPair{"Total ideal headcount", strconv.Itoa(s.TotalIdeal)},
		StatPair{"--- Neutral placements per student ---", ""},
	)
	for k, n := range s.NeutralHistogram {
		pairs = append(pairs, StatPair{fmt.Sprintf("Students with %d neutral", k), strconv.Itoa(n)})
	}
	pairs = append(pairs, StatPair{"--- Preferences satisfied per student ---", ""})
	for k, n := range s.PreferenceHistogram {
		pairs = append(pairs, StatPair{fmt.Sprintf("Students with %d preferences", k), strconv.Itoa(n)})
	}
	return pairs
}

// StatisticsDataset renders StatisticsPairs as a two-column table.
func StatisticsDataset(res *Result) export.Dataset {
	data := export.Dataset{Headers: []string{ColStatistic, ColValue}}
	for _, p := range StatisticsPairs(res) {
		data.Rows = append(data.Rows, map[string]string{ColStatistic: p.Label, ColValue: p.Value})
	}
	return data
}

func formatFloat(v float64) string {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRate(rate float64, total int) string {
	if total == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", rate*100)
}
