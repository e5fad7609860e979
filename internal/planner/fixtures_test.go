package planner

import (
	"strconv"

	"github.com/noah-isme/sma-activity-planner/pkg/export"
)

type activityRow struct {
	code     string
	max      string
	ideal    string
	sessions []string
}

func activitiesTable(sessions int, rows ...activityRow) export.Dataset {
	headers := []string{ColCode, ColDescription, ColOwner, ColLocation, ColPeriodCount, ColMaxPerSession, ColIdealPerSession}
	for i := 1; i <= sessions; i++ {
		headers = append(headers, "Session_"+strconv.Itoa(i))
	}
	data := export.Dataset{Headers: headers}
	for _, r := range rows {
		row := map[string]string{
			ColCode:            r.code,
			ColDescription:     r.code + " workshop",
			ColMaxPerSession:   r.max,
			ColIdealPerSession: r.ideal,
		}
		for i, s := range r.sessions {
			row["Session_"+strconv.Itoa(i+1)] = s
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

type studentRow struct {
	last, first, class string
	votes              map[string]string
}

func preferencesTable(codes []string, rows ...studentRow) export.Dataset {
	data := export.Dataset{Headers: append([]string{ColLastName, ColFirstName, ColClassGroup, ColPreferenceCount}, codes...)}
	for _, r := range rows {
		row := map[string]string{ColLastName: r.last, ColFirstName: r.first, ColClassGroup: r.class}
		for code, v := range r.votes {
			row[code] = v
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func neutralStudents(n int) []studentRow {
	rows := make([]studentRow, n)
	for i := range rows {
		rows[i] = studentRow{last: "Student", first: strconv.Itoa(i + 1), class: "10A"}
	}
	return rows
}

func threeSessionOptions() Options {
	opts := DefaultOptions()
	opts.Sessions = []string{"S1", "S2", "S3"}
	return opts
}

// weekFixture is a feasible five-session week for six students: two blocks
// of two sessions and a single Wednesday slot.
func weekFixture() (export.Dataset, export.Dataset) {
	acts := activitiesTable(5,
		activityRow{code: "ART", max: "3", ideal: "3", sessions: []string{"Monday AM", "Monday PM"}},
		activityRow{code: "SPORT", max: "3", ideal: "3", sessions: []string{"Monday PM", "Monday AM"}},
		activityRow{code: "ART", max: "3", ideal: "3", sessions: []string{"Tuesday AM", "Tuesday PM"}},
		activityRow{code: "MUSIC", max: "3", ideal: "3", sessions: []string{"Tuesday AM", "Tuesday PM"}},
		activityRow{code: "FILM", max: "6", ideal: "6", sessions: []string{"Wednesday AM"}},
	)
	codes := []string{"ART", "SPORT", "MUSIC", "FILM"}
	prefs := preferencesTable(codes,
		studentRow{"Adams", "Ann", "10A", map[string]string{"ART": "1"}},
		studentRow{"Baker", "Ben", "10A", map[string]string{"ART": "1"}},
		studentRow{"Clark", "Cleo", "10B", map[string]string{"ART": "1"}},
		studentRow{"Davis", "Dan", "10B", map[string]string{"SPORT": "1"}},
		studentRow{"Evans", "Eve", "10C", map[string]string{"SPORT": "1"}},
		studentRow{"Fox", "Finn", "10C", map[string]string{"SPORT": "1", "MUSIC": "-1"}},
	)
	return acts, prefs
}
