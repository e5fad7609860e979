package planner

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-planner/pkg/export"
)

func warningMessages(ws []Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}

func TestNormalizeWeekFixture(t *testing.T) {
	acts, prefs := weekFixture()
	in, warnings, err := Normalize(acts, prefs, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, in.Instances, 5)
	ids := make([]string, len(in.Instances))
	for i, inst := range in.Instances {
		ids[i] = inst.ID
	}
	assert.Equal(t, []string{"ART#1", "SPORT#1", "ART#2", "MUSIC#1", "FILM#1"}, ids)

	sport := in.Instances[1]
	assert.Equal(t, []string{"Monday AM", "Monday PM"}, sport.SessionNames())
	assert.Equal(t, 2, sport.Duration())
	assert.Equal(t, "Monday AM", sport.StartSession().Name)

	require.Len(t, in.Students, 6)
	assert.Equal(t, "Adams_Ann_10A_1", in.Students[0].ID)
	assert.Equal(t, VotePrefer, in.Students[0].Vote("ART"))
	assert.Equal(t, VoteNeutral, in.Students[0].Vote("FILM"))
	assert.Equal(t, VoteVeto, in.Students[5].Vote("MUSIC"))
	assert.Equal(t, []string{"ART", "SPORT", "MUSIC", "FILM"}, in.Codes)
}

func TestNormalizeRowDefects(t *testing.T) {
	acts := activitiesTable(5,
		activityRow{code: "OK", max: "30.0", ideal: "-2", sessions: []string{"Monday AM", "Monday AM", "Funday"}},
		activityRow{code: "NOSESSION", max: "5", ideal: "5", sessions: []string{"Someday"}},
		activityRow{code: "BADCAP", max: "many", ideal: "5", sessions: []string{"Monday PM"}},
		activityRow{code: "ZERO", max: "0", ideal: "0", sessions: []string{"Monday PM"}},
		activityRow{code: "", max: "1", ideal: "1", sessions: []string{"Monday PM"}},
	)
	acts.Rows = append(acts.Rows, map[string]string{})

	prefs := preferencesTable([]string{"OK", "GHOST"},
		studentRow{"Lee", "Kim", "9A", map[string]string{"OK": "1.0", "GHOST": "yes"}},
		studentRow{"Lee", "Kim", "9A", map[string]string{"OK": "2"}},
		studentRow{"", "", "", map[string]string{"OK": "1"}},
	)

	in, warnings, err := Normalize(acts, prefs, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, in.Instances, 1)
	inst := in.Instances[0]
	assert.Equal(t, "OK#1", inst.ID)
	assert.Equal(t, 30, inst.MaxCapacity)
	assert.Equal(t, 0, inst.IdealCapacity)
	assert.Equal(t, []string{"Monday AM"}, inst.SessionNames())

	require.Len(t, in.Students, 2)
	assert.Equal(t, "Lee_Kim_9A_1", in.Students[0].ID)
	assert.Equal(t, "Lee_Kim_9A_2", in.Students[1].ID)
	assert.Equal(t, VotePrefer, in.Students[0].Vote("OK"))
	assert.Equal(t, VoteNeutral, in.Students[1].Vote("OK"))

	msgs := warningMessages(warnings)
	assert.Contains(t, msgs, `Activities row 2 (OK): unknown session "Funday" in Session_3 ignored`)
	assert.Contains(t, msgs, "Activities row 2 (OK): negative IdealPerSession -2 clamped to 0")
	assert.Contains(t, msgs, `Activities row 3 (NOSESSION): unknown session "Someday" in Session_1 ignored`)
	assert.Contains(t, msgs, "Activities row 3 (NOSESSION): no recognized session, row skipped")
	assert.Contains(t, msgs, `Activities row 4 (BADCAP): invalid MaxPerSession: "many" is not a number, row skipped`)
	assert.Contains(t, msgs, "Activities row 5 (ZERO): MaxPerSession must be positive, got 0, row skipped")
	assert.Contains(t, msgs, "Activities row 6: empty activity code, row skipped")
	assert.Contains(t, msgs, "Preferences row 1 (GHOST): column does not match any activity code")
	assert.Contains(t, msgs, `Preferences row 2 (Lee_Kim_9A_1): invalid vote "yes" for GHOST treated as neutral`)
	assert.Contains(t, msgs, `Preferences row 3 (Lee_Kim_9A_2): invalid vote "2" for OK treated as neutral`)
	assert.Contains(t, msgs, "Preferences row 4: student without identity, row skipped")
	assert.Len(t, msgs, 11)
}

func TestNormalizeStudentIDsStayUniqueWithUnderscores(t *testing.T) {
	acts := activitiesTable(5, activityRow{
		code: "CAMP", max: "5", ideal: "2",
		sessions: []string{"Monday AM", "Monday PM", "Tuesday AM", "Tuesday PM", "Wednesday AM"},
	})
	prefs := preferencesTable([]string{"CAMP"},
		studentRow{"Van_Dyke", "Ann", "10A", nil},
		studentRow{"Van", "Dyke_Ann", "10A", nil},
		studentRow{"Van_Dyke", "Ann", "10A", nil},
	)

	in, _, err := Normalize(acts, prefs, DefaultOptions())
	require.NoError(t, err)
	ids := make([]string, 0, len(in.Students))
	for _, s := range in.Students {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"Van_Dyke_Ann_10A_1", "Van_Dyke_Ann_10A_2", "Van_Dyke_Ann_10A_3"}, ids)

	res := run(t, DefaultOptions(), acts, prefs).Result
	require.Equal(t, StatusOptimal, res.Status)
	assert.Len(t, res.Schedules, 3)
}

func TestNormalizeSchemaErrors(t *testing.T) {
	acts := export.Dataset{Headers: []string{ColCode, ColMaxPerSession, "Session_1"}}
	prefs := preferencesTable(nil)

	_, _, err := Normalize(acts, prefs, DefaultOptions())
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, TableActivities, schemaErr.Table)
	assert.Equal(t, []string{ColIdealPerSession, "Session_2", "Session_3", "Session_4", "Session_5"}, schemaErr.Missing)

	acts, _ = weekFixture()
	_, _, err = Normalize(acts, export.Dataset{Headers: []string{ColLastName}}, DefaultOptions())
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, TablePreferences, schemaErr.Table)
	assert.Equal(t, []string{ColFirstName, ColClassGroup}, schemaErr.Missing)
	assert.EqualError(t, err, "Preferences table is missing required columns: FirstName, ClassGroup")
}

func TestNormalizeEmptyInput(t *testing.T) {
	acts := activitiesTable(5, activityRow{code: "X", max: "1", ideal: "1", sessions: []string{"Nowhere"}})
	prefs := preferencesTable([]string{"X"}, neutralStudents(1)...)

	_, warnings, err := Normalize(acts, prefs, DefaultOptions())
	var emptyErr *EmptyInputError
	require.True(t, errors.As(err, &emptyErr))
	assert.Equal(t, "activity instances", emptyErr.What)
	assert.NotEmpty(t, warnings)

	acts, _ = weekFixture()
	_, _, err = Normalize(acts, preferencesTable([]string{"ART"}), DefaultOptions())
	require.True(t, errors.As(err, &emptyErr))
	assert.Equal(t, "students", emptyErr.What)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	acts, prefs := weekFixture()
	first, _, err := Normalize(acts, prefs, DefaultOptions())
	require.NoError(t, err)

	second, warnings, err := Normalize(ActivitiesDataset(first), PreferencesDataset(first), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	opts := []cmp.Option{cmpopts.IgnoreFields(Input{}, "Calendar"), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(first, second, opts...); diff != "" {
		t.Fatalf("re-normalized input differs (-first +second):\n%s", diff)
	}
}

func TestParseVote(t *testing.T) {
	cases := map[string]struct {
		vote Vote
		ok   bool
	}{
		"":     {VoteNeutral, true},
		"1":    {VotePrefer, true},
		"+1":   {VotePrefer, true},
		"1.0":  {VotePrefer, true},
		"-1":   {VoteVeto, true},
		"0":    {VoteNeutral, true},
		"0.5":  {VoteNeutral, false},
		"-3":   {VoteNeutral, false},
		"oui":  {VoteNeutral, false},
		" -1 ": {VoteVeto, true},
	}
	for raw, want := range cases {
		vote, ok := parseVote(raw)
		assert.Equal(t, want.vote, vote, raw)
		assert.Equal(t, want.ok, ok, raw)
	}
}
