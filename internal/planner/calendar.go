package planner

import (
	"fmt"
	"strings"
)

// Session is one time slot of the event.
type Session struct {
	Name  string
	Index int
}

// Calendar is the ordered, immutable list of sessions of an event.
type Calendar struct {
	sessions []Session
	byName   map[string]Session
}

// NewCalendar validates and indexes session names. Names are trimmed and
// must be unique and non-empty.
func NewCalendar(names []string) (*Calendar, error) {
	if len(names) == 0 {
		return nil, &ModelConstructionError{Reason: "calendar requires at least one session"}
	}
	c := &Calendar{
		sessions: make([]Session, 0, len(names)),
		byName:   make(map[string]Session, len(names)),
	}
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, &ModelConstructionError{Reason: fmt.Sprintf("session %d has an empty name", i+1)}
		}
		if _, dup := c.byName[name]; dup {
			return nil, &ModelConstructionError{Reason: fmt.Sprintf("session %q is listed twice", name)}
		}
		s := Session{Name: name, Index: i}
		c.sessions = append(c.sessions, s)
		c.byName[name] = s
	}
	return c, nil
}

// Len is the total number of sessions in the event.
func (c *Calendar) Len() int {
	return len(c.sessions)
}

// Sessions returns a copy of the ordered sessions.
func (c *Calendar) Sessions() []Session {
	return append([]Session(nil), c.sessions...)
}

// Names returns the ordered session names.
func (c *Calendar) Names() []string {
	names := make([]string, len(c.sessions))
	for i, s := range c.sessions {
		names[i] = s.Name
	}
	return names
}

// Lookup resolves a session by name.
func (c *Calendar) Lookup(name string) (Session, bool) {
	s, ok := c.byName[strings.TrimSpace(name)]
	return s, ok
}

// At returns the session at the given index.
func (c *Calendar) At(index int) (Session, bool) {
	if index < 0 || index >= len(c.sessions) {
		return Session{}, false
	}
	return c.sessions[index], true
}

// Contains reports whether s belongs to this calendar.
func (c *Calendar) Contains(s Session) bool {
	got, ok := c.At(s.Index)
	return ok && got.Name == s.Name
}

// SessionColumns returns the session reference column headers
// (Session_1..Session_N).
func (c *Calendar) SessionColumns() []string {
	cols := make([]string, len(c.sessions))
	for i := range c.sessions {
		cols[i] = sessionColumn(i)
	}
	return cols
}

func sessionColumn(i int) string {
	return fmt.Sprintf("Session_%d", i+1)
}
