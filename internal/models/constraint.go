package models

import (
	"fmt"
	"time"
)

// ConstraintKind tags a constraint variant or a violation category.
type ConstraintKind string

const (
	ConstraintNoPlayDayOfWeek  ConstraintKind = "no_play_day_of_week"
	ConstraintNoPlayDateRange  ConstraintKind = "no_play_date_range"
	ConstraintProtectedRivalry ConstraintKind = "protected_rivalry"
	ConstraintVenueConflict    ConstraintKind = "venue_conflict"
	ConstraintLockedGame       ConstraintKind = "locked_game"

	// Violation-only kinds.
	ConstraintDoubleBooking ConstraintKind = "double_booking"
	ConstraintUnassigned    ConstraintKind = "unassigned"
	ConstraintOutOfSeason   ConstraintKind = "out_of_season"
)

// HardConstraintKinds lists violation categories in reporting order.
var HardConstraintKinds = []ConstraintKind{
	ConstraintNoPlayDayOfWeek,
	ConstraintNoPlayDateRange,
	ConstraintVenueConflict,
	ConstraintLockedGame,
	ConstraintDoubleBooking,
	ConstraintUnassigned,
	ConstraintOutOfSeason,
}

// Constraint is one scheduling rule. Hard constraints must hold in a valid schedule.
type Constraint interface {
	Kind() ConstraintKind
	Hard() bool
}

// NoPlayDayOfWeek forbids a team from playing on a weekday.
type NoPlayDayOfWeek struct {
	TeamID  string       `json:"teamId"`
	Weekday time.Weekday `json:"weekday"`
}

func (NoPlayDayOfWeek) Kind() ConstraintKind { return ConstraintNoPlayDayOfWeek }
func (NoPlayDayOfWeek) Hard() bool           { return true }

// NoPlayDateRange forbids a team from playing inside an inclusive date range.
type NoPlayDateRange struct {
	TeamID string    `json:"teamId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (NoPlayDateRange) Kind() ConstraintKind { return ConstraintNoPlayDateRange }
func (NoPlayDateRange) Hard() bool           { return true }

// Covers reports whether day falls inside the range.
func (r NoPlayDateRange) Covers(day time.Time) bool {
	day = DateOnly(day)
	return !day.Before(DateOnly(r.Start)) && !day.After(DateOnly(r.End))
}

// ProtectedRivalry asks for a marquee pairing. Higher priority weighs more.
type ProtectedRivalry struct {
	TeamA    string `json:"teamA"`
	TeamB    string `json:"teamB"`
	Priority int    `json:"priority"`
}

func (ProtectedRivalry) Kind() ConstraintKind { return ConstraintProtectedRivalry }
func (ProtectedRivalry) Hard() bool           { return false }

// Involves reports whether the rivalry concerns the unordered pair a, b.
func (r ProtectedRivalry) Involves(a, b string) bool {
	return (r.TeamA == a && r.TeamB == b) || (r.TeamA == b && r.TeamB == a)
}

// VenueConflict marks a venue unavailable inside an inclusive date range.
type VenueConflict struct {
	Venue  string    `json:"venue"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

func (VenueConflict) Kind() ConstraintKind { return ConstraintVenueConflict }
func (VenueConflict) Hard() bool           { return true }

// Covers reports whether day falls inside the window.
func (v VenueConflict) Covers(day time.Time) bool {
	day = DateOnly(day)
	return !day.Before(DateOnly(v.Start)) && !day.After(DateOnly(v.End))
}

// LockedGame is an externally fixed fixture the optimizer must not alter.
type LockedGame struct {
	Home string      `json:"home"`
	Away string      `json:"away"`
	Date time.Time   `json:"date"`
	Type MatchupType `json:"type,omitempty"`
}

func (LockedGame) Kind() ConstraintKind { return ConstraintLockedGame }
func (LockedGame) Hard() bool           { return true }

// Violation is one counted breach of a hard constraint.
type Violation struct {
	Kind    ConstraintKind `json:"kind"`
	TeamID  string         `json:"teamId,omitempty"`
	Venue   string         `json:"venue,omitempty"`
	Matchup int            `json:"matchup"`
	Date    time.Time      `json:"date,omitempty"`
}

// String renders the violation for logs and reports.
func (v Violation) String() string {
	switch {
	case v.TeamID != "":
		return fmt.Sprintf("%s: team %s on %s (matchup %d)", v.Kind, v.TeamID, v.Date.Format(time.DateOnly), v.Matchup)
	case v.Venue != "":
		return fmt.Sprintf("%s: venue %s on %s (matchup %d)", v.Kind, v.Venue, v.Date.Format(time.DateOnly), v.Matchup)
	default:
		return fmt.Sprintf("%s (matchup %d)", v.Kind, v.Matchup)
	}
}
