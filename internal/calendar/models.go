// Package calendar provides the loadshedding calendar domain: parsing of the
// upstream CSV feeds, normalization of recurring schedules and the area queries
// served by the API.
package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// PowerOutage is a dated outage event for a single area.
// Finish may be earlier in the day than Start when the outage spans midnight.
type PowerOutage struct {
	AreaName string    `json:"area_name"`
	Stage    int       `json:"stage"`
	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finsh"`
	Source   string    `json:"source"`
}

// TimeOfDay is a wall-clock time without a date, stored as minutes since midnight.
type TimeOfDay int

// NewTimeOfDay creates a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:00", t.Hour(), t.Minute())
}

// MarshalJSON implements json.Marshaler.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// RecurrenceKind identifies how a recurring outage repeats.
type RecurrenceKind string

const (
	RecurrenceWeekly   RecurrenceKind = "Weekly"
	RecurrenceMonthly  RecurrenceKind = "Monthly"
	RecurrencePeriodic RecurrenceKind = "Periodic"
)

// Recurrence describes the cycle a RecurringOutage repeats on.
// Offset and PeriodDays are only meaningful for RecurrencePeriodic.
type Recurrence struct {
	Kind RecurrenceKind

	// Offset is day 1 of the first cycle.
	Offset time.Time

	// PeriodDays is the length of one cycle in days.
	PeriodDays int
}

// MarshalJSON writes Weekly and Monthly as bare strings and Periodic as an
// object keyed by the kind.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	if r.Kind != RecurrencePeriodic {
		return json.Marshal(string(r.Kind))
	}
	return json.Marshal(map[string]periodicJSON{
		string(RecurrencePeriodic): {
			Offset:     r.Offset.Format(dateLayout),
			PeriodDays: r.PeriodDays,
		},
	})
}

type periodicJSON struct {
	Offset     string `json:"offset"`
	PeriodDays int    `json:"period_days"`
}

// RecurringOutage is a window during which outages of a given stage may occur.
//
// Day1OfRecurrence is the day-of-week (1 = Monday) for weekly recurrences,
// the day-of-month for monthly ones and the day of the cycle for periodic ones.
type RecurringOutage struct {
	StartTime        TimeOfDay  `json:"start_time"`
	FinishTime       TimeOfDay  `json:"finsh_time"`
	Stage            int        `json:"stage"`
	Recurrence       Recurrence `json:"recurrence"`
	Day1OfRecurrence int        `json:"day1_of_recurrence"`
}

// RecurringSchedule is the full set of recurring outages for an area.
type RecurringSchedule struct {
	ID          int64             `json:"id"`
	Outages     []RecurringOutage `json:"outages"`
	Source      []string          `json:"source"`
	Info        []string          `json:"info"`
	LastUpdated *time.Time        `json:"last_updated"`
	ValidFrom   *time.Time        `json:"valid_from"`
	ValidUntil  *time.Time        `json:"valid_until"`
}

// NewRecurringSchedule wraps outages in a schedule with empty metadata.
func NewRecurringSchedule(outages []RecurringOutage) RecurringSchedule {
	if outages == nil {
		outages = []RecurringOutage{}
	}
	return RecurringSchedule{
		Outages: outages,
		Source:  []string{},
		Info:    []string{},
	}
}

// Province is a South African province.
type Province string

const (
	ProvinceEasternCape  Province = "EasternCape"
	ProvinceFreeState    Province = "FreeState"
	ProvinceGauteng      Province = "Gauteng"
	ProvinceKwaZuluNatal Province = "KwaZuluNatal"
	ProvinceLimpopo      Province = "Limpopo"
	ProvinceMpumalanga   Province = "Mpumalanga"
	ProvinceNorthWest    Province = "NorthWest"
	ProvinceNorthernCape Province = "NorthernCape"
	ProvinceWesternCape  Province = "WesternCape"
)

// Coords is a point on the earth.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ContiguousRegion is a fully connected region described by its boundary.
type ContiguousRegion struct {
	Boundary []Coords `json:"boundary"`
}

// Area is a named location with its own outage schedule.
type Area struct {
	ID           int64              `json:"id"`
	Schedule     int64              `json:"schedule"`
	Name         string             `json:"name"`
	Aliases      []string           `json:"aliases"`
	Province     Province           `json:"province"`
	Municipality *string            `json:"municipality"`
	Coords       []ContiguousRegion `json:"coords"`
}

// NewNamedArea returns an Area with only its name populated.
func NewNamedArea(name string) Area {
	return Area{
		Name:    name,
		Aliases: []string{},
		Coords:  []ContiguousRegion{},
	}
}

// SearchResult pairs a match score (higher is better) with its payload.
type SearchResult[T any] struct {
	Score  int `json:"score"`
	Result T   `json:"result"`
}

// Less orders results by score only.
func (r SearchResult[T]) Less(other SearchResult[T]) bool {
	return r.Score < other.Score
}

// Equal compares results by score only.
func (r SearchResult[T]) Equal(other SearchResult[T]) bool {
	return r.Score == other.Score
}
