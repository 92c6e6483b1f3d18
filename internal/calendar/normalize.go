package calendar

import "fmt"

// Normalize converts a raw schedule row into a RecurringOutage.
// Range violations return a *ValidationError; badly formatted times or dates
// return a *ParseError.
func Normalize(raw RawRecord) (RecurringOutage, error) {
	switch r := raw.(type) {
	case RawWeekly:
		return normalizeWeekly(r)
	case RawMonthly:
		return normalizeMonthly(r)
	case RawPeriodic:
		return normalizePeriodic(r)
	default:
		return RecurringOutage{}, fmt.Errorf("normalize: unsupported record %T", raw)
	}
}

// NormalizeAll normalizes every row, stopping at the first failure.
func NormalizeAll(raws []RawRecord) ([]RecurringOutage, error) {
	outages := make([]RecurringOutage, 0, len(raws))
	for i, raw := range raws {
		outage, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("schedule row %d: %w", i+1, err)
		}
		outages = append(outages, outage)
	}
	return outages, nil
}

func normalizeWeekly(raw RawWeekly) (RecurringOutage, error) {
	if raw.DayOfWeek < 1 || raw.DayOfWeek > 7 {
		return RecurringOutage{}, &ValidationError{
			Field: colDayOfWeek,
			Value: raw.DayOfWeek,
			Msg:   "day of the week must be one of 1, 2, 3, 4, 5, 6, 7",
		}
	}
	return newRecurringOutage(raw.RawWindow, Recurrence{Kind: RecurrenceWeekly}, raw.DayOfWeek)
}

func normalizeMonthly(raw RawMonthly) (RecurringOutage, error) {
	if raw.DateOfMonth < 1 || raw.DateOfMonth > 31 {
		return RecurringOutage{}, &ValidationError{
			Field: colDateOfMonth,
			Value: raw.DateOfMonth,
			Msg:   "date of month must be in the range [1, 31]",
		}
	}
	return newRecurringOutage(raw.RawWindow, Recurrence{Kind: RecurrenceMonthly}, raw.DateOfMonth)
}

func normalizePeriodic(raw RawPeriodic) (RecurringOutage, error) {
	if raw.PeriodOfCycle < 1 {
		return RecurringOutage{}, &ValidationError{
			Field: colPeriodOfCycle,
			Value: raw.PeriodOfCycle,
			Msg:   "period of the cycle must be at least 1",
		}
	}
	if raw.DayOfCycle < 1 || raw.DayOfCycle > raw.PeriodOfCycle {
		return RecurringOutage{}, &ValidationError{
			Field: colDayOfCycle,
			Value: raw.DayOfCycle,
			Msg:   fmt.Sprintf("day of the cycle must be in the range [1, %d]", raw.PeriodOfCycle),
		}
	}

	offset, err := parseDate(colStartOfCycle, raw.StartOfCycle)
	if err != nil {
		return RecurringOutage{}, err
	}

	recurrence := Recurrence{
		Kind:       RecurrencePeriodic,
		Offset:     offset,
		PeriodDays: raw.PeriodOfCycle,
	}
	return newRecurringOutage(raw.RawWindow, recurrence, raw.DayOfCycle)
}

func newRecurringOutage(w RawWindow, recurrence Recurrence, day int) (RecurringOutage, error) {
	start, err := parseTimeOfDay(colStartTime, w.StartTime)
	if err != nil {
		return RecurringOutage{}, err
	}
	finish, err := parseTimeOfDay(colFinshTime, w.FinishTime)
	if err != nil {
		return RecurringOutage{}, err
	}

	return RecurringOutage{
		StartTime:        start,
		FinishTime:       finish,
		Stage:            w.Stage,
		Recurrence:       recurrence,
		Day1OfRecurrence: day,
	}, nil
}
