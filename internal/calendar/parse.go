package calendar

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	timeLayout = "15:04"
	dateLayout = "2006-01-02"

	// defaultCyclePeriod applies to periodic schedules without a period_of_cycle column.
	defaultCyclePeriod = 20
)

// Outage feed columns.
const (
	colAreaName = "area_name"
	colStage    = "stage"
	colStart    = "start"
	colFinsh    = "finsh"
	colFinish   = "finish"
	colSource   = "source"
)

// Schedule feed columns.
const (
	colStartTime       = "start_time"
	colFinshTime       = "finsh_time"
	colFinishTime      = "finish_time"
	colDateOfMonth     = "date_of_month"
	colDayOfWeek       = "day_of_week"
	colDayOf20DayCycle = "day_of_20_day_cycle"
	colDayOfCycle      = "day_of_cycle"
	colPeriodOfCycle   = "period_of_cycle"
	colStartOfCycle    = "start_of_cycle"
)

// RawRecord is one undecoded row of a schedule feed. The concrete type is
// chosen by the feed's header row and is one of RawWeekly, RawMonthly or
// RawPeriodic.
type RawRecord interface {
	rawRecord()
}

// RawWindow holds the columns shared by every schedule shape.
type RawWindow struct {
	StartTime  string
	FinishTime string
	Stage      int
}

// RawWeekly is a window repeating on the same weekday, Monday being 1.
type RawWeekly struct {
	RawWindow
	DayOfWeek int
}

// RawMonthly is a window repeating on the same date every month.
type RawMonthly struct {
	RawWindow
	DateOfMonth int
}

// RawPeriodic is a window repeating every PeriodOfCycle days, counted from StartOfCycle.
type RawPeriodic struct {
	RawWindow
	DayOfCycle    int
	PeriodOfCycle int
	StartOfCycle  string
}

func (RawWeekly) rawRecord()   {}
func (RawMonthly) rawRecord()  {}
func (RawPeriodic) rawRecord() {}

// header maps column names to their index in a record.
type header struct {
	names []string
	index map[string]int
}

func readHeader(cr *csv.Reader) (*header, error) {
	names, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Line: 1, Msg: "feed is empty"}
	}
	if err != nil {
		return nil, &ParseError{Line: 1, Msg: "couldn't read headers", Err: err}
	}

	h := &header{names: make([]string, len(names)), index: make(map[string]int, len(names))}
	for i, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		h.names[i] = name
		h.index[name] = i
	}
	return h, nil
}

func (h *header) has(col string) bool {
	_, ok := h.index[col]
	return ok
}

// pick returns the first of cols present in the header.
func (h *header) pick(cols ...string) (string, bool) {
	for _, col := range cols {
		if h.has(col) {
			return col, true
		}
	}
	return "", false
}

func (h *header) require(cols ...string) error {
	for _, col := range cols {
		if !h.has(col) {
			return &ParseError{Line: 1, Msg: fmt.Sprintf("missing column %q in headers %v", col, h.names)}
		}
	}
	return nil
}

// row is a record bound to its header and line for field lookups.
type row struct {
	h      *header
	line   int
	record []string
}

func (r row) str(col string) (string, error) {
	i, ok := r.h.index[col]
	if !ok || i >= len(r.record) {
		return "", &ParseError{Line: r.line, Field: col, Msg: "missing value"}
	}
	return strings.TrimSpace(r.record[i]), nil
}

func (r row) integer(col string) (int, error) {
	s, err := r.str(col)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Line: r.line, Field: col, Msg: fmt.Sprintf("%q is not an integer", s)}
	}
	return n, nil
}

func (r row) timestamp(col string) (time.Time, error) {
	s, err := r.str(col)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ParseError{Line: r.line, Field: col, Msg: fmt.Sprintf("%q is not an RFC 3339 timestamp", s)}
	}
	return t, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// readRows calls fn for each data record. CSV syntax errors on a single record
// are passed to onBad; any other read error aborts.
func readRows(cr *csv.Reader, h *header, fn func(row) error, onBad func(line int, err error) error) error {
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				if badErr := onBad(csvErr.StartLine, err); badErr != nil {
					return badErr
				}
				continue
			}
			return &ParseError{Msg: "read feed", Err: err}
		}
		if isBlank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		if err := fn(row{h: h, line: line, record: record}); err != nil {
			return err
		}
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParseOutages decodes the outage feed. Malformed rows are skipped and
// returned as RowErrors; a missing column or unreadable feed fails the batch.
func ParseOutages(r io.Reader) ([]PowerOutage, []RowError, error) {
	cr := newCSVReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}
	if err := h.require(colAreaName, colStage, colStart, colSource); err != nil {
		return nil, nil, err
	}
	finishCol, ok := h.pick(colFinsh, colFinish)
	if !ok {
		return nil, nil, &ParseError{Line: 1, Msg: fmt.Sprintf("missing column %q in headers %v", colFinsh, h.names)}
	}

	outages := []PowerOutage{}
	var rowErrs []RowError

	err = readRows(cr, h,
		func(rw row) error {
			outage, err := parseOutageRow(rw, finishCol)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Line: rw.line, Err: err})
				return nil
			}
			outages = append(outages, outage)
			return nil
		},
		func(line int, err error) error {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			return nil
		},
	)
	if err != nil {
		return nil, rowErrs, err
	}

	return outages, rowErrs, nil
}

func parseOutageRow(rw row, finishCol string) (PowerOutage, error) {
	area, err := rw.str(colAreaName)
	if err != nil {
		return PowerOutage{}, err
	}
	if area == "" {
		return PowerOutage{}, &ParseError{Line: rw.line, Field: colAreaName, Msg: "empty area name"}
	}
	stage, err := rw.integer(colStage)
	if err != nil {
		return PowerOutage{}, err
	}
	start, err := rw.timestamp(colStart)
	if err != nil {
		return PowerOutage{}, err
	}
	finish, err := rw.timestamp(finishCol)
	if err != nil {
		return PowerOutage{}, err
	}
	source, err := rw.str(colSource)
	if err != nil {
		return PowerOutage{}, err
	}

	return PowerOutage{
		AreaName: area,
		Stage:    stage,
		Start:    start,
		Finish:   finish,
		Source:   source,
	}, nil
}

// ParseSchedule decodes a recurring schedule feed. The header row selects the
// row shape: date_of_month for monthly, day_of_week for weekly and
// day_of_20_day_cycle for periodic schedules. Any malformed row fails the feed.
func ParseSchedule(r io.Reader) ([]RawRecord, error) {
	cr := newCSVReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	var decode func(row) (RawRecord, error)
	switch {
	case h.has(colDateOfMonth):
		decode = decodeMonthly
	case h.has(colDayOfWeek):
		decode = decodeWeekly
	case h.has(colDayOf20DayCycle):
		decode = decodePeriodic
	default:
		return nil, &ParseError{Line: 1, Msg: fmt.Sprintf("Couldn't parse headers %q", h.names)}
	}

	if err := h.require(colStartTime, colStage); err != nil {
		return nil, err
	}
	if _, ok := h.pick(colFinshTime, colFinishTime); !ok {
		return nil, &ParseError{Line: 1, Msg: fmt.Sprintf("missing column %q in headers %v", colFinshTime, h.names)}
	}

	records := []RawRecord{}
	err = readRows(cr, h,
		func(rw row) error {
			rec, err := decode(rw)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		},
		func(line int, err error) error {
			return &ParseError{Line: line, Msg: "malformed row", Err: err}
		},
	)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func decodeWindow(rw row) (RawWindow, error) {
	start, err := rw.str(colStartTime)
	if err != nil {
		return RawWindow{}, err
	}
	finishCol, _ := rw.h.pick(colFinshTime, colFinishTime)
	finish, err := rw.str(finishCol)
	if err != nil {
		return RawWindow{}, err
	}
	stage, err := rw.integer(colStage)
	if err != nil {
		return RawWindow{}, err
	}
	return RawWindow{StartTime: start, FinishTime: finish, Stage: stage}, nil
}

func decodeWeekly(rw row) (RawRecord, error) {
	w, err := decodeWindow(rw)
	if err != nil {
		return nil, err
	}
	day, err := rw.integer(colDayOfWeek)
	if err != nil {
		return nil, err
	}
	return RawWeekly{RawWindow: w, DayOfWeek: day}, nil
}

func decodeMonthly(rw row) (RawRecord, error) {
	w, err := decodeWindow(rw)
	if err != nil {
		return nil, err
	}
	date, err := rw.integer(colDateOfMonth)
	if err != nil {
		return nil, err
	}
	return RawMonthly{RawWindow: w, DateOfMonth: date}, nil
}

func decodePeriodic(rw row) (RawRecord, error) {
	w, err := decodeWindow(rw)
	if err != nil {
		return nil, err
	}
	dayCol, _ := rw.h.pick(colDayOfCycle, colDayOf20DayCycle)
	day, err := rw.integer(dayCol)
	if err != nil {
		return nil, err
	}
	period := defaultCyclePeriod
	if rw.h.has(colPeriodOfCycle) {
		if period, err = rw.integer(colPeriodOfCycle); err != nil {
			return nil, err
		}
	}
	start, err := rw.str(colStartOfCycle)
	if err != nil {
		return nil, err
	}
	return RawPeriodic{RawWindow: w, DayOfCycle: day, PeriodOfCycle: period, StartOfCycle: start}, nil
}

// parseTimeOfDay parses a strict HH:MM time.
func parseTimeOfDay(field, s string) (TimeOfDay, error) {
	if len(s) != len(timeLayout) {
		return 0, &ParseError{Field: field, Msg: fmt.Sprintf("%q is not an HH:MM time", s)}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, &ParseError{Field: field, Msg: fmt.Sprintf("%q is not an HH:MM time", s)}
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

// parseDate parses a strict YYYY-MM-DD date.
func parseDate(field, s string) (time.Time, error) {
	if len(s) != len(dateLayout) {
		return time.Time{}, &ParseError{Field: field, Msg: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &ParseError{Field: field, Msg: fmt.Sprintf("%q is not a YYYY-MM-DD date", s)}
	}
	return t, nil
}
