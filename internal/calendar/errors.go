package calendar

import (
	"fmt"
	"net/http"
	"strings"
)

// FetchError reports a failure to retrieve an upstream feed.
type FetchError struct {
	URL string

	// Status is the upstream HTTP status, zero when no response was received.
	Status int

	Err error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: upstream returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports malformed CSV structure or a field that failed strict parsing.
type ParseError struct {
	// Line is the 1-based CSV line, zero when the error is not tied to a row.
	Line int

	Field string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse")
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a parsed row whose values break a range invariant.
type ValidationError struct {
	Field string
	Value int
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Msg)
}

// NotFoundError reports that no outages match the requested area.
type NotFoundError struct {
	Area string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No areas found that match `%s`", e.Area)
}

// RegexError reports an area pattern that does not compile.
type RegexError struct {
	Pattern string
	Err     error
}

func (e *RegexError) Error() string {
	return fmt.Sprintf("Error parsing '%s' as regex: %v", e.Pattern, e.Err)
}

func (e *RegexError) Unwrap() error { return e.Err }

// RowError is a malformed outage row skipped while parsing the feed.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}
