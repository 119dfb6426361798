package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a task as named by the API
type Status string

const (
	StatusPending    Status = "PENDIENTE"
	StatusInProgress Status = "PROGRESO"
	StatusCompleted  Status = "COMPLETADA"
)

// Statuses returns every task status in display order
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Next returns the status that follows s, wrapping around
func (s Status) Next() Status {
	all := Statuses()
	for i, st := range all {
		if st == s {
			return all[(i+1)%len(all)]
		}
	}
	return StatusPending
}

// Filter selects tasks by status; FilterAll keeps every task
type Filter string

const FilterAll Filter = "TODAS"

// Filters returns the filter choices in display order
func Filters() []Filter {
	filters := []Filter{FilterAll}
	for _, s := range Statuses() {
		filters = append(filters, Filter(s))
	}
	return filters
}

// ParseFilter returns the filter named by s, or FilterAll when unknown
func ParseFilter(s string) Filter {
	for _, f := range Filters() {
		if string(f) == s {
			return f
		}
	}
	return FilterAll
}

// Matches reports whether a task with the given status passes the filter
func (f Filter) Matches(s Status) bool {
	return f == FilterAll || Status(f) == s
}

// ID is a server-assigned task identifier. The API may encode it as a JSON
// number or string; both decode to the same value.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts numeric and string identifiers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// ErrInvalidDate is returned when a due date cannot be parsed
var ErrInvalidDate = errors.New("invalid date")

const dateLayout = "2006-01-02"

// Date is a calendar date without time of day. The zero Date means no date.
type Date struct {
	t time.Time
}

// NewDate returns the date for the given year, month and day
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD or a full ISO-8601 timestamp. An empty string
// yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// String formats the date as YYYY-MM-DD, or "" for the zero Date
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Task is a single task owned by the remote service
type Task struct {
	ID          ID     `json:"id"`
	Title       string `json:"titulo"`
	Description string `json:"descripcion"`
	DueDate     Date   `json:"fechaLimite,omitzero"`
	Status      Status `json:"estado"`
}

// TaskUpdate is a partial task update; nil fields are left unchanged
// server-side.
type TaskUpdate struct {
	Title       *string `json:"titulo,omitempty"`
	Description *string `json:"descripcion,omitempty"`
	DueDate     *Date   `json:"fechaLimite,omitempty"`
	Status      *Status `json:"estado,omitempty"`
}

// StatusUpdate returns an update that only changes the status
func StatusUpdate(s Status) TaskUpdate {
	return TaskUpdate{Status: &s}
}

// FullUpdate returns an update carrying every mutable field of t. A zero due
// date is omitted so the stored date is kept.
func FullUpdate(t Task) TaskUpdate {
	u := TaskUpdate{
		Title:       &t.Title,
		Description: &t.Description,
	}
	if !t.DueDate.IsZero() {
		u.DueDate = &t.DueDate
	}
	if t.Status.Valid() {
		u.Status = &t.Status
	}
	return u
}

// Credential is the stored bearer token and the scope it may be sent to
type Credential struct {
	Token     string
	Host      string
	Secure    bool
	SameSite  string
	ExpiresAt time.Time
}
