package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/tgienger/tareas/internal/models"
)

// ErrNotEditing is returned when a field is changed with no edit in progress
var ErrNotEditing = errors.New("no task is being edited")

// Field is an editable task field
type Field int

const (
	FieldTitle Field = iota
	FieldDescription
	FieldDueDate
)

// Applier saves an edited task
type Applier interface {
	ApplyEdit(ctx context.Context, task models.Task) bool
}

// EditSession holds the working copy of at most one task being edited.
// Beginning a new edit replaces the current one without asking.
type EditSession struct {
	mu      sync.Mutex
	working *models.Task
}

// Begin starts editing a copy of task
func (e *EditSession) Begin(task models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working = &task
}

// Active reports whether an edit is in progress
func (e *EditSession) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.working != nil
}

// Working returns the working copy
func (e *EditSession) Working() (models.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.working == nil {
		return models.Task{}, false
	}
	return *e.working, true
}

// Update changes one field of the working copy. Due dates are given as
// YYYY-MM-DD; an empty value keeps the stored date.
func (e *EditSession) Update(f Field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.working == nil {
		return ErrNotEditing
	}
	switch f {
	case FieldTitle:
		e.working.Title = value
	case FieldDescription:
		e.working.Description = value
	case FieldDueDate:
		d, err := models.ParseDate(value)
		if err != nil {
			return err
		}
		e.working.DueDate = d
	}
	return nil
}

// Commit ends the edit and hands the working copy to a
func (e *EditSession) Commit(ctx context.Context, a Applier) bool {
	e.mu.Lock()
	working := e.working
	e.working = nil
	e.mu.Unlock()

	if working == nil {
		return false
	}
	return a.ApplyEdit(ctx, *working)
}

// Discard ends the edit without saving
func (e *EditSession) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.working = nil
}
