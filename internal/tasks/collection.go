// Package tasks keeps the local mirror of the user's task list in step with
// the remote service and derives what is shown from it.
package tasks

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/tgienger/tareas/internal/failure"
	"github.com/tgienger/tareas/internal/models"
)

// Gateway is the remote task store
type Gateway interface {
	List(ctx context.Context) ([]models.Task, error)
	Create(ctx context.Context, title, description string, due models.Date) (*models.Task, error)
	Update(ctx context.Context, id models.ID, update models.TaskUpdate) error
	Delete(ctx context.Context, id models.ID) error
}

// Reporter is told about failed writes
type Reporter interface {
	Report(d failure.Disposition)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(d failure.Disposition)

func (f ReporterFunc) Report(d failure.Disposition) { f(d) }

// Collection mirrors the task list held by the service. It only changes in
// response to confirmed server results: a full list replaces it, a created
// task is appended. Writes are followed by a full refresh.
//
// Refreshes are numbered. A list that arrives after a newer one was applied
// is dropped, so responses completing out of order never roll state back.
type Collection struct {
	gateway  Gateway
	reporter Reporter
	logger   *log.Logger

	mu      sync.Mutex
	tasks   []models.Task
	issued  uint64
	applied uint64
}

// NewCollection creates an empty collection
func NewCollection(gateway Gateway, reporter Reporter, logger *log.Logger) *Collection {
	return &Collection{
		gateway:  gateway,
		reporter: reporter,
		logger:   logger,
	}
}

// Tasks returns a copy of the current tasks in server order
func (c *Collection) Tasks() []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Task returns the task with the given id
func (c *Collection) Task(id models.ID) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(id); i >= 0 {
		return c.tasks[i], true
	}
	return models.Task{}, false
}

// Refresh replaces the collection with the service's list. On failure the
// current tasks are kept and the error is only logged.
func (c *Collection) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	tasks, err := c.gateway.List(ctx)
	if err != nil {
		c.logger.Error("failed to load tasks", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		c.logger.Debug("dropping stale task list", "seq", seq, "applied", c.applied)
		return nil
	}
	c.tasks = tasks
	c.applied = seq
	c.logger.Debug("tasks loaded", "count", len(tasks), "seq", seq)
	return nil
}

// Add creates a task and appends the server's copy, unless a refresh already
// brought it in. A blank title is a no-op.
func (c *Collection) Add(ctx context.Context, title, description string, due models.Date) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}

	task, err := c.gateway.Create(ctx, title, description, due)
	if err != nil {
		c.report("create", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A list that landed while the create was in flight may already hold it.
	if i := c.index(task.ID); i >= 0 {
		c.tasks[i] = *task
	} else {
		c.tasks = append(c.tasks, *task)
	}
	// Lists requested before the create may not contain it.
	c.dropInFlight()
	return true
}

// index returns the position of id in tasks, or -1. Callers hold mu.
func (c *Collection) index(id models.ID) int {
	for i, t := range c.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Submit adds the draft and clears it when the task was created
func (c *Collection) Submit(ctx context.Context, d *Draft) bool {
	if !c.Add(ctx, d.Title, d.Description, d.DueDate) {
		return false
	}
	d.Reset()
	return true
}

// ChangeStatus sets the status of a task and refreshes
func (c *Collection) ChangeStatus(ctx context.Context, id models.ID, status models.Status) bool {
	if err := c.gateway.Update(ctx, id, models.StatusUpdate(status)); err != nil {
		c.report("change status", err)
		return false
	}
	c.Refresh(ctx)
	return true
}

// Remove deletes a task and refreshes
func (c *Collection) Remove(ctx context.Context, id models.ID) bool {
	if err := c.gateway.Delete(ctx, id); err != nil {
		c.report("delete", err)
		return false
	}
	c.Refresh(ctx)
	return true
}

// ApplyEdit sends every mutable field of task and refreshes
func (c *Collection) ApplyEdit(ctx context.Context, task models.Task) bool {
	if err := c.gateway.Update(ctx, task.ID, models.FullUpdate(task)); err != nil {
		c.report("update", err)
		return false
	}
	c.Refresh(ctx)
	return true
}

// Reset empties the collection. Lists still in flight are dropped when they
// arrive, so tasks of a previous session never come back.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = nil
	c.dropInFlight()
}

// dropInFlight makes every refresh issued so far stale. Callers hold mu.
func (c *Collection) dropInFlight() {
	c.issued++
	c.applied = c.issued
}

func (c *Collection) report(op string, err error) {
	d := failure.Classify(err)
	c.logger.Warn("task "+op+" failed", "kind", d.Kind, "status", d.Status, "error", err)
	if c.reporter != nil {
		c.reporter.Report(d)
	}
}

// Draft holds the fields of a task being composed
type Draft struct {
	Title       string
	Description string
	DueDate     models.Date
}

// Reset clears every field
func (d *Draft) Reset() {
	*d = Draft{}
}
