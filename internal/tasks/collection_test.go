package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/tareas/internal/api"
	"github.com/tgienger/tareas/internal/failure"
	"github.com/tgienger/tareas/internal/models"
)

// fakeGateway is an in-memory task store. Errors queued in fail are returned
// by the next call of that operation.
type fakeGateway struct {
	mu     sync.Mutex
	tasks  []models.Task
	nextID int
	fail   map[string]error
	calls  map[string]int
	// listGates[n] blocks the n-th List call (1-based) after it has taken its snapshot
	listGates map[int]chan struct{}
	// createGate blocks Create after the task has been stored
	createGate chan struct{}
}

func newFakeGateway(tasks ...models.Task) *fakeGateway {
	g := &fakeGateway{
		fail:      make(map[string]error),
		calls:     make(map[string]int),
		listGates: make(map[int]chan struct{}),
	}
	for _, t := range tasks {
		g.nextID++
		t.ID = models.ID(fmt.Sprint(g.nextID))
		g.tasks = append(g.tasks, t)
	}
	return g
}

func (g *fakeGateway) take(op string) error {
	g.calls[op]++
	err := g.fail[op]
	delete(g.fail, op)
	return err
}

func (g *fakeGateway) List(ctx context.Context) ([]models.Task, error) {
	g.mu.Lock()
	if err := g.take("list"); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	snapshot := append([]models.Task(nil), g.tasks...)
	gate := g.listGates[g.calls["list"]]
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return snapshot, nil
}

func (g *fakeGateway) Create(ctx context.Context, title, description string, due models.Date) (*models.Task, error) {
	g.mu.Lock()
	if err := g.take("create"); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.nextID++
	t := models.Task{
		ID:          models.ID(fmt.Sprint(g.nextID)),
		Title:       title,
		Description: description,
		DueDate:     due,
		Status:      models.StatusPending,
	}
	g.tasks = append(g.tasks, t)
	gate := g.createGate
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return &t, nil
}

func (g *fakeGateway) Update(ctx context.Context, id models.ID, u models.TaskUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.take("update"); err != nil {
		return err
	}
	for i := range g.tasks {
		if g.tasks[i].ID != id {
			continue
		}
		if u.Title != nil {
			g.tasks[i].Title = *u.Title
		}
		if u.Description != nil {
			g.tasks[i].Description = *u.Description
		}
		if u.DueDate != nil {
			g.tasks[i].DueDate = *u.DueDate
		}
		if u.Status != nil {
			g.tasks[i].Status = *u.Status
		}
		return nil
	}
	return &api.RemoteError{Status: http.StatusNotFound}
}

func (g *fakeGateway) Delete(ctx context.Context, id models.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.take("delete"); err != nil {
		return err
	}
	for i := range g.tasks {
		if g.tasks[i].ID == id {
			g.tasks = append(g.tasks[:i], g.tasks[i+1:]...)
			return nil
		}
	}
	return &api.RemoteError{Status: http.StatusNotFound}
}

func (g *fakeGateway) failNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

type recorder struct {
	mu   sync.Mutex
	seen []failure.Disposition
}

func (r *recorder) Report(d failure.Disposition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, d)
}

func newTestCollection(g *fakeGateway) (*Collection, *recorder) {
	rec := &recorder{}
	return NewCollection(g, rec, log.New(io.Discard)), rec
}

func titles(tasks []models.Task) []string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestRefreshReplacesInServerOrder(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "b"}, models.Task{Title: "a"}, models.Task{Title: "c"})
	c, _ := newTestCollection(g)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []string{"b", "a", "c"}, titles(c.Tasks()))
}

func TestRefreshIsIdempotent(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "a"}, models.Task{Title: "b"})
	c, _ := newTestCollection(g)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))
	first := c.Tasks()
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, first, c.Tasks())
}

func TestRefreshFailureKeepsStateAndDoesNotReport(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "a"})
	c, rec := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	g.failNext("list", errors.New("connection reset"))
	assert.Error(t, c.Refresh(ctx))
	assert.Equal(t, []string{"a"}, titles(c.Tasks()))
	assert.Empty(t, rec.seen)
}

func TestAddAppendsWithoutRefetch(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "existing"})
	c, _ := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	due := models.NewDate(2025, time.July, 1)
	require.True(t, c.Add(ctx, "write report", "for Q2", due))
	assert.Equal(t, 1, g.callCount("list"))

	got := c.Tasks()
	require.Len(t, got, 2)
	assert.Equal(t, "write report", got[1].Title)
	assert.NotEmpty(t, got[1].ID)

	require.NoError(t, c.Refresh(ctx))
	var matches []models.Task
	for _, task := range c.Tasks() {
		if task.Title == "write report" {
			matches = append(matches, task)
		}
	}
	require.Len(t, matches, 1)
	assert.Equal(t, "for Q2", matches[0].Description)
	assert.Equal(t, due, matches[0].DueDate)
}

func TestAddBlankTitleIsNoop(t *testing.T) {
	for _, title := range []string{"", "   ", "\t\n"} {
		g := newFakeGateway(models.Task{Title: "a"})
		c, rec := newTestCollection(g)
		require.NoError(t, c.Refresh(context.Background()))
		before := c.Tasks()

		assert.False(t, c.Add(context.Background(), title, "desc", models.Date{}))
		assert.Equal(t, before, c.Tasks())
		assert.Zero(t, g.callCount("create"))
		assert.Empty(t, rec.seen)
	}
}

func TestAddValidationFailureIsReported(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "a"})
	c, rec := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	before := c.Tasks()

	g.failNext("create", &api.RemoteError{
		Status: http.StatusUnprocessableEntity,
		Body:   []byte(`{"errors":[{"msg":"titulo requerido"}]}`),
	})

	assert.False(t, c.Add(ctx, "x", "", models.Date{}))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, failure.Validation, rec.seen[0].Kind)
	assert.Equal(t, []string{"titulo requerido"}, rec.seen[0].Messages)
	assert.Equal(t, before, c.Tasks())
}

func TestSubmitClearsDraftOnlyOnSuccess(t *testing.T) {
	g := newFakeGateway()
	c, _ := newTestCollection(g)
	ctx := context.Background()

	d := &Draft{Title: "t", Description: "d", DueDate: models.NewDate(2025, time.January, 2)}
	g.failNext("create", &api.RemoteError{Status: http.StatusInternalServerError})
	assert.False(t, c.Submit(ctx, d))
	assert.Equal(t, "t", d.Title)

	assert.True(t, c.Submit(ctx, d))
	assert.Equal(t, Draft{}, *d)
}

func TestChangeStatusRefreshes(t *testing.T) {
	g := newFakeGateway(
		models.Task{Title: "A", Status: models.StatusPending},
		models.Task{Title: "B", Status: models.StatusInProgress},
	)
	c, _ := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	a := c.Tasks()[0]

	require.True(t, c.ChangeStatus(ctx, a.ID, models.StatusCompleted))
	assert.Equal(t, 2, g.callCount("list"))

	got := c.Tasks()
	assert.Equal(t, []string{"A", "B"}, titles(got))
	assert.Equal(t, models.StatusCompleted, got[0].Status)
	assert.Equal(t, models.StatusInProgress, got[1].Status)

	visible := Visible(got, Criteria{Status: models.Filter(models.StatusInProgress)})
	assert.Equal(t, []string{"B"}, titles(visible))
}

func TestChangeStatusEveryTransition(t *testing.T) {
	for _, from := range models.Statuses() {
		for _, to := range models.Statuses() {
			g := newFakeGateway(models.Task{Title: "x", Status: from})
			c, _ := newTestCollection(g)
			ctx := context.Background()
			require.NoError(t, c.Refresh(ctx))
			id := c.Tasks()[0].ID

			require.True(t, c.ChangeStatus(ctx, id, to))
			got, ok := c.Task(id)
			require.True(t, ok)
			assert.Equal(t, to, got.Status, "%s -> %s", from, to)
		}
	}
}

func TestChangeStatusFailureLeavesState(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "A", Status: models.StatusPending})
	c, rec := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	id := c.Tasks()[0].ID

	g.failNext("update", &api.RemoteError{Status: http.StatusForbidden, Body: []byte(`"prohibido"`)})
	assert.False(t, c.ChangeStatus(ctx, id, models.StatusCompleted))

	got, _ := c.Task(id)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, g.callCount("list"))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, failure.AccessDenied, rec.seen[0].Kind)
	assert.Equal(t, []string{"prohibido"}, rec.seen[0].Messages)
}

func TestRemoveRefreshes(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "A"}, models.Task{Title: "B"})
	c, rec := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	require.True(t, c.Remove(ctx, c.Tasks()[0].ID))
	assert.Equal(t, []string{"B"}, titles(c.Tasks()))

	g.failNext("delete", &api.RemoteError{Status: 419})
	assert.False(t, c.Remove(ctx, c.Tasks()[0].ID))
	assert.Equal(t, []string{"B"}, titles(c.Tasks()))
	require.Len(t, rec.seen, 1)
	assert.True(t, rec.seen[0].ResetSession)
}

func TestApplyEditSendsWorkingCopy(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "old", Description: "d", Status: models.StatusInProgress})
	c, _ := newTestCollection(g)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	task := c.Tasks()[0]
	task.Title = "new"
	task.DueDate = models.NewDate(2026, time.February, 3)
	require.True(t, c.ApplyEdit(ctx, task))

	got := c.Tasks()[0]
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "d", got.Description)
	assert.Equal(t, "2026-02-03", got.DueDate.String())
	assert.Equal(t, models.StatusInProgress, got.Status)
}

func TestStaleRefreshIsDropped(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "A"})
	gate := make(chan struct{})
	g.listGates[1] = gate
	c, _ := newTestCollection(g)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Refresh(ctx)
	}()

	// Wait for the first list to take its snapshot of [A].
	require.Eventually(t, func() bool { return g.callCount("list") == 1 }, time.Second, time.Millisecond)

	g.mu.Lock()
	g.tasks = append(g.tasks, models.Task{ID: "99", Title: "B"})
	g.mu.Unlock()

	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, []string{"A", "B"}, titles(c.Tasks()))

	close(gate)
	<-done
	assert.Equal(t, []string{"A", "B"}, titles(c.Tasks()), "older list must not overwrite newer one")
}

func TestResetDropsInFlightRefresh(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "A"})
	gate := make(chan struct{})
	g.listGates[1] = gate
	c, _ := newTestCollection(g)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Refresh(context.Background())
	}()
	require.Eventually(t, func() bool { return g.callCount("list") == 1 }, time.Second, time.Millisecond)

	c.Reset()
	close(gate)
	<-done
	assert.Empty(t, c.Tasks())
}

func TestAddAfterRefreshAlreadyHoldingTask(t *testing.T) {
	g := newFakeGateway(models.Task{Title: "A"})
	gate := make(chan struct{})
	g.createGate = gate
	c, _ := newTestCollection(g)
	ctx := context.Background()

	added := make(chan bool)
	go func() {
		added <- c.Add(ctx, "B", "", models.Date{})
	}()

	// The task is stored on the server but the create has not returned yet.
	require.Eventually(t, func() bool { return g.callCount("create") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Refresh(ctx))
	require.Equal(t, []string{"A", "B"}, titles(c.Tasks()))

	close(gate)
	require.True(t, <-added)

	got := c.Tasks()
	assert.Equal(t, []string{"A", "B"}, titles(got))
	ids := map[models.ID]bool{}
	for _, task := range got {
		assert.False(t, ids[task.ID], "duplicate id %s", task.ID)
		ids[task.ID] = true
	}
}
