package app

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/tareas/internal/api"
	"github.com/tgienger/tareas/internal/apitest"
	"github.com/tgienger/tareas/internal/db"
	"github.com/tgienger/tareas/internal/failure"
	"github.com/tgienger/tareas/internal/models"
	"github.com/tgienger/tareas/internal/session"
	"github.com/tgienger/tareas/internal/tasks"
)

const (
	email    = "ana@example.com"
	password = "secreto1"
)

type fixture struct {
	ctrl  *Controller
	store *session.Store
	srv   *apitest.Server
	db    *db.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("Ana", email, password)

	database, err := db.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := log.New(io.Discard)
	store := session.NewStore(database, srv.URL(), logger)
	client := api.New(api.Config{BaseURL: srv.URL(), Auth: store, Logger: logger})
	return &fixture{
		ctrl:  New(store, client, database, logger),
		store: store,
		srv:   srv,
		db:    database,
	}
}

func titles(ts []models.Task) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Title)
	}
	return out
}

func TestStartWithoutCredentialShowsLogin(t *testing.T) {
	f := setup(t)
	assert.Equal(t, PhaseLogin, f.ctrl.Start(context.Background()))
	assert.Zero(t, f.srv.Hits("GET /tasks"))
}

func TestStartWithCredentialLoadsTasks(t *testing.T) {
	f := setup(t)
	f.srv.AddTask(email, models.Task{Title: "pending"})
	f.store.SetCredential(f.srv.Token(email))

	assert.Equal(t, PhaseTasks, f.ctrl.Start(context.Background()))
	assert.Equal(t, []string{"pending"}, titles(f.ctrl.Tasks()))
}

func TestStartWithExpiredSessionReportsIt(t *testing.T) {
	f := setup(t)
	f.store.SetCredential(f.srv.Token(email))
	f.srv.FailNext(failure.StatusSessionExpired, map[string]string{"message": "expired"})

	assert.Equal(t, PhaseTasks, f.ctrl.Start(context.Background()))
	d, ok := f.ctrl.Notice()
	require.True(t, ok)
	assert.Equal(t, failure.SessionExpired, d.Kind)

	f.ctrl.Acknowledge()
	assert.Equal(t, PhaseLogin, f.ctrl.Phase())
	_, ok = f.store.Credential()
	assert.False(t, ok)
}

func TestRefreshServerErrorIsOnlyLogged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.srv.AddTask(email, models.Task{Title: "a"})
	require.True(t, f.ctrl.Login(ctx, email, password))

	f.srv.FailNext(http.StatusInternalServerError, map[string]string{"message": "boom"})
	assert.Error(t, f.ctrl.Refresh(ctx))
	_, ok := f.ctrl.Notice()
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, titles(f.ctrl.Tasks()))
}

func TestLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.srv.AddTask(email, models.Task{Title: "mine"})

	assert.False(t, f.ctrl.Login(ctx, email, "wrong"))
	assert.Equal(t, MsgBadCredentials, f.ctrl.FormMessage())
	assert.Equal(t, PhaseLogin, f.ctrl.Phase())
	_, ok := f.store.Credential()
	assert.False(t, ok)

	require.True(t, f.ctrl.Login(ctx, email, password))
	assert.Equal(t, PhaseTasks, f.ctrl.Phase())
	assert.Empty(t, f.ctrl.FormMessage())
	_, ok = f.store.Credential()
	assert.True(t, ok)
	assert.Equal(t, []string{"mine"}, titles(f.ctrl.Tasks()))
}

func TestRegister(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.ctrl.ShowRegister()

	assert.False(t, f.ctrl.Register(ctx, "", "bad", "123"))
	assert.Equal(t, PhaseRegister, f.ctrl.Phase())
	assert.Contains(t, f.ctrl.FormMessage(), "nombre requerido")
	assert.Contains(t, f.ctrl.FormMessage(), "email invalido")

	require.True(t, f.ctrl.Register(ctx, "Luis", "luis@example.com", "clave123"))
	assert.Equal(t, PhaseLogin, f.ctrl.Phase())
	assert.Equal(t, MsgRegistered, f.ctrl.FormMessage())
	assert.True(t, f.ctrl.Login(ctx, "luis@example.com", "clave123"))
}

func TestLogoutDropsEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.srv.AddTask(email, models.Task{Title: "a"})
	require.True(t, f.ctrl.Login(ctx, email, password))
	f.ctrl.SetSearch("a")
	require.True(t, f.ctrl.BeginEdit(f.ctrl.Tasks()[0].ID))

	f.ctrl.Logout()
	assert.Equal(t, PhaseLogin, f.ctrl.Phase())
	assert.Empty(t, f.ctrl.Tasks())
	assert.False(t, f.ctrl.Edit().Active())
	assert.Empty(t, f.ctrl.Criteria().Search)
	_, ok := f.store.Credential()
	assert.False(t, ok)
}

func TestSessionExpiredResetsAfterAcknowledge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.srv.AddTask(email, models.Task{Title: "A", Status: models.StatusPending})
	require.True(t, f.ctrl.Login(ctx, email, password))

	f.srv.FailNext(failure.StatusSessionExpired, map[string]string{"message": "expired"})
	assert.False(t, f.ctrl.ChangeStatus(ctx, a.ID, models.StatusCompleted))

	d, ok := f.ctrl.Notice()
	require.True(t, ok)
	assert.Equal(t, failure.SessionExpired, d.Kind)
	assert.Equal(t, failure.MsgSessionExpired, d.Text())

	// Nothing is reset until the notice is acknowledged.
	assert.Equal(t, PhaseTasks, f.ctrl.Phase())
	assert.Len(t, f.ctrl.Tasks(), 1)

	f.ctrl.Acknowledge()
	_, ok = f.ctrl.Notice()
	assert.False(t, ok)
	assert.Equal(t, PhaseLogin, f.ctrl.Phase())
	assert.Empty(t, f.ctrl.Tasks())
	_, ok = f.store.Credential()
	assert.False(t, ok)
}

func TestValidationNoticeKeepsSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.True(t, f.ctrl.Login(ctx, email, password))

	f.srv.FailNext(http.StatusUnprocessableEntity, map[string]any{
		"errors": []map[string]string{{"msg": "titulo requerido"}},
	})
	d := &tasks.Draft{Title: "x"}
	assert.False(t, f.ctrl.Submit(ctx, d))
	assert.Equal(t, "x", d.Title)

	n, ok := f.ctrl.Notice()
	require.True(t, ok)
	assert.Equal(t, []string{"titulo requerido"}, n.Messages)

	f.ctrl.Acknowledge()
	assert.Equal(t, PhaseTasks, f.ctrl.Phase())
	_, ok = f.store.Credential()
	assert.True(t, ok)
}

func TestResetNoticeIsNotReplaced(t *testing.T) {
	f := setup(t)
	f.ctrl.report(failure.Disposition{Kind: failure.SessionExpired, ResetSession: true})
	f.ctrl.report(failure.Disposition{Kind: failure.Validation})

	d, ok := f.ctrl.Notice()
	require.True(t, ok)
	assert.Equal(t, failure.SessionExpired, d.Kind)
}

func TestAddThenEditThroughController(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.True(t, f.ctrl.Login(ctx, email, password))

	d := &tasks.Draft{Title: "write report", Description: "Q2"}
	require.True(t, f.ctrl.Submit(ctx, d))
	assert.Equal(t, tasks.Draft{}, *d)

	id := f.ctrl.Tasks()[0].ID
	require.True(t, f.ctrl.BeginEdit(id))
	require.NoError(t, f.ctrl.Edit().Update(tasks.FieldDescription, "Q3"))
	require.True(t, f.ctrl.CommitEdit(ctx))

	stored := f.srv.Tasks(email)
	require.Len(t, stored, 1)
	assert.Equal(t, "Q3", stored[0].Description)
	assert.Equal(t, "write report", stored[0].Title)

	require.True(t, f.ctrl.Remove(ctx, id))
	assert.Empty(t, f.ctrl.Tasks())
}

func TestFilterIsRemembered(t *testing.T) {
	f := setup(t)
	f.ctrl.SetFilter(models.Filter(models.StatusCompleted))

	v, err := f.db.GetSetting(FilterSetting)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETADA", v)

	logger := log.New(io.Discard)
	again := New(f.store, api.New(api.Config{BaseURL: f.srv.URL(), Auth: f.store, Logger: logger}), f.db, logger)
	again.Start(context.Background())
	assert.Equal(t, models.Filter(models.StatusCompleted), again.Criteria().Status)
}

func TestVisibleUsesCriteria(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.srv.AddTask(email, models.Task{Title: "report", Status: models.StatusPending})
	f.srv.AddTask(email, models.Task{Title: "done", Status: models.StatusCompleted})
	require.True(t, f.ctrl.Login(ctx, email, password))

	f.ctrl.SetFilter(models.Filter(models.StatusCompleted))
	assert.Equal(t, []string{"done"}, titles(f.ctrl.Visible()))

	f.ctrl.SetSearch("REP")
	assert.Equal(t, []string{"report"}, titles(f.ctrl.Visible()))
}
