package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/tareas/internal/apitest"
	"github.com/tgienger/tareas/internal/db"
	"github.com/tgienger/tareas/internal/models"
	"github.com/tgienger/tareas/internal/session"
)

const email = "ana@example.com"

func setupClient(t *testing.T) (*Client, *session.Store, *apitest.Server) {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("Ana", email, "secreto1")

	database, err := db.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := log.New(io.Discard)
	store := session.NewStore(database, srv.URL(), logger)
	client := New(Config{BaseURL: srv.URL(), Auth: store, Logger: logger})
	return client, store, srv
}

func TestLoginAndList(t *testing.T) {
	client, store, srv := setupClient(t)
	ctx := context.Background()

	srv.AddTask(email, models.Task{Title: "first"})
	srv.AddTask(email, models.Task{Title: "second", Status: models.StatusCompleted})
	srv.AddTask("other@example.com", models.Task{Title: "not mine"})

	token, err := client.Login(ctx, email, "secreto1")
	require.NoError(t, err)
	store.SetCredential(token)

	tasks, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "first", tasks[0].Title)
	assert.Equal(t, "second", tasks[1].Title)
	assert.Equal(t, models.StatusCompleted, tasks[1].Status)
}

func TestLoginWrongPassword(t *testing.T) {
	client, _, _ := setupClient(t)

	_, err := client.Login(context.Background(), email, "nope")
	re, ok := AsRemoteError(err)
	require.True(t, ok, "expected RemoteError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
}

func TestCreateUpdateDelete(t *testing.T) {
	client, store, srv := setupClient(t)
	ctx := context.Background()
	store.SetCredential(srv.Token(email))

	due := models.NewDate(2025, time.March, 14)
	created, err := client.Create(ctx, "write report", "quarterly", due)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "write report", created.Title)
	assert.Equal(t, "2025-03-14", created.DueDate.String())
	assert.Equal(t, models.StatusPending, created.Status)

	require.NoError(t, client.Update(ctx, created.ID, models.StatusUpdate(models.StatusInProgress)))
	stored := srv.Tasks(email)
	require.Len(t, stored, 1)
	assert.Equal(t, models.StatusInProgress, stored[0].Status)
	assert.Equal(t, "quarterly", stored[0].Description, "partial update must keep other fields")

	require.NoError(t, client.Delete(ctx, created.ID))
	assert.Empty(t, srv.Tasks(email))
}

func TestCreateValidationFailureCarriesPayload(t *testing.T) {
	client, store, srv := setupClient(t)
	store.SetCredential(srv.Token(email))

	_, err := client.Create(context.Background(), "", "", models.Date{})
	re, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, re.Status)
	assert.JSONEq(t, `{"errors":[{"msg":"titulo requerido"}]}`, string(re.Body))
	assert.NotEmpty(t, re.RequestID)
}

func TestCallWithoutCredentialNeverReachesServer(t *testing.T) {
	client, _, srv := setupClient(t)

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrNoCredential))
	assert.Zero(t, srv.Hits("GET /tasks"))
}

func TestExpiredTokenIsReportedAs419(t *testing.T) {
	client, store, srv := setupClient(t)
	store.SetCredential(srv.ExpiredToken(email))

	_, err := client.List(context.Background())
	re, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, apitest.StatusSessionExpired, re.Status)
}

func TestNoRetryOnFailure(t *testing.T) {
	client, store, srv := setupClient(t)
	store.SetCredential(srv.Token(email))
	srv.FailNext(http.StatusInternalServerError, map[string]string{"message": "boom"})

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, srv.Hits("GET /tasks"))
}

func TestRegister(t *testing.T) {
	client, _, _ := setupClient(t)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, "Luis", "luis@example.com", "secreto1"))

	err := client.Register(ctx, "", "bad", "1")
	re, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, re.Status)
}
