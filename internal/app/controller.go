// Package app drives the client: which screen is active, who is signed in,
// and what happens after a failure has been shown to the user.
package app

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/tgienger/tareas/internal/failure"
	"github.com/tgienger/tareas/internal/models"
	"github.com/tgienger/tareas/internal/session"
	"github.com/tgienger/tareas/internal/tasks"
)

// Phase is the screen the client is on
type Phase int

const (
	PhaseLogin Phase = iota
	PhaseRegister
	PhaseTasks
)

func (p Phase) String() string {
	switch p {
	case PhaseRegister:
		return "register"
	case PhaseTasks:
		return "tasks"
	default:
		return "login"
	}
}

// Form messages shown under the login and register forms
const (
	MsgBadCredentials = "Credenciales incorrectas"
	MsgRegistered     = "Registro exitoso. Ahora puedes iniciar sesión."
)

// FilterSetting is the settings key remembering the last status filter
const FilterSetting = "filter"

// Settings stores small key/value preferences
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Service is the remote service as seen by the controller
type Service interface {
	tasks.Gateway
	Register(ctx context.Context, name, email, password string) error
	Login(ctx context.Context, email, password string) (string, error)
}

// Controller owns the client state. Screens read from it and forward user
// actions to it; they never talk to the service directly.
type Controller struct {
	session  *session.Store
	service  Service
	settings Settings
	logger   *log.Logger

	collection *tasks.Collection
	edit       tasks.EditSession

	mu       sync.Mutex
	phase    Phase
	criteria tasks.Criteria
	formMsg  string
	notice   *failure.Disposition
}

// New creates a controller on the login screen
func New(store *session.Store, service Service, settings Settings, logger *log.Logger) *Controller {
	c := &Controller{
		session:  store,
		service:  service,
		settings: settings,
		logger:   logger,
		criteria: tasks.Criteria{Status: models.FilterAll},
	}
	c.collection = tasks.NewCollection(service, tasks.ReporterFunc(c.report), logger)
	return c
}

// Start restores the remembered filter and, when a credential is stored,
// opens the task screen and loads the tasks
func (c *Controller) Start(ctx context.Context) Phase {
	if v, err := c.settings.GetSetting(FilterSetting); err != nil {
		c.logger.Warn("failed to read filter setting", "error", err)
	} else if v != "" {
		c.mu.Lock()
		c.criteria.Status = models.ParseFilter(v)
		c.mu.Unlock()
	}

	if _, ok := c.session.Credential(); !ok {
		c.setPhase(PhaseLogin)
		return PhaseLogin
	}
	c.setPhase(PhaseTasks)
	c.Refresh(ctx)
	return PhaseTasks
}

// Phase returns the current screen
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != p {
		c.logger.Debug("phase changed", "from", c.phase, "to", p)
	}
	c.phase = p
	c.formMsg = ""
}

// ShowRegister switches to the register form
func (c *Controller) ShowRegister() { c.setPhase(PhaseRegister) }

// ShowLogin switches to the login form
func (c *Controller) ShowLogin() { c.setPhase(PhaseLogin) }

// FormMessage is the message to show under the active form
func (c *Controller) FormMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formMsg
}

func (c *Controller) setFormMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formMsg = msg
}

// Login exchanges email and password for a credential and loads the tasks
func (c *Controller) Login(ctx context.Context, email, password string) bool {
	token, err := c.service.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		c.logger.Info("login failed", "email", email, "error", err)
		c.setFormMessage(MsgBadCredentials)
		return false
	}

	c.session.SetCredential(token)
	c.setPhase(PhaseTasks)
	c.logger.Info("logged in", "email", email)
	c.Refresh(ctx)
	return true
}

// Register creates an account. On success the login form is shown with a
// confirmation; otherwise the register form shows what went wrong.
func (c *Controller) Register(ctx context.Context, name, email, password string) bool {
	err := c.service.Register(ctx, name, strings.TrimSpace(email), password)
	if err != nil {
		c.logger.Info("register failed", "email", email, "error", err)
		c.setFormMessage(failure.Classify(err).Text())
		return false
	}

	c.setPhase(PhaseLogin)
	c.setFormMessage(MsgRegistered)
	return true
}

// Logout drops the credential and every piece of task state
func (c *Controller) Logout() {
	c.reset()
	c.logger.Info("logged out")
}

func (c *Controller) reset() {
	c.session.Clear()
	c.collection.Reset()
	c.edit.Discard()
	c.mu.Lock()
	c.criteria.Search = ""
	c.mu.Unlock()
	c.setPhase(PhaseLogin)
}

// report records a failed write as the pending notice. A notice that resets
// the session is never replaced by a milder one.
func (c *Controller) report(d failure.Disposition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice != nil && c.notice.ResetSession && !d.ResetSession {
		return
	}
	c.notice = &d
}

// Notice returns the failure waiting to be acknowledged
func (c *Controller) Notice() (failure.Disposition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return failure.Disposition{}, false
	}
	return *c.notice, true
}

// Acknowledge dismisses the pending notice. If it called for a session
// reset, the user is signed out and returned to the login screen.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	n := c.notice
	c.notice = nil
	c.mu.Unlock()

	if n != nil && n.ResetSession {
		c.logger.Info("session reset", "kind", n.Kind, "status", n.Status)
		c.reset()
	}
}

// Refresh reloads the tasks. Other load failures are only logged, but a
// rejected session is reported so the user is sent back to the login.
func (c *Controller) Refresh(ctx context.Context) error {
	err := c.collection.Refresh(ctx)
	if err != nil {
		if d := failure.Classify(err); d.ResetSession {
			c.report(d)
		}
	}
	return err
}

// Tasks returns every loaded task
func (c *Controller) Tasks() []models.Task {
	return c.collection.Tasks()
}

// Visible returns the tasks matching the current filter and search
func (c *Controller) Visible() []models.Task {
	return tasks.Visible(c.collection.Tasks(), c.Criteria())
}

// Criteria returns the current filter and search
func (c *Controller) Criteria() tasks.Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criteria
}

// SetFilter changes the status filter and remembers it
func (c *Controller) SetFilter(f models.Filter) {
	c.mu.Lock()
	c.criteria.Status = f
	c.mu.Unlock()
	if err := c.settings.SetSetting(FilterSetting, string(f)); err != nil {
		c.logger.Warn("failed to save filter setting", "error", err)
	}
}

// SetSearch changes the search term
func (c *Controller) SetSearch(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criteria.Search = s
}

// Submit creates a task from the draft, clearing it on success
func (c *Controller) Submit(ctx context.Context, d *tasks.Draft) bool {
	return c.collection.Submit(ctx, d)
}

// ChangeStatus sets the status of a task
func (c *Controller) ChangeStatus(ctx context.Context, id models.ID, s models.Status) bool {
	return c.collection.ChangeStatus(ctx, id, s)
}

// Remove deletes a task
func (c *Controller) Remove(ctx context.Context, id models.ID) bool {
	return c.collection.Remove(ctx, id)
}

// BeginEdit opens the edit session on a loaded task
func (c *Controller) BeginEdit(id models.ID) bool {
	t, ok := c.collection.Task(id)
	if !ok {
		return false
	}
	c.edit.Begin(t)
	return true
}

// Edit returns the edit session
func (c *Controller) Edit() *tasks.EditSession {
	return &c.edit
}

// CommitEdit saves the task being edited
func (c *Controller) CommitEdit(ctx context.Context) bool {
	return c.edit.Commit(ctx, c.collection)
}
