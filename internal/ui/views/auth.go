package views

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/tareas/internal/app"
	"github.com/tgienger/tareas/internal/ui/keys"
	"github.com/tgienger/tareas/internal/ui/styles"
)

// PhaseChanged tells the app to show the screen for the controller's phase
type PhaseChanged struct{}

func phaseChanged() tea.Msg { return PhaseChanged{} }

type authDoneMsg struct {
	ok bool
}

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// helpLine renders bindings as "key desc • key desc"
func helpLine(s *styles.Styles, bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, s.HelpKey.Render(h.Key)+" "+h.Desc)
	}
	return s.Help.Render(strings.Join(parts, " • "))
}

// formMessage styles the controller's form message
func formMessage(s *styles.Styles, msg string) string {
	if msg == "" {
		return ""
	}
	if msg == app.MsgRegistered {
		return s.Message.Render(msg)
	}
	return s.Error.Render(msg)
}

// LoginView is the email and password form
type LoginView struct {
	ctrl   *app.Controller
	styles *styles.Styles
	keys   keys.KeyMap

	form       *huh.Form
	email      string
	password   string
	submitting bool

	width  int
	height int
}

// NewLoginView creates the login screen
func NewLoginView(ctrl *app.Controller) *LoginView {
	v := &LoginView{
		ctrl:   ctrl,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
	v.resetForm()
	return v
}

func (v *LoginView) resetForm() {
	v.password = ""
	v.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&v.email),
			huh.NewInput().
				Title("Contraseña").
				EchoMode(huh.EchoModePassword).
				Value(&v.password),
		),
	).WithTheme(styles.FormTheme()).
		WithShowHelp(false).
		WithWidth(v.formWidth())
}

func (v *LoginView) formWidth() int {
	return clamp(styles.ContentWidth(v.width)-10, 30, 50)
}

// Init initializes the view
func (v *LoginView) Init() tea.Cmd {
	return v.form.Init()
}

// Update handles messages
func (v *LoginView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.form = v.form.WithWidth(v.formWidth())
		return v, nil

	case authDoneMsg:
		v.submitting = false
		if msg.ok {
			return v, phaseChanged
		}
		v.resetForm()
		return v, v.form.Init()

	case tea.KeyMsg:
		if v.submitting {
			return v, nil
		}
		switch {
		case msg.String() == "ctrl+c":
			return v, tea.Quit
		case key.Matches(msg, v.keys.Register):
			v.ctrl.ShowRegister()
			return v, phaseChanged
		}
	}

	form, cmd := v.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		v.form = f
	}

	if v.form.State == huh.StateCompleted && !v.submitting {
		v.submitting = true
		email, password := v.email, v.password
		return v, func() tea.Msg {
			return authDoneMsg{ok: v.ctrl.Login(context.Background(), email, password)}
		}
	}
	return v, cmd
}

// View renders the login screen
func (v *LoginView) View() string {
	s := v.styles
	body := v.form.View()
	if v.submitting {
		body = s.TitleMuted.Render("Iniciando sesión...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Login"),
		"",
		body,
		formMessage(s, v.ctrl.FormMessage()),
		helpLine(s, v.keys.Register, key.NewBinding(key.WithHelp("ctrl+c", "salir"))),
	)
	return styles.Modal(content, v.width, v.height)
}

// RegisterView is the account creation form
type RegisterView struct {
	ctrl   *app.Controller
	styles *styles.Styles
	keys   keys.KeyMap

	form       *huh.Form
	name       string
	email      string
	password   string
	submitting bool

	width  int
	height int
}

// NewRegisterView creates the register screen
func NewRegisterView(ctrl *app.Controller) *RegisterView {
	v := &RegisterView{
		ctrl:   ctrl,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
	v.resetForm()
	return v
}

func (v *RegisterView) resetForm() {
	v.password = ""
	v.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nombre").
				Value(&v.name),
			huh.NewInput().
				Title("Email").
				Value(&v.email),
			huh.NewInput().
				Title("Contraseña").
				EchoMode(huh.EchoModePassword).
				Value(&v.password),
		),
	).WithTheme(styles.FormTheme()).
		WithShowHelp(false).
		WithWidth(v.formWidth())
}

func (v *RegisterView) formWidth() int {
	return clamp(styles.ContentWidth(v.width)-10, 30, 50)
}

// Init initializes the view
func (v *RegisterView) Init() tea.Cmd {
	return v.form.Init()
}

// Update handles messages
func (v *RegisterView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.form = v.form.WithWidth(v.formWidth())
		return v, nil

	case authDoneMsg:
		v.submitting = false
		if msg.ok {
			return v, phaseChanged
		}
		v.resetForm()
		return v, v.form.Init()

	case tea.KeyMsg:
		if v.submitting {
			return v, nil
		}
		switch {
		case msg.String() == "ctrl+c":
			return v, tea.Quit
		case key.Matches(msg, v.keys.Back):
			v.ctrl.ShowLogin()
			return v, phaseChanged
		}
	}

	form, cmd := v.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		v.form = f
	}

	if v.form.State == huh.StateCompleted && !v.submitting {
		v.submitting = true
		name, email, password := v.name, v.email, v.password
		return v, func() tea.Msg {
			return authDoneMsg{ok: v.ctrl.Register(context.Background(), name, email, password)}
		}
	}
	return v, cmd
}

// View renders the register screen
func (v *RegisterView) View() string {
	s := v.styles
	body := v.form.View()
	if v.submitting {
		body = s.TitleMuted.Render("Registrando...")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Registro"),
		"",
		body,
		formMessage(s, v.ctrl.FormMessage()),
		helpLine(s, key.NewBinding(key.WithHelp("esc", "ir al login")), key.NewBinding(key.WithHelp("ctrl+c", "salir"))),
	)
	return styles.Modal(content, v.width, v.height)
}
