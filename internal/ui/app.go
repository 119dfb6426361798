package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tgienger/tareas/internal/app"
	"github.com/tgienger/tareas/internal/ui/views"
)

type App struct {
	ctrl    *app.Controller
	current tea.Model
	width   int
	height  int
}

// Creates a new application
func NewApp(ctrl *app.Controller) *App {
	return &App{ctrl: ctrl}
}

type startedMsg struct{}

func (a *App) Init() tea.Cmd {
	// Restores a stored session, loading its tasks
	return func() tea.Msg {
		a.ctrl.Start(context.Background())
		return startedMsg{}
	}
}

// open builds the view for the controller's phase
func (a *App) open() tea.Cmd {
	switch a.ctrl.Phase() {
	case app.PhaseRegister:
		a.current = views.NewRegisterView(a.ctrl)
	case app.PhaseTasks:
		a.current = views.NewTaskListView(a.ctrl)
	default:
		a.current = views.NewLoginView(a.ctrl)
	}

	width, height := a.width, a.height
	return tea.Batch(
		a.current.Init(),
		func() tea.Msg {
			return tea.WindowSizeMsg{Width: width, Height: height}
		},
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case startedMsg:
		return a, a.open()

	case views.PhaseChanged:
		return a, a.open()

	case tea.KeyMsg:
		if a.current == nil && msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	}

	if a.current == nil {
		return a, nil
	}
	var cmd tea.Cmd
	a.current, cmd = a.current.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	if a.current == nil {
		return "Cargando..."
	}
	return a.current.View()
}
