package views

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/tgienger/tareas/internal/app"
	"github.com/tgienger/tareas/internal/failure"
	"github.com/tgienger/tareas/internal/models"
	"github.com/tgienger/tareas/internal/tasks"
	"github.com/tgienger/tareas/internal/ui/keys"
	"github.com/tgienger/tareas/internal/ui/styles"
)

// FocusArea represents which part of the UI has focus
type FocusArea int

const (
	FocusTaskList FocusArea = iota
	FocusSearchInput
)

type formMode int

const (
	formNone formMode = iota
	formNew
	formEdit
)

// edit form fields, in tab order
const (
	fieldTitle = iota
	fieldDesc
	fieldDue
	fieldSave
	fieldCount
)

// TaskListView shows the user's tasks
type TaskListView struct {
	ctrl   *app.Controller
	styles *styles.Styles
	keys   keys.KeyMap

	width  int
	height int

	// visible tasks, refreshed from the controller after every change
	tasks   []models.Task
	loading bool
	spinner spinner.Model

	// UI state
	focus       FocusArea
	cursor      int
	scrollY     int
	searchInput textinput.Model

	// Task creation/editing
	mode         formMode
	draft        tasks.Draft
	editTitle    textinput.Model
	editDesc     textarea.Model
	editDue      textinput.Model
	editFocusIdx int
	formErr      string
	saving       bool

	// Delete confirmation
	deleteConfirm      *huh.Form
	deleteConfirmValue bool
	deleteTarget       *models.Task
}

// NewTaskListView creates a new task list view
func NewTaskListView(ctrl *app.Controller) *TaskListView {
	s := styles.NewStyles()

	search := textinput.New()
	search.Placeholder = "Buscar..."
	search.CharLimit = 100
	search.SetValue(ctrl.Criteria().Search)

	editTitle := textinput.New()
	editTitle.Placeholder = "Título"
	editTitle.CharLimit = 200

	editDesc := textarea.New()
	editDesc.Placeholder = "Descripción"
	editDesc.CharLimit = 1000
	editDesc.SetWidth(50)
	editDesc.SetHeight(3)
	editDesc.ShowLineNumbers = false

	editDue := textinput.New()
	editDue.Placeholder = "AAAA-MM-DD"
	editDue.CharLimit = 10

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Current.Primary)),
	)

	return &TaskListView{
		ctrl:        ctrl,
		styles:      s,
		keys:        keys.DefaultKeyMap(),
		focus:       FocusTaskList,
		searchInput: search,
		editTitle:   editTitle,
		editDesc:    editDesc,
		editDue:     editDue,
		spinner:     sp,
	}
}

type tasksLoadedMsg struct{}

type opDoneMsg struct{}

type draftSubmittedMsg struct {
	draft tasks.Draft
	ok    bool
}

type editSavedMsg struct{}

// Init shows whatever the controller already loaded
func (v *TaskListView) Init() tea.Cmd {
	return func() tea.Msg { return tasksLoadedMsg{} }
}

func (v *TaskListView) refresh() tea.Cmd {
	v.loading = true
	return tea.Batch(v.spinner.Tick, func() tea.Msg {
		v.ctrl.Refresh(context.Background())
		return tasksLoadedMsg{}
	})
}

// run executes a write off the UI goroutine
func (v *TaskListView) run(fn func(ctx context.Context) bool) tea.Cmd {
	return func() tea.Msg {
		fn(context.Background())
		return opDoneMsg{}
	}
}

// reload re-reads the visible tasks from the controller
func (v *TaskListView) reload() {
	v.tasks = v.ctrl.Visible()
	if v.cursor >= len(v.tasks) {
		v.cursor = max(0, len(v.tasks)-1)
	}
	v.ensureVisible()
}

func (v *TaskListView) selected() (models.Task, bool) {
	if len(v.tasks) == 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(v.width)
		v.editDesc.SetWidth(clamp(contentWidth-10, 20, 50))
		if v.deleteConfirm != nil {
			v.deleteConfirm = v.deleteConfirm.WithWidth(v.modalWidth() - 6)
		}
		return v, nil

	case tasksLoadedMsg:
		v.loading = false
		v.reload()
		return v, nil

	case opDoneMsg:
		v.reload()
		return v, nil

	case draftSubmittedMsg:
		v.saving = false
		v.draft = msg.draft
		if msg.ok {
			v.mode = formNone
		}
		v.reload()
		return v, nil

	case editSavedMsg:
		v.saving = false
		v.mode = formNone
		v.reload()
		return v, nil

	case spinner.TickMsg:
		if !v.loading {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	}

	if _, ok := v.ctrl.Notice(); ok {
		if msg, ok := msg.(tea.KeyMsg); ok {
			return v.updateNotice(msg)
		}
		return v, nil
	}

	if v.deleteConfirm != nil {
		return v.updateDeleteConfirm(msg)
	}

	msgKey, ok := msg.(tea.KeyMsg)
	if !ok {
		return v, nil
	}
	if v.saving {
		return v, nil
	}
	if v.mode != formNone {
		return v.updateEditing(msgKey)
	}
	return v.updateNormal(msgKey)
}

func (v *TaskListView) updateNotice(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Enter), key.Matches(msg, v.keys.Back), msg.String() == " ":
		v.ctrl.Acknowledge()
		if v.ctrl.Phase() != app.PhaseTasks {
			return v, phaseChanged
		}
		v.reload()
	case msg.String() == "ctrl+c":
		return v, tea.Quit
	}
	return v, nil
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Don't process hotkeys while typing a search
	if v.focus == FocusSearchInput {
		switch {
		case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Enter):
			v.searchInput.Blur()
			v.focus = FocusTaskList
			return v, nil
		default:
			var cmd tea.Cmd
			v.searchInput, cmd = v.searchInput.Update(msg)
			v.ctrl.SetSearch(v.searchInput.Value())
			v.cursor = 0
			v.scrollY = 0
			v.reload()
			return v, cmd
		}
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back):
		if v.searchInput.Value() != "" {
			v.searchInput.SetValue("")
			v.ctrl.SetSearch("")
			v.reload()
		}
		return v, nil

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Search), key.Matches(msg, v.keys.Tab):
		v.focus = FocusSearchInput
		v.searchInput.Focus()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Filter):
		v.ctrl.SetFilter(nextFilter(v.ctrl.Criteria().Status))
		v.cursor = 0
		v.scrollY = 0
		v.reload()
		return v, nil

	case key.Matches(msg, v.keys.Status):
		if task, ok := v.selected(); ok {
			id, next := task.ID, task.Status.Next()
			return v, v.run(func(ctx context.Context) bool {
				return v.ctrl.ChangeStatus(ctx, id, next)
			})
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		v.startNewTask()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Edit), key.Matches(msg, v.keys.Enter):
		if task, ok := v.selected(); ok && v.ctrl.BeginEdit(task.ID) {
			v.startEditTask()
			return v, textinput.Blink
		}
		return v, nil

	case key.Matches(msg, v.keys.Delete):
		if task, ok := v.selected(); ok {
			return v, v.showDeleteConfirm(task)
		}
		return v, nil

	case key.Matches(msg, v.keys.Refresh):
		return v, v.refresh()

	case key.Matches(msg, v.keys.Logout):
		v.ctrl.Logout()
		return v, phaseChanged
	}

	return v, nil
}

// nextFilter cycles TODAS → PENDIENTE → PROGRESO → COMPLETADA → TODAS
func nextFilter(f models.Filter) models.Filter {
	all := models.Filters()
	for i, candidate := range all {
		if candidate == f {
			return all[(i+1)%len(all)]
		}
	}
	return models.FilterAll
}

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.closeForm()
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.saveTask()

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % fieldCount
		v.updateEditFocus()
		return v, nil

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + fieldCount - 1) % fieldCount
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.editFocusIdx {
		case fieldTitle, fieldDue:
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		case fieldSave:
			return v, v.saveTask()
		}
		// enter in the description inserts a newline
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case fieldTitle:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case fieldDesc:
		v.editDesc, cmd = v.editDesc.Update(msg)
	case fieldDue:
		v.editDue, cmd = v.editDue.Update(msg)
	}
	return v, cmd
}

func (v *TaskListView) startNewTask() {
	v.mode = formNew
	v.formErr = ""
	v.editFocusIdx = fieldTitle
	v.editTitle.SetValue(v.draft.Title)
	v.editDesc.SetValue(v.draft.Description)
	v.editDue.SetValue(v.draft.DueDate.String())
	v.updateEditFocus()
}

func (v *TaskListView) startEditTask() {
	task, _ := v.ctrl.Edit().Working()
	v.mode = formEdit
	v.formErr = ""
	v.editFocusIdx = fieldTitle
	v.editTitle.SetValue(task.Title)
	v.editDesc.SetValue(task.Description)
	v.editDue.SetValue(task.DueDate.String())
	v.updateEditFocus()
}

// closeForm leaves the form. A new task's input is kept for next time;
// an edit is discarded.
func (v *TaskListView) closeForm() {
	switch v.mode {
	case formNew:
		v.draft.Title = v.editTitle.Value()
		v.draft.Description = v.editDesc.Value()
		if d, err := models.ParseDate(strings.TrimSpace(v.editDue.Value())); err == nil {
			v.draft.DueDate = d
		}
	case formEdit:
		v.ctrl.Edit().Discard()
	}
	v.mode = formNone
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editDesc.Blur()
	v.editDue.Blur()

	switch v.editFocusIdx {
	case fieldTitle:
		v.editTitle.Focus()
	case fieldDesc:
		v.editDesc.Focus()
	case fieldDue:
		v.editDue.Focus()
	}
}

func (v *TaskListView) saveTask() tea.Cmd {
	due, err := models.ParseDate(strings.TrimSpace(v.editDue.Value()))
	if err != nil {
		v.formErr = "Fecha inválida, use AAAA-MM-DD"
		return nil
	}
	v.formErr = ""

	if v.mode == formNew {
		v.draft = tasks.Draft{
			Title:       v.editTitle.Value(),
			Description: v.editDesc.Value(),
			DueDate:     due,
		}
		d := v.draft
		v.saving = true
		return func() tea.Msg {
			ok := v.ctrl.Submit(context.Background(), &d)
			return draftSubmittedMsg{draft: d, ok: ok}
		}
	}

	edit := v.ctrl.Edit()
	fields := []struct {
		field tasks.Field
		value string
	}{
		{tasks.FieldTitle, v.editTitle.Value()},
		{tasks.FieldDescription, v.editDesc.Value()},
		{tasks.FieldDueDate, due.String()},
	}
	for _, f := range fields {
		err := edit.Update(f.field, f.value)
		if errors.Is(err, tasks.ErrNotEditing) {
			// The session was reset while the form was open.
			v.closeForm()
			return nil
		}
		if err != nil {
			v.formErr = err.Error()
			return nil
		}
	}
	v.saving = true
	return func() tea.Msg {
		v.ctrl.CommitEdit(context.Background())
		return editSavedMsg{}
	}
}

func (v *TaskListView) modalWidth() int {
	return max(min(50, v.width-8), 20)
}

func (v *TaskListView) showDeleteConfirm(task models.Task) tea.Cmd {
	v.deleteTarget = &task
	v.deleteConfirmValue = false
	v.deleteConfirm = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("delete").
				Title("¿Borrar tarea?").
				Description(task.Title).
				Affirmative("Borrar").
				Negative("Cancelar").
				Value(&v.deleteConfirmValue),
		),
	).WithTheme(styles.FormTheme()).
		WithWidth(v.modalWidth() - 6).
		WithShowHelp(true)
	return v.deleteConfirm.Init()
}

func (v *TaskListView) updateDeleteConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "esc" {
		v.deleteConfirm = nil
		v.deleteTarget = nil
		return v, nil
	}

	form, cmd := v.deleteConfirm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		v.deleteConfirm = f
	}

	switch v.deleteConfirm.State {
	case huh.StateCompleted:
		target := v.deleteTarget
		confirmed := v.deleteConfirmValue
		v.deleteConfirm = nil
		v.deleteTarget = nil
		if confirmed && target != nil {
			id := target.ID
			return v, v.run(func(ctx context.Context) bool {
				return v.ctrl.Remove(ctx, id)
			})
		}
		return v, nil
	case huh.StateAborted:
		v.deleteConfirm = nil
		v.deleteTarget = nil
		return v, nil
	}
	return v, cmd
}

func (v *TaskListView) ensureVisible() {
	visibleItems := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

// visibleItems is how many tasks fit; each takes 2 lines + 1 margin
func (v *TaskListView) visibleItems() int {
	return max((v.height-12)/3, 1)
}

// View renders the task list or the active modal
func (v *TaskListView) View() string {
	if n, ok := v.ctrl.Notice(); ok {
		return v.renderNotice(n)
	}

	if v.deleteConfirm != nil {
		return v.renderDeleteConfirm()
	}

	if v.mode != formNone {
		return v.renderEditForm()
	}

	var b strings.Builder
	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(v.renderTaskList())
	b.WriteString("\n")
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	searchStyle := s.Input
	if v.focus == FocusSearchInput {
		searchStyle = s.InputFocused
	}
	searchBox := searchStyle.Width(clamp(contentWidth-30, 10, 30)).Render(v.searchInput.View())

	filterLabel := "Filtro: " + string(v.ctrl.Criteria().Status)
	if v.ctrl.Criteria().Search != "" {
		// a search ignores the status filter
		filterLabel = s.TitleMuted.Render(filterLabel)
	}
	filterBtn := s.Button.Render(filterLabel)

	title := s.Title.Render("Tareas")
	if v.loading {
		title += " " + v.spinner.View()
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center, searchBox, "  ", filterBtn)
	return lipgloss.JoinVertical(lipgloss.Left, title, header)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if len(v.tasks) == 0 {
		if len(v.ctrl.Tasks()) == 0 {
			return s.TitleMuted.Render("No hay tareas. Pulsa 'n' para crear una.")
		}
		return s.TitleMuted.Render("Ninguna tarea coincide.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor && v.focus == FocusTaskList))
	}
	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	width := max(styles.ContentWidth(v.width)-4, 20)

	badge := s.StatusBadge(task.Status)
	titleLine := task.Title + " " + badge

	var detail []string
	if !task.DueDate.IsZero() {
		detail = append(detail, s.DueDate.Render(task.DueDate.String()))
	}
	if task.Description != "" {
		desc := strings.ReplaceAll(task.Description, "\n", " ")
		detail = append(detail, s.TitleMuted.Render(desc))
	}
	detailLine := strings.Join(detail, "  ")

	itemStyle := s.ListItem
	if selected {
		itemStyle = s.ListSelected
	}
	itemStyle = itemStyle.Width(width).MaxHeight(1)

	return lipgloss.JoinVertical(lipgloss.Left,
		itemStyle.Render(titleLine),
		itemStyle.Render(detailLine),
	) + "\n"
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	formTitle := "Nueva tarea"
	if v.mode == formEdit {
		formTitle = "Editar tarea"
	}

	titleStyle := s.Input
	descStyle := s.Input
	dueStyle := s.Input
	btnStyle := s.Button

	switch v.editFocusIdx {
	case fieldTitle:
		titleStyle = s.InputFocused
	case fieldDesc:
		descStyle = s.InputFocused
	case fieldDue:
		dueStyle = s.InputFocused
	case fieldSave:
		btnStyle = s.ButtonFocused
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	status := ""
	if v.saving {
		status = s.TitleMuted.Render("Guardando...")
	} else if v.formErr != "" {
		status = s.Error.Render(v.formErr)
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(formTitle),
		"",
		"Título:",
		titleStyle.Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Descripción:",
		descStyle.Render(v.editDesc.View()),
		"",
		"Fecha límite:",
		dueStyle.Width(14).Render(v.editDue.View()),
		"",
		btnStyle.Render(" Guardar "),
		status,
		s.TitleMuted.Render("Tab: siguiente • Ctrl+S: guardar • Esc: cancelar"),
	)

	return styles.Modal(form, v.width, v.height)
}

func (v *TaskListView) renderDeleteConfirm() string {
	s := v.styles
	header := s.Title.Foreground(styles.Current.Error).MarginBottom(1).Render("⚠ Confirmar borrado")
	box := s.NoticeBad.Width(v.modalWidth())
	return styles.Modal(box.Render(lipgloss.JoinVertical(lipgloss.Center, header, v.deleteConfirm.View())), v.width, v.height)
}

// noticeTitle names a failure kind for the user
func noticeTitle(k failure.Kind) string {
	switch k {
	case failure.Validation:
		return "Datos inválidos"
	case failure.AccessDenied:
		return "Acceso denegado"
	case failure.Unauthenticated:
		return "No autorizado"
	case failure.SessionExpired:
		return "Sesión expirada"
	default:
		return "Error"
	}
}

func (v *TaskListView) renderNotice(d failure.Disposition) string {
	s := v.styles
	var lines []string
	for _, m := range d.Messages {
		lines = append(lines, "• "+m)
	}
	if len(lines) == 1 {
		lines[0] = d.Messages[0]
	}

	action := "Aceptar"
	if d.ResetSession {
		action = "Volver al login"
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Foreground(styles.Current.Error).Render(noticeTitle(d.Kind)),
		"",
		lipgloss.NewStyle().Width(v.modalWidth()-6).Render(strings.Join(lines, "\n")),
		"",
		s.ButtonPrimary.Render(fmt.Sprintf(" ↵ %s ", action)),
	)
	return styles.Modal(s.NoticeBad.Width(v.modalWidth()).Render(content), v.width, v.height)
}

func (v *TaskListView) renderHelp() string {
	return helpLine(v.styles,
		v.keys.New,
		v.keys.Edit,
		v.keys.Status,
		v.keys.Delete,
		v.keys.Search,
		v.keys.Filter,
		v.keys.Refresh,
		v.keys.Logout,
		v.keys.Quit,
	)
}
