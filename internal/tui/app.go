// Package tui is the interactive front end for a revision session. It
// follows The Elm Architecture via bubbletea: the App model holds all state,
// Update reacts to messages, View renders the current screen.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/weave/internal/backlink"
	"github.com/kingrea/weave/internal/bridge"
	"github.com/kingrea/weave/internal/logbook"
	"github.com/kingrea/weave/internal/proposal"
	"github.com/kingrea/weave/internal/session"
)

// screen represents which view the operator is on.
type screen int

const (
	screenOverview screen = iota
	screenReview
	screenBacklinks
	screenObserve
)

const (
	gatePollInterval = 250 * time.Millisecond
	logbookTailLines = 6
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	logLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// cardItem adapts a proposal card to the bubbles list.
type cardItem struct {
	card proposal.Card
}

func (i cardItem) Title() string {
	return fmt.Sprintf("[%s] %s", i.card.Status, i.card.Scope)
}

func (i cardItem) Description() string {
	return fmt.Sprintf("%s · %s", i.card.Technique, i.card.Problem)
}

func (i cardItem) FilterValue() string { return i.card.ID }

// backlinkItem adapts a backlink task to the bubbles list.
type backlinkItem struct {
	task backlink.Task
}

func (i backlinkItem) Title() string       { return i.task.DocumentID }
func (i backlinkItem) Description() string { return i.task.Detail }
func (i backlinkItem) FilterValue() string { return i.task.ID }

type gatePollMsg struct{}

type submitDoneMsg struct {
	state session.State
	err   error
}

type stateChangedMsg struct {
	state session.State
	err   error
}

// App is the bubbletea model for a running session.
type App struct {
	engine *session.Engine
	gate   *bridge.DecisionGate
	book   *logbook.Logbook

	state     session.State
	screen    screen
	cards     list.Model
	backlinks list.Model
	input     textinput.Model
	review    session.PlanReview
	reviewing bool
	submitted bool

	status string
	err    error
	width  int
	height int
}

// NewApp builds the TUI over an already-wired engine and decision gate.
func NewApp(engine *session.Engine, gate *bridge.DecisionGate, book *logbook.Logbook) *App {
	cards := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	cards.Title = "Plan"
	cards.SetShowStatusBar(false)
	cards.SetFilteringEnabled(false)
	backlinks := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	backlinks.Title = "Backlink tasks"
	backlinks.SetShowStatusBar(false)
	backlinks.SetFilteringEnabled(false)
	input := textinput.New()
	input.Placeholder = "what did you learn?"
	input.CharLimit = 280
	app := &App{
		engine:    engine,
		gate:      gate,
		book:      book,
		cards:     cards,
		backlinks: backlinks,
		input:     input,
		state:     engine.View(),
	}
	app.syncLists()
	return app
}

// Init starts the gate poll loop.
func (a *App) Init() tea.Cmd {
	return a.pollGate()
}

func (a *App) pollGate() tea.Cmd {
	return tea.Tick(gatePollInterval, func(time.Time) tea.Msg {
		return gatePollMsg{}
	})
}

// Update handles messages and keypresses.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		listHeight := msg.Height - 10
		if listHeight < 4 {
			listHeight = 4
		}
		a.cards.SetSize(msg.Width-4, listHeight)
		a.backlinks.SetSize(msg.Width-4, listHeight)
		return a, nil

	case gatePollMsg:
		if review, pending := a.gate.PendingReview(); pending {
			a.review = review
			a.reviewing = true
			if a.screen == screenOverview {
				a.screen = screenReview
			}
		} else {
			a.reviewing = false
			if a.screen == screenReview {
				a.screen = screenOverview
			}
		}
		return a, a.pollGate()

	case submitDoneMsg:
		a.submitted = false
		a.applyState(msg.state, msg.err)
		return a, nil

	case stateChangedMsg:
		a.applyState(msg.state, msg.err)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}
	// The observation screen owns the keyboard: "q" is a letter there.
	if a.screen == screenObserve {
		return a.handleObserveKey(msg, key)
	}
	if key == "q" {
		return a, tea.Quit
	}
	switch a.screen {
	case screenReview:
		return a.handleReviewKey(key)
	case screenBacklinks:
		return a.handleBacklinkKey(msg, key)
	default:
		return a.handleOverviewKey(msg, key)
	}
}

func (a *App) handleOverviewKey(msg tea.KeyMsg, key string) (tea.Model, tea.Cmd) {
	switch key {
	case "1", "2":
		if a.state.Phase != session.PhaseTriage {
			break
		}
		complexity := session.ComplexitySimple
		if key == "2" {
			complexity = session.ComplexityComplex
		}
		return a, func() tea.Msg {
			state, err := a.engine.Triage(complexity)
			return stateChangedMsg{state: state, err: err}
		}
	case "o":
		if a.state.Phase != session.PhaseUnderstand {
			break
		}
		a.screen = screenObserve
		a.input.Reset()
		return a, a.input.Focus()
	case "A":
		return a, func() tea.Msg {
			state, err := a.engine.Abort("aborted from the terminal")
			return stateChangedMsg{state: state, err: err}
		}
	case "s":
		if a.state.Phase != session.PhasePlan || a.submitted {
			a.status = "nothing to submit"
			return a, nil
		}
		a.submitted = true
		a.status = "plan submitted, waiting for a decision"
		return a, func() tea.Msg {
			state, err := a.engine.SubmitPlan(context.Background())
			return submitDoneMsg{state: state, err: err}
		}
	case "x":
		return a, func() tea.Msg {
			state, err := a.engine.Execute()
			return stateChangedMsg{state: state, err: err}
		}
	case "b":
		a.screen = screenBacklinks
		a.syncLists()
		return a, nil
	case "i":
		return a, func() tea.Msg {
			state, err := a.engine.Integrate()
			return stateChangedMsg{state: state, err: err}
		}
	}
	var cmd tea.Cmd
	a.cards, cmd = a.cards.Update(msg)
	return a, cmd
}

func (a *App) handleObserveKey(msg tea.KeyMsg, key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		a.screen = screenOverview
		return a, nil
	case "enter":
		text := strings.TrimSpace(a.input.Value())
		a.screen = screenOverview
		if text == "" {
			return a, nil
		}
		return a, func() tea.Msg {
			state, err := a.engine.Observe(text)
			return stateChangedMsg{state: state, err: err}
		}
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleReviewKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "a":
		if err := a.gate.Submit(session.Decision{Verdict: session.VerdictApprove}); err != nil {
			a.err = err
		} else {
			a.status = "plan approved"
		}
		a.screen = screenOverview
	case "r":
		if err := a.gate.Submit(session.Decision{
			Verdict: session.VerdictReject,
			Reason:  "rejected from the terminal",
		}); err != nil {
			a.err = err
		} else {
			a.status = "plan rejected"
		}
		a.screen = screenOverview
	}
	return a, nil
}

func (a *App) handleBacklinkKey(msg tea.KeyMsg, key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc":
		a.screen = screenOverview
		return a, nil
	case "enter":
		item, ok := a.backlinks.SelectedItem().(backlinkItem)
		if !ok {
			return a, nil
		}
		return a, func() tea.Msg {
			state, err := a.engine.CompleteBacklink(item.task.ID)
			return stateChangedMsg{state: state, err: err}
		}
	}
	var cmd tea.Cmd
	a.backlinks, cmd = a.backlinks.Update(msg)
	return a, cmd
}

func (a *App) applyState(state session.State, err error) {
	a.state = state
	a.err = err
	if err == nil {
		a.status = fmt.Sprintf("phase: %s", state.Phase)
	}
	a.syncLists()
}

func (a *App) syncLists() {
	cardItems := make([]list.Item, 0, len(a.state.Cards))
	for _, card := range a.state.Cards {
		cardItems = append(cardItems, cardItem{card: card})
	}
	a.cards.SetItems(cardItems)

	tasks := a.engine.PendingBacklinks()
	taskItems := make([]list.Item, 0, len(tasks))
	for _, task := range tasks {
		taskItems = append(taskItems, backlinkItem{task: task})
	}
	a.backlinks.SetItems(taskItems)
}

// View renders the current screen.
func (a *App) View() string {
	var b strings.Builder
	banner := fmt.Sprintf("WEAVE · session %s · %s", a.state.SessionID, strings.ToUpper(string(a.state.Phase)))
	b.WriteString(bannerStyle.Render(banner))
	b.WriteString("\n\n")

	switch a.screen {
	case screenReview:
		b.WriteString(a.reviewView())
	case screenBacklinks:
		b.WriteString(a.backlinks.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter complete · esc back · q quit"))
	case screenObserve:
		b.WriteString("Record observation\n\n")
		b.WriteString(a.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter record · esc back"))
	default:
		b.WriteString(a.cards.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(a.overviewHelp()))
	}

	if a.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(a.status))
	}
	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(a.err.Error()))
	}
	if lines, _ := a.book.Tail(logbookTailLines); len(lines) > 0 {
		b.WriteString("\n\n")
		for _, line := range lines {
			b.WriteString(logLineStyle.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// overviewHelp names the keys that can act in the current phase. Plans are
// built over the bridge; the terminal drives everything else.
func (a *App) overviewHelp() string {
	switch a.state.Phase {
	case session.PhaseTriage:
		return "1 simple · 2 complex · A abort · q quit"
	case session.PhaseUnderstand:
		return "o observe · plan arrives via bridge · A abort · q quit"
	case session.PhasePlan:
		return "s submit plan · A abort · q quit"
	case session.PhaseExecute:
		return "x execute · A abort · q quit"
	case session.PhaseIntegrate:
		return "b backlinks · i integrate · A abort · q quit"
	default:
		return "q quit"
	}
}

func (a *App) reviewView() string {
	var b strings.Builder
	b.WriteString("Plan review\n\n")
	for _, card := range a.review.Cards {
		b.WriteString(fmt.Sprintf("  %s  %s\n", card.Scope, card.Technique))
		b.WriteString(fmt.Sprintf("    - %s\n", card.BeforeText))
		b.WriteString(fmt.Sprintf("    + %s\n", card.AfterText))
	}
	if len(a.review.Conflicts) > 0 {
		b.WriteString("\n")
		for _, conflict := range a.review.Conflicts {
			b.WriteString(warnStyle.Render(fmt.Sprintf("  conflict: %s vs %s in %s", conflict.CardA, conflict.CardB, conflict.Scope)))
			b.WriteString("\n")
		}
		b.WriteString(warnStyle.Render("  a conflicted plan cannot be approved; rebuild it first"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("a approve · r reject · q quit"))
	return b.String()
}
