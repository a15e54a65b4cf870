package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

const spinnerInterval = 120 * time.Millisecond

type doneMsg struct {
	details []string
	err     error
}

type tickMsg struct{}

type model struct {
	title   string
	frame   int
	done    bool
	details []string
	err     error
	cancel  context.CancelFunc
}

func (m model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancel()
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case doneMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	return render(m.title, m.frame, m.done, m.details, m.err)
}

func render(title string, frame int, done bool, details []string, err error) string {
	var b strings.Builder
	switch {
	case !done:
		fmt.Fprintf(&b, "%s %s\n", spinnerFrames[frame], titleStyle.Render(title))
	case err != nil:
		fmt.Fprintf(&b, "%s %s\n", failStyle.Render("FAIL"), titleStyle.Render(title))
	default:
		fmt.Fprintf(&b, "%s %s\n", okStyle.Render("OK"), titleStyle.Render(title))
	}
	for _, d := range details {
		b.WriteString(detailStyle.Render(d))
		b.WriteByte('\n')
	}
	if done && err != nil {
		b.WriteString(detailStyle.Render(failStyle.Render(err.Error())))
		b.WriteByte('\n')
	}
	return b.String()
}

// Run shows a spinner while fn runs and prints its details when it returns.
// Pressing q or ctrl+c cancels the context passed to fn.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(model{title: title, cancel: cancel})
	go func() {
		details, err := fn(ctx)
		p.Send(doneMsg{details: details, err: err})
	}()
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(model)
	return m.details, m.err
}
