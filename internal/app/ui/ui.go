/*
Package ui implements the terminal presentation adapter on top of
bubbletea.

It renders the transcript in a scrollable viewport above a multi-line
input area, rotates focus between the two panes on tab, and publishes
submitted input onto the event bus. The chat service pushes rendered lines
in through the Presenter interface; messages cross into the bubbletea
program via Program.Send, so the model itself is only ever touched by the
bubbletea runtime.
*/
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"peerchat/internal/pkg/events"
	"peerchat/internal/wire"
)

const (
	// inputHeight is the number of text rows in the input pane.
	inputHeight = 4

	// maxTranscriptLines bounds the in-memory transcript history.
	maxTranscriptLines = 500
)

type focusArea int

const (
	focusInput focusArea = iota
	focusTranscript
)

var (
	focusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	blurredBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	systemStyle = lipgloss.NewStyle().Faint(true)
)

// userMessage and systemMessage are the tea messages the Presenter side
// feeds into the running program.
type userMessage struct {
	user wire.User
	text string
}

type systemMessage struct {
	text string
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	bus *events.Bus

	viewport viewport.Model
	textarea textarea.Model
	lines    []string
	focus    focusArea
	ready    bool
}

// NewModel constructs the chat screen model publishing input on bus.
func NewModel(bus *events.Bus) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = ""
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.Focus()

	return Model{
		bus:      bus,
		textarea: ta,
		focus:    focusInput,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyTab:
			m.rotateFocus()
			return m, nil

		case tea.KeyEnter:
			if m.focus == focusInput {
				m.submitInput()
				return m, nil
			}
		}

	case userMessage:
		m.appendLine(renderUserLine(msg.user, msg.text))

	case systemMessage:
		m.appendLine(systemStyle.Render(msg.text))
	}

	switch m.focus {
	case focusInput:
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	case focusTranscript:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	transcriptStyle := blurredBorder
	inputStyle := blurredBorder
	if m.focus == focusTranscript {
		transcriptStyle = focusedBorder
	} else {
		inputStyle = focusedBorder
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		transcriptStyle.Render(m.viewport.View()),
		inputStyle.Render(m.textarea.View()),
	)
}

func (m *Model) resize(width, height int) {
	// Both panes carry a one-cell border on every side.
	paneWidth := max(width-2, 1)
	transcriptHeight := max(height-inputHeight-4, 1)

	if !m.ready {
		m.viewport = viewport.New(paneWidth, transcriptHeight)
		m.ready = true
	} else {
		m.viewport.Width = paneWidth
		m.viewport.Height = transcriptHeight
	}
	m.textarea.SetWidth(paneWidth)
	m.refreshTranscript()
}

func (m *Model) rotateFocus() {
	if m.focus == focusInput {
		m.focus = focusTranscript
		m.textarea.Blur()
	} else {
		m.focus = focusInput
		m.textarea.Focus()
	}
}

// submitInput publishes the trimmed input text and clears the input pane.
func (m *Model) submitInput() {
	text := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	if text == "" {
		return
	}
	m.bus.Publish(events.InputSubmitted{Text: text})
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxTranscriptLines {
		m.lines = m.lines[len(m.lines)-maxTranscriptLines:]
	}
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	// Follow the newest message unless the user is scrolling the
	// transcript themselves.
	if m.focus != focusTranscript {
		m.viewport.GotoBottom()
	}
}

// renderUserLine formats one chat line with the sender's display color.
func renderUserLine(user wire.User, text string) string {
	name := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#" + user.Color)).
		Render(fmt.Sprintf("%10s", user.Username))
	return fmt.Sprintf("%s:  %s", name, text)
}

// UI wraps the running bubbletea program and implements chat.Presenter.
type UI struct {
	program *tea.Program
}

// New constructs the UI around a fresh program. Run must be called on the
// main goroutine for the program to take over the terminal.
func New(bus *events.Bus) *UI {
	program := tea.NewProgram(NewModel(bus), tea.WithAltScreen())
	return &UI{program: program}
}

// Run blocks until the user quits or Quit is called.
func (u *UI) Run() error {
	_, err := u.program.Run()
	return err
}

// Quit asks the program to shut down. Safe from any goroutine.
func (u *UI) Quit() {
	u.program.Quit()
}

// AppendUserMessage implements chat.Presenter.
func (u *UI) AppendUserMessage(user wire.User, text string) {
	u.program.Send(userMessage{user: user, text: text})
}

// AppendSystemMessage implements chat.Presenter.
func (u *UI) AppendSystemMessage(text string) {
	u.program.Send(systemMessage{text: text})
}
