// Package tui provides the Bubble Tea terminal interface for corvid.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/google/uuid"

	"github.com/corvus-ai/corvid/internal/conversation"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Waiting for the first response event
	StateStreaming              // Streaming response
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 100
	maxHistory  = 100
)

// streamTimeout bounds a single exchange from the UI side. The
// orchestrator carries its own tighter timeout; this one only protects
// the terminal from a wedged backend.
const streamTimeout = 5 * time.Minute

// Message role constants for display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// Message is one conversation entry for display.
type Message struct {
	Role string
	Text string
}

// Model is the Bubble Tea model for the corvid terminal interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int

	// State
	state     State
	lastCtrlC time.Time

	// Output
	spinner    spinner.Model
	output     strings.Builder
	viewBuf    strings.Builder // reused by View to reduce allocations
	messages   []Message
	toolStatus string

	// Scrollable message viewport
	viewport viewport.Model

	// Help bar
	help help.Model
	keys keyMap

	// Stream management. Bubble Tea's event loop provides the
	// synchronization; a single event channel carries the exchange.
	streamCancel context.CancelFunc
	events       <-chan conversation.Event

	// Dependencies
	orch           *conversation.Orchestrator
	tenant         string
	userID         string
	conversationID uuid.UUID
	ctx            context.Context
	ctxCancel      context.CancelFunc

	// Dimensions
	width  int
	height int

	styles Styles

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// addMessage appends a message and enforces the maxMessages bound.
func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// New creates the chat TUI. ctx must be the same context passed to
// tea.WithContext so cancellation behaves consistently.
func New(ctx context.Context, orch *conversation.Orchestrator, tenant, userID string) (*Model, error) {
	if orch == nil {
		return nil, errors.New("tui.New: orchestrator is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	if tenant == "" {
		return nil, errors.New("tui.New: tenant is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// Minimal styling: no backgrounds, just text.
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: cleanStyle, Blurred: cleanStyle})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Keys are routed explicitly in handleKey, so the viewport's own
	// bindings are disabled to avoid conflicts with the textarea.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	return &Model{
		orch:      orch,
		tenant:    tenant,
		userID:    userID,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      help.New(),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80,
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // room for "> " prompt
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateThinking || m.toolStatus != "" {
			m.rebuildViewportContent()
		}
		return m, cmd

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.events = msg.events
		m.state = StateStreaming
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(msg.events)

	case streamTextMsg:
		m.output.WriteString(msg.text)
		m.toolStatus = ""
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.events)

	case streamToolMsg:
		m.toolStatus = msg.status
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.events)

	case streamDoneMsg:
		m.finishStream()
		// Remember the conversation so the next message continues it.
		m.conversationID = msg.conversationID

		finalText := msg.content
		if finalText == "" {
			finalText = m.output.String()
		}
		m.addMessage(Message{Role: roleAssistant, Text: finalText})
		m.output.Reset()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case streamErrorMsg:
		if m.events == nil {
			// Stream already canceled locally; drop the stale event.
			return m, nil
		}
		m.finishStream()

		switch {
		case errors.Is(msg.err, context.Canceled):
			m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			m.addMessage(Message{Role: roleError, Text: "The request took too long. Try a simpler question."})
		default:
			m.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		m.output.Reset()
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishStream returns to input state and releases stream resources.
func (m *Model) finishStream() {
	m.state = StateInput
	m.toolStatus = ""
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.events = nil
}

// View implements tea.Model.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	_, _ = m.viewBuf.WriteString(m.viewport.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// Input is always visible so the user can type while the assistant
	// is still responding.
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from messages
// and state. Called whenever messages, streaming output, or state change.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.RenderBanner())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.styles.RenderWelcomeTips())
	_, _ = b.WriteString("\n")

	for _, msg := range m.messages {
		switch msg.Role {
		case roleUser:
			_, _ = b.WriteString(m.styles.User.Render("You> "))
			_, _ = b.WriteString(msg.Text)
		case roleAssistant:
			_, _ = b.WriteString(m.styles.Assistant.Render("Corvid> "))
			_, _ = b.WriteString(m.markdown.Render(msg.Text))
		case roleSystem:
			_, _ = b.WriteString(m.styles.System.Render(msg.Text))
		case roleError:
			_, _ = b.WriteString(m.styles.Error.Render("Error: " + msg.Text))
		}
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateStreaming && m.output.Len() > 0 {
		_, _ = b.WriteString(m.styles.Assistant.Render("Corvid> "))
		_, _ = b.WriteString(m.output.String())
		_, _ = b.WriteString("\n\n")
	}

	if m.toolStatus != "" {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" ")
		_, _ = b.WriteString(m.styles.System.Render(m.toolStatus))
		_, _ = b.WriteString("\n\n")
	} else if m.state == StateThinking {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Thinking...\n\n")
	}

	m.viewport.SetContent(b.String())
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar returns state-appropriate keyboard shortcut help.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch m.state {
	case StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Cancel, m.keys.Quit, m.keys.ScrollUp,
		}
	case StateThinking, StateStreaming:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	}
	return m.help.ShortHelpView(bindings)
}
