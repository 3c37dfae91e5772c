package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/events"
	"github.com/go-go-golems/docqa/pkg/feedback"
	"github.com/go-go-golems/docqa/pkg/prompt"
	"github.com/go-go-golems/docqa/pkg/session"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/go-go-golems/docqa/pkg/transcript"
	"github.com/go-go-golems/docqa/pkg/viewer"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/errors"
)

// states:
// - user input
// - user moving around messages
// - browsing conversations
// - writing a feedback comment
// - confirming a deletion
// - showing error

type State string

const (
	StateUserInput     State = "user_input"
	StateMovingAround  State = "moving_around"
	StateHistory       State = "history"
	StateComment       State = "comment"
	StateConfirmDelete State = "confirm_delete"
	StateError         State = "error"
)

const (
	sidebarWidth    = 28
	minSidebarWidth = 80
)

type Model struct {
	ctx       context.Context
	session   *session.Session
	viewer    *viewer.Synchronizer
	submitter feedback.Submitter

	feedbackOptions []feedback.Option
	// per thread id
	trackers map[string]*feedback.Tracker

	viewport viewport.Model
	textArea textarea.Model
	comment  textarea.Model
	help     help.Model
	spinner  spinner.Model

	keyMap KeyMap
	style  *Style
	width  int
	height int

	state       State
	selectedIdx int

	threads   []threads.Thread
	threadIdx int

	pendingDelete   string
	pendingFeedback *feedback.Attachment

	status string
	err    error
}

type Option func(*Model)

func WithFeedbackOptions(options ...feedback.Option) Option {
	return func(m *Model) {
		m.feedbackOptions = append(m.feedbackOptions, options...)
	}
}

func WithStyle(style *Style) Option {
	return func(m *Model) {
		m.style = style
	}
}

func WithKeyMap(keyMap KeyMap) Option {
	return func(m *Model) {
		m.keyMap = keyMap
	}
}

func NewModel(
	ctx context.Context,
	s *session.Session,
	v *viewer.Synchronizer,
	submitter feedback.Submitter,
	options ...Option,
) Model {
	ret := Model{
		ctx:       ctx,
		session:   s,
		viewer:    v,
		submitter: submitter,
		trackers:  map[string]*feedback.Tracker{},
		style:     DefaultStyles(),
		keyMap:    DefaultKeyMap,
		viewport:  viewport.New(0, 0),
		help:      help.New(),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	for _, o := range options {
		o(&ret)
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask a question about your documents..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	ret.textArea.Focus()

	ret.comment = textarea.New()
	ret.comment.Placeholder = "Optional comment"
	ret.comment.ShowLineNumbers = false
	ret.comment.SetHeight(3)

	ret.state = StateUserInput
	ret.selectedIdx = len(s.Messages()) - 1
	ret.threads = s.Threads(ctx)

	ret.viewport.SetContent(ret.messageView())
	ret.viewport.GotoBottom()

	ret.updateKeyBindings()

	return ret
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.loadCmd())
}

func (m Model) State() State {
	return m.state
}

func (m Model) Status() string {
	return m.status
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recomputeSize()
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	// We handle errors just like any other message
	case errMsg:
		m.setError(msg)

	case loadedMsg:
		m.selectedIdx = len(m.session.Messages()) - 1
		m.refresh(true)
		cmds = append(cmds, m.threadsCmd())

	case sentMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		m.selectedIdx = len(m.session.Messages()) - 1
		m.refresh(true)
		cmds = append(cmds, m.threadsCmd())

	case threadsMsg:
		m.threads = msg.threads
		if m.threadIdx >= len(m.threads) {
			m.threadIdx = len(m.threads) - 1
		}
		if m.threadIdx < 0 {
			m.threadIdx = 0
		}
		m.recomputeSize()

	case switchedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		m.selectedIdx = len(m.session.Messages()) - 1
		m.refresh(true)
		cmds = append(cmds, m.threadsCmd())

	case deletedMsg:
		switch {
		case errors.Is(msg.err, session.ErrNotConfirmed):
			m.status = "conversation kept"
		case msg.err != nil:
			m.setError(msg.err)
		case !msg.result.Removed:
			m.status = "conversation was not saved yet"
		default:
			m.status = "conversation deleted"
		}
		if msg.result.WasActive {
			m.selectedIdx = len(m.session.Messages()) - 1
		}
		m.refresh(true)
		cmds = append(cmds, m.threadsCmd())

	case feedbackMsg:
		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("feedback recorded: %s", msg.polarity)
		case errors.Is(msg.err, feedback.ErrAlreadyRecorded),
			errors.Is(msg.err, feedback.ErrCancelled),
			errors.Is(msg.err, feedback.ErrInFlight):
			m.status = msg.err.Error()
		default:
			m.setError(msg.err)
		}
		m.refresh(false)

	case EventMsg:
		switch msg.Event.Type {
		case events.EventTypeThreadsChanged:
			cmds = append(cmds, m.threadsCmd())
		case events.EventTypeMessageAppended:
			m.refresh(true)
		default:
			m.refresh(false)
		}

	default:
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.recomputeSize()

	case key.Matches(msg, m.keyMap.UnfocusMessage):
		m.textArea.Blur()
		m.setState(StateMovingAround)
		m.refresh(false)

	case key.Matches(msg, m.keyMap.FocusMessage):
		cmd = m.focusInput()

	case key.Matches(msg, m.keyMap.SubmitMessage):
		cmd = m.submit()

	case key.Matches(msg, m.keyMap.SelectPrevMessage):
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
		m.refresh(false)

	case key.Matches(msg, m.keyMap.SelectNextMessage):
		if m.selectedIdx < len(m.session.Messages())-1 {
			m.selectedIdx++
		}
		m.refresh(false)

	case key.Matches(msg, m.keyMap.ThumbsUp):
		cmd = m.thumbsUp()

	case key.Matches(msg, m.keyMap.ThumbsDown):
		cmd = m.startComment()

	case key.Matches(msg, m.keyMap.SubmitComment):
		cmd = m.submitComment()

	case key.Matches(msg, m.keyMap.CancelComment):
		m.pendingFeedback = nil
		m.comment.Blur()
		m.status = feedback.ErrCancelled.Error()
		m.setState(StateMovingAround)

	case key.Matches(msg, m.keyMap.OpenReference):
		m.openSelectedReference()

	case key.Matches(msg, m.keyMap.CloseViewer):
		m.viewer.Close()
		m.recomputeSize()

	case key.Matches(msg, m.keyMap.ToggleHistory):
		if m.state == StateHistory {
			cmd = m.focusInput()
		} else {
			m.textArea.Blur()
			m.threadIdx = m.activeThreadIdx()
			m.setState(StateHistory)
			m.recomputeSize()
		}

	case key.Matches(msg, m.keyMap.PrevThread):
		if m.threadIdx > 0 {
			m.threadIdx--
		}

	case key.Matches(msg, m.keyMap.NextThread):
		if m.threadIdx < len(m.threads)-1 {
			m.threadIdx++
		}

	case key.Matches(msg, m.keyMap.SwitchThread):
		if t, ok := m.cursorThread(); ok {
			cmd = tea.Batch(m.focusInput(), m.switchCmd(t.ID))
		}

	case key.Matches(msg, m.keyMap.NewThread):
		cmd = tea.Batch(m.focusInput(), m.newThreadCmd())

	case key.Matches(msg, m.keyMap.DeleteThread):
		if t, ok := m.cursorThread(); ok {
			m.pendingDelete = t.ID
			m.setState(StateConfirmDelete)
		}

	case key.Matches(msg, m.keyMap.ConfirmDelete):
		id := m.pendingDelete
		m.pendingDelete = ""
		m.setState(StateHistory)
		cmd = m.deleteCmd(id, true)

	case key.Matches(msg, m.keyMap.RejectDelete):
		id := m.pendingDelete
		m.pendingDelete = ""
		m.setState(StateHistory)
		cmd = m.deleteCmd(id, false)

	case key.Matches(msg, m.keyMap.DismissError):
		m.err = nil
		cmd = m.focusInput()

	default:
		switch m.state {
		case StateUserInput:
			m.textArea, cmd = m.textArea.Update(msg)
		case StateComment:
			m.comment, cmd = m.comment.Update(msg)
		case StateMovingAround, StateError, StateHistory, StateConfirmDelete:
			m.viewport, cmd = m.viewport.Update(msg)
		}
	}

	return m, cmd
}

func (m *Model) setState(state State) {
	m.state = state
	m.updateKeyBindings()
}

func (m *Model) updateKeyBindings() {
	m.keyMap.SelectNextMessage.SetEnabled(m.state == StateMovingAround)
	m.keyMap.SelectPrevMessage.SetEnabled(m.state == StateMovingAround)
	m.keyMap.FocusMessage.SetEnabled(m.state == StateMovingAround)
	m.keyMap.UnfocusMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.SubmitMessage.SetEnabled(m.state == StateUserInput)

	m.keyMap.ThumbsUp.SetEnabled(m.state == StateMovingAround)
	m.keyMap.ThumbsDown.SetEnabled(m.state == StateMovingAround)
	m.keyMap.OpenReference.SetEnabled(m.state == StateMovingAround)
	m.keyMap.CloseViewer.SetEnabled(m.state == StateMovingAround)
	m.keyMap.SubmitComment.SetEnabled(m.state == StateComment)
	m.keyMap.CancelComment.SetEnabled(m.state == StateComment)

	m.keyMap.ToggleHistory.SetEnabled(m.state == StateUserInput || m.state == StateMovingAround || m.state == StateHistory)
	m.keyMap.PrevThread.SetEnabled(m.state == StateHistory)
	m.keyMap.NextThread.SetEnabled(m.state == StateHistory)
	m.keyMap.SwitchThread.SetEnabled(m.state == StateHistory)
	m.keyMap.NewThread.SetEnabled(m.state == StateHistory)
	m.keyMap.DeleteThread.SetEnabled(m.state == StateHistory)
	m.keyMap.ConfirmDelete.SetEnabled(m.state == StateConfirmDelete)
	m.keyMap.RejectDelete.SetEnabled(m.state == StateConfirmDelete)

	m.keyMap.DismissError.SetEnabled(m.state == StateError)
	m.keyMap.Help.SetEnabled(m.state != StateUserInput && m.state != StateComment)
}

func (m *Model) focusInput() tea.Cmd {
	m.setState(StateUserInput)
	m.refresh(false)
	return m.textArea.Focus()
}

func (m *Model) setError(err error) {
	m.err = err
	m.textArea.Blur()
	m.comment.Blur()
	m.setState(StateError)
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh(goToBottom bool) {
	m.viewport.SetContent(m.messageView())
	if goToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) recomputeSize() {
	headerHeight := lipgloss.Height(m.headerView())
	viewerHeight := lipgloss.Height(m.viewerView())
	inputHeight := lipgloss.Height(m.inputView())
	statusHeight := lipgloss.Height(m.statusView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))

	newHeight := m.height - headerHeight - viewerHeight - inputHeight - statusHeight - helpHeight
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.transcriptWidth()
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight + viewerHeight

	h, _ := m.style.FocusedMessage.GetFrameSize()
	m.textArea.SetWidth(m.width - h)
	m.comment.SetWidth(m.width - h)

	m.refresh(true)
}

func (m Model) showSidebar() bool {
	return m.width >= minSidebarWidth || m.state == StateHistory || m.state == StateConfirmDelete
}

func (m Model) transcriptWidth() int {
	if m.showSidebar() {
		return m.width - sidebarWidth
	}
	return m.width
}

func (m Model) busy() bool {
	s := m.session.State()
	return s == session.StateLoading || s == session.StateSending
}

func (m Model) headerView() string {
	title := m.session.Registry().Title(m.ctx, m.session.ThreadID())
	v := fmt.Sprintf("DOCQA · %s · %s", m.session.Tenant(), title)
	if m.busy() {
		v += " " + m.spinner.View()
	}
	return m.style.Header.Render(v)
}

func (m Model) viewerView() string {
	ref, ok := m.viewer.Current()
	if !ok {
		return m.style.Status.Render("no document open")
	}
	title := ref.Title
	if title == "" {
		title = ref.URL
	}
	return m.style.Viewer.Render(fmt.Sprintf("▣ %s  %s", title, m.viewer.ResolveURL(ref)))
}

func (m Model) sidebarView() string {
	activeID := m.session.ThreadID()
	lines := make([]string, 0, len(m.threads)+1)
	lines = append(lines, m.style.Header.Render("Conversations"))
	for idx, t := range m.threads {
		title := truncate.StringWithTail(t.DisplayTitle(), sidebarWidth-5, "…")
		prefix := "  "
		if m.state == StateHistory || m.state == StateConfirmDelete {
			if idx == m.threadIdx {
				prefix = m.style.Cursor.Render("> ")
			}
		}
		if t.ID == activeID {
			title = m.style.ActiveThread.Render(title)
		}
		lines = append(lines, prefix+title)
	}
	return m.style.Sidebar.
		Width(sidebarWidth - 2).
		Height(m.viewport.Height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) messageView() string {
	ret := ""
	width := m.transcriptWidth()
	w, _ := m.style.SelectedMessage.GetFrameSize()

	msgs := m.session.Messages()
	for idx, msg := range msgs {
		v := m.renderMessage(msgs, idx, msg)
		if width > w {
			v = wordwrap.String(v, width-w)
		}

		style := m.style.UnselectedMessage
		if idx == m.selectedIdx && m.state == StateMovingAround {
			style = m.style.SelectedMessage
		}
		if width > w {
			style = style.Width(width - w + m.style.SelectedMessage.GetHorizontalPadding())
		}
		ret += style.Render(v)
		ret += "\n"
	}

	return ret
}

func (m Model) renderMessage(msgs []*transcript.Message, idx int, msg *transcript.Message) string {
	if msg.Role == transcript.RoleUser {
		return "[you]: " + msg.Content
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(msg.Content, "\n"))
	for i, ref := range msg.References {
		title := ref.Title
		if title == "" {
			title = ref.URL
		}
		sb.WriteString("\n")
		sb.WriteString(m.style.Reference.Render(fmt.Sprintf("[%d] %s  %s", i+1, title, m.viewer.ResolveURL(ref))))
	}
	if a, err := m.tracker().For(msgs, idx); err == nil && a.Recorded() != "" {
		sb.WriteString("\n")
		sb.WriteString(m.style.Status.Render(fmt.Sprintf("feedback: %s", a.Recorded())))
	}
	return sb.String()
}

func (m Model) inputView() string {
	switch m.state {
	case StateError:
		w, _ := m.style.SelectedMessage.GetFrameSize()
		v := m.err.Error()
		if m.width > w {
			v = wordwrap.String(v, m.width-w)
		}
		return m.style.SelectedMessage.Render(m.style.Error.Render(v))
	case StateComment:
		return m.style.FocusedMessage.Render(feedback.CommentQuestion + "\n" + m.comment.View())
	case StateConfirmDelete:
		return m.style.FocusedMessage.Render(session.DeleteQuestion + " [y/n]")
	case StateUserInput:
		return m.style.FocusedMessage.Render(m.textArea.View())
	case StateMovingAround, StateHistory:
		return m.style.UnselectedMessage.Render(m.textArea.View())
	}
	return m.textArea.View()
}

func (m Model) statusView() string {
	return m.style.Status.Render(m.status)
}

func (m Model) View() string {
	main := m.viewport.View()
	if m.showSidebar() {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
	}

	return m.headerView() + "\n" +
		m.viewerView() + "\n" +
		main + "\n" +
		m.inputView() + "\n" +
		m.statusView() + "\n" +
		m.help.View(m.keyMap)
}

func (m *Model) tracker() *feedback.Tracker {
	id := m.session.ThreadID()
	t, ok := m.trackers[id]
	if !ok {
		t = feedback.NewTracker(m.submitter, id, m.session.Tenant(), m.feedbackOptions...)
		m.trackers[id] = t
	}
	return t
}

func (m *Model) selectedAttachment() (*feedback.Attachment, bool) {
	a, err := m.tracker().For(m.session.Messages(), m.selectedIdx)
	if err != nil {
		m.status = err.Error()
		return nil, false
	}
	return a, true
}

func (m *Model) thumbsUp() tea.Cmd {
	a, ok := m.selectedAttachment()
	if !ok {
		return nil
	}
	if !a.CanSubmit(backend.FeedbackThumbsUp) {
		m.status = feedback.ErrAlreadyRecorded.Error()
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return feedbackMsg{polarity: backend.FeedbackThumbsUp, err: a.ThumbsUp(ctx)}
	}
}

func (m *Model) startComment() tea.Cmd {
	a, ok := m.selectedAttachment()
	if !ok {
		return nil
	}
	if !a.CanSubmit(backend.FeedbackThumbsDown) {
		m.status = feedback.ErrAlreadyRecorded.Error()
		return nil
	}
	m.pendingFeedback = a
	m.comment.Reset()
	m.setState(StateComment)
	return m.comment.Focus()
}

func (m *Model) submitComment() tea.Cmd {
	a := m.pendingFeedback
	text := strings.TrimSpace(m.comment.Value())
	m.pendingFeedback = nil
	m.comment.Blur()
	m.setState(StateMovingAround)
	if a == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		err := a.ThumbsDown(ctx, prompt.StaticComment{Text: text})
		return feedbackMsg{polarity: backend.FeedbackThumbsDown, err: err}
	}
}

func (m *Model) openSelectedReference() {
	msgs := m.session.Messages()
	if m.selectedIdx < 0 || m.selectedIdx >= len(msgs) || !msgs[m.selectedIdx].HasReferences() {
		m.status = "no document cited by this message"
		return
	}
	m.viewer.Open(msgs[m.selectedIdx].References[0])
	m.recomputeSize()
}

func (m Model) activeThreadIdx() int {
	activeID := m.session.ThreadID()
	for idx, t := range m.threads {
		if t.ID == activeID {
			return idx
		}
	}
	return 0
}

func (m Model) cursorThread() (threads.Thread, bool) {
	if m.threadIdx < 0 || m.threadIdx >= len(m.threads) {
		return threads.Thread{}, false
	}
	return m.threads[m.threadIdx], true
}

// Chat commands, run off the update loop.

func (m *Model) submit() tea.Cmd {
	text := m.textArea.Value()
	if strings.TrimSpace(text) == "" {
		m.status = session.ErrBlankInput.Error()
		return nil
	}
	m.textArea.SetValue("")
	m.status = ""

	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		answer, err := s.Send(ctx, text)
		return sentMsg{answer: answer, err: err}
	}
}

func (m Model) loadCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		s.Load(ctx)
		return loadedMsg{}
	}
}

func (m Model) threadsCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return threadsMsg{threads: s.Threads(ctx)}
	}
}

func (m Model) switchCmd(id string) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return switchedMsg{err: s.SwitchThread(ctx, id)}
	}
}

func (m Model) newThreadCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		s.NewThread(ctx)
		return switchedMsg{}
	}
}

func (m Model) deleteCmd(id string, confirmed bool) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		res, err := s.DeleteThread(ctx, id, prompt.Static(confirmed))
		return deletedMsg{result: res, err: err}
	}
}
