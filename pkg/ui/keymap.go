package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SelectPrevMessage key.Binding
	SelectNextMessage key.Binding
	UnfocusMessage    key.Binding
	FocusMessage      key.Binding
	SubmitMessage     key.Binding

	ThumbsUp      key.Binding
	ThumbsDown    key.Binding
	SubmitComment key.Binding
	CancelComment key.Binding
	OpenReference key.Binding
	CloseViewer   key.Binding
	ToggleHistory key.Binding
	PrevThread    key.Binding
	NextThread    key.Binding
	SwitchThread  key.Binding
	NewThread     key.Binding
	DeleteThread  key.Binding
	ConfirmDelete key.Binding
	RejectDelete  key.Binding
	DismissError  key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	SelectPrevMessage: key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous message")),
	SelectNextMessage: key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next message")),
	UnfocusMessage:    key.NewBinding(key.WithKeys("esc", "ctrl+g"), key.WithHelp("esc", "browse messages")),
	FocusMessage:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "write")),
	SubmitMessage:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "send")),

	ThumbsUp:      key.NewBinding(key.WithKeys("+"), key.WithHelp("+", "helpful")),
	ThumbsDown:    key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "not helpful")),
	SubmitComment: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "submit feedback")),
	CancelComment: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	OpenReference: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open document")),
	CloseViewer:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close document")),
	ToggleHistory: key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "conversations")),
	PrevThread:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "previous")),
	NextThread:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "next")),
	SwitchThread:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	NewThread:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
	DeleteThread:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	ConfirmDelete: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "delete")),
	RejectDelete:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "keep")),
	DismissError:  key.NewBinding(key.WithKeys("esc", "enter"), key.WithHelp("esc", "dismiss")),

	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.SubmitMessage, k.UnfocusMessage, k.FocusMessage,
		k.ThumbsUp, k.ThumbsDown, k.SubmitComment, k.CancelComment,
		k.SwitchThread, k.NewThread, k.DeleteThread,
		k.ConfirmDelete, k.RejectDelete, k.DismissError,
		k.ToggleHistory, k.Help, k.Quit,
	}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SubmitMessage, k.UnfocusMessage, k.FocusMessage, k.SelectPrevMessage, k.SelectNextMessage},
		{k.ThumbsUp, k.ThumbsDown, k.SubmitComment, k.CancelComment, k.OpenReference, k.CloseViewer},
		{k.ToggleHistory, k.PrevThread, k.NextThread, k.SwitchThread, k.NewThread, k.DeleteThread},
		{k.ConfirmDelete, k.RejectDelete, k.DismissError, k.Help, k.Quit},
	}
}
