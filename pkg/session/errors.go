package session

import "errors"

var (
	ErrBlankInput   = errors.New("question is blank")
	ErrNotConfirmed = errors.New("action not confirmed")
)
