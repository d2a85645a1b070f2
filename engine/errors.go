package engine

import "errors"

var (
	// ErrTurnFailed wraps a completion failure on the chat path. Nothing was
	// committed; the caller should ask the user to retry.
	ErrTurnFailed = errors.New("chat turn failed, please retry")

	// ErrConsistency marks an attempt to commit a turn without a successful
	// completion. It indicates a programming error.
	ErrConsistency = errors.New("commit without a successful completion")

	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyUser    = errors.New("user id is empty")
)
