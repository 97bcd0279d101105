package chat

import "errors"

var (
	// ErrSessionNotFound is returned when a chat_id has no session row.
	ErrSessionNotFound = errors.New("chat: session not found")

	// ErrMessageNotFound is returned when (id, chat_id) matches no message.
	ErrMessageNotFound = errors.New("chat: message not found")

	// ErrAnchorNotFound is returned when an insert names an after_message_id
	// that does not exist in the chat. That is a caller contract violation,
	// never silently downgraded to an append.
	ErrAnchorNotFound = errors.New("chat: anchor message not found")

	// ErrJobNotFound is returned for an unknown export job id.
	ErrJobNotFound = errors.New("chat: export job not found")

	// ErrUnknownFormat is returned for an unregistered export format name.
	ErrUnknownFormat = errors.New("chat: unknown export format")
)
