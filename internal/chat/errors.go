package chat

import "errors"

var (
	// ErrNoSelection reports operations that need an open conversation.
	ErrNoSelection = errors.New("no conversation selected")

	// ErrGroupNameRequired rejects group creation before any network
	// dispatch.
	ErrGroupNameRequired = errors.New("group name is required")
)
