package conversation

import "errors"

var (
	// ErrValidation reports a malformed chat request.
	ErrValidation = errors.New("conversation: invalid request")

	// ErrNotFound reports a conversation the tenant does not own. The
	// same error covers a missing ID and a cross-tenant ID so callers
	// cannot probe for other tenants' conversations.
	ErrNotFound = errors.New("conversation: not found")

	// ErrPersistence reports a turn store failure.
	ErrPersistence = errors.New("conversation: persistence failed")
)
