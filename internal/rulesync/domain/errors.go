package domain

import "errors"

// Input and resolution errors. They abort an operation before any server
// is touched.
var (
	ErrEmptyTarget             = errors.New("target is required")
	ErrEmptyRule               = errors.New("rule is required")
	ErrUnknownTargetType       = errors.New("unknown target type")
	ErrGroupNotFound           = errors.New("group not found")
	ErrServerNotFound          = errors.New("server not found")
	ErrCustomRulesSyncDisabled = errors.New("custom rules sync is disabled for group")
)
