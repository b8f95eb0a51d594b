package models

import (
	"errors"
	"fmt"
	"strings"
)

// Typed failures surfaced by the marketplace core. All preconditions are
// checked before any mutation; handlers map these onto the API envelope.
var (
	// ErrUnauthenticated: no resolvable caller identity. Always checked
	// before any other validation.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden: the caller is authenticated but lacks the rights for
	// a moderation operation.
	ErrForbidden = errors.New("forbidden")

	// ErrItemNotFound: the referenced marketplace item does not exist.
	ErrItemNotFound = errors.New("marketplace item not found")

	// ErrPluginNotFound: the referenced item is missing or not a plugin.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrAlreadyInstalled: uniqueness violation on (user_id, plugin_id).
	ErrAlreadyInstalled = errors.New("plugin already installed")

	// ErrNotInstalled: the operation requires an existing installation.
	ErrNotInstalled = errors.New("plugin not installed")

	// ErrUnknownPermission: a single token outside the enumerated set.
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrStorageUnavailable: backend fault on a scoped-storage operation.
	ErrStorageUnavailable = errors.New("plugin storage unavailable")

	// ErrBackendFault: persistence failure on catalog/installation paths.
	ErrBackendFault = errors.New("backend fault")
)

// InvalidPermissionSetError reports exactly which declared permission
// tokens are outside the enumerated set, so callers can report precisely
// which manifest entry is invalid.
type InvalidPermissionSetError struct {
	Unknown []string
}

func (e *InvalidPermissionSetError) Error() string {
	return fmt.Sprintf("invalid permission set: unknown tokens: %s", strings.Join(e.Unknown, ", "))
}
