package plugins

import (
	"errors"
	"fmt"
)

// Common error variables for registry operations
var (
	// ErrPluginNotFound indicates that the id is unknown, still installing, or already removed
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginNotActive indicates an operation that requires an Active context
	// was attempted on a context in another state
	ErrPluginNotActive = errors.New("plugin not active")

	// ErrDuplicateID indicates that a freshly allocated id was already present in the index.
	// Monotonic allocation makes this impossible; observing it is fatal
	ErrDuplicateID = errors.New("duplicate plugin id")

	// ErrLoadFailure indicates that a module could not be loaded or installed.
	// Only that module's install is aborted
	ErrLoadFailure = errors.New("plugin load failure")

	// ErrSymbolNotFound indicates that a module handle lacks a required entry symbol
	ErrSymbolNotFound = errors.New("plugin symbol not found")

	// ErrUnsupportedVersion indicates that a module declares an API version outside
	// [MinVersion, CurrentVersion]
	ErrUnsupportedVersion = errors.New("unsupported plugin API version")

	// ErrCallbackKind indicates that a callback's type does not match the event kind
	ErrCallbackKind = errors.New("callback type does not match event kind")

	// ErrRegionSealed indicates an attempt to attach to a region whose translation finished
	ErrRegionSealed = errors.New("translated region is sealed")

	// ErrDanglingRegion indicates execution through a region discarded by a code-cache flush.
	// It is raised as a panic, never returned
	ErrDanglingRegion = errors.New("execution through discarded region")

	// ErrInvalidArgument indicates a malformed argument such as a misaligned scoreboard offset
	ErrInvalidArgument = errors.New("invalid argument")
)

// PluginError represents a detailed error that occurred during a registry operation
type PluginError struct {
	// PluginID identifies the context the error refers to; zero when none was allocated yet
	PluginID ID

	// Operation describes the action that was being performed when the error occurred
	Operation string

	// Message provides a detailed description of the error
	Message string

	// Err is the underlying error that caused this PluginError
	Err error
}

// Error implements the error interface for PluginError
func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin %s: %s failed: %s (%v)", e.PluginID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("plugin %s: %s failed: %s", e.PluginID, e.Operation, e.Message)
}

// Unwrap implements the errors unwrap interface
func (e *PluginError) Unwrap() error {
	return e.Err
}

// NewPluginError creates a new PluginError with the given details
func NewPluginError(id ID, operation, message string, err error) *PluginError {
	return &PluginError{
		PluginID:  id,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
