// Package errors provides the standardized error taxonomy for the substrate.
package errors

import (
	"fmt"
)

// Category groups errors by the layer that raises them.
type Category string

const (
	CategoryMemory  Category = "MEMORY"
	CategoryBounds  Category = "BOUNDS"
	CategoryActor   Category = "ACTOR"
	CategoryCodegen Category = "CODEGEN"
)

// Code identifies a specific error condition within a category.
type Code string

const (
	CodeOutOfMemory            Code = "OUT_OF_MEMORY"
	CodeOutOfBounds            Code = "OUT_OF_BOUNDS"
	CodeSlotReleased           Code = "SLOT_RELEASED"
	CodeInvalidImage           Code = "INVALID_IMAGE"
	CodeUnknownRecipient       Code = "UNKNOWN_RECIPIENT"
	CodeDuplicateDispatchEntry Code = "DUPLICATE_DISPATCH_ENTRY"
	CodeMissingHandler         Code = "MISSING_HANDLER"
)

// Error is the structured error type shared by all substrate layers.
type Error struct {
	Category Category
	Code     Code
	Message  string
	Context  map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Is matches errors by code so callers can use errors.Is against the
// sentinels below without caring about message or context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrOutOfMemory            = &Error{Category: CategoryMemory, Code: CodeOutOfMemory, Message: "out of memory"}
	ErrOutOfBounds            = &Error{Category: CategoryBounds, Code: CodeOutOfBounds, Message: "out of bounds"}
	ErrSlotReleased           = &Error{Category: CategoryMemory, Code: CodeSlotReleased, Message: "slot released"}
	ErrInvalidImage           = &Error{Category: CategoryBounds, Code: CodeInvalidImage, Message: "invalid byte image"}
	ErrUnknownRecipient       = &Error{Category: CategoryActor, Code: CodeUnknownRecipient, Message: "unknown recipient"}
	ErrDuplicateDispatchEntry = &Error{Category: CategoryCodegen, Code: CodeDuplicateDispatchEntry, Message: "duplicate dispatch entry"}
	ErrMissingHandler         = &Error{Category: CategoryCodegen, Code: CodeMissingHandler, Message: "missing handler"}
)

// New creates a structured error.
func New(category Category, code Code, message string, context map[string]interface{}) *Error {
	return &Error{Category: category, Code: code, Message: message, Context: context}
}

// Common error constructors

// OutOfMemory reports an allocation the backing store could not satisfy.
// Fatal to the requesting operation, not to the process.
func OutOfMemory(requested uintptr, limit uintptr) *Error {
	return New(CategoryMemory, CodeOutOfMemory,
		fmt.Sprintf("allocation of %d bytes exceeds limit %d", requested, limit),
		map[string]interface{}{"requested": requested, "limit": limit})
}

// OutOfBounds reports an offset/length violation. Always surfaced, never
// clamped.
func OutOfBounds(offset, length, bound int) *Error {
	return New(CategoryBounds, CodeOutOfBounds,
		fmt.Sprintf("access [%d, %d) out of bounds for length %d", offset, offset+length, bound),
		map[string]interface{}{"offset": offset, "length": length, "bound": bound})
}

// SlotReleased reports use of a released chunk slot.
func SlotReleased(slot uint32) *Error {
	return New(CategoryMemory, CodeSlotReleased,
		fmt.Sprintf("slot %d has been released", slot),
		map[string]interface{}{"slot": slot})
}

// InvalidImage reports a byte image that cannot be decoded into the
// requested container or message type.
func InvalidImage(detail string) *Error {
	return New(CategoryBounds, CodeInvalidImage, detail, nil)
}

// UnknownRecipient reports a send to an actor that is not registered or has
// retired.
func UnknownRecipient(id uint64) *Error {
	return New(CategoryActor, CodeUnknownRecipient,
		fmt.Sprintf("actor %d is not registered or has retired", id),
		map[string]interface{}{"actor": id})
}

// DuplicateDispatchEntry reports two registrations for the same
// (actor type, message tag) pair.
func DuplicateDispatchEntry(actorType string, tag uint32) *Error {
	return New(CategoryCodegen, CodeDuplicateDispatchEntry,
		fmt.Sprintf("handler for (%s, tag 0x%08x) registered twice", actorType, tag),
		map[string]interface{}{"actorType": actorType, "tag": tag})
}

// MissingHandler reports a message tag with no registered handler for the
// actor type. By construction this should be caught at build time.
func MissingHandler(actorType string, tag uint32) *Error {
	return New(CategoryCodegen, CodeMissingHandler,
		fmt.Sprintf("no handler for (%s, tag 0x%08x)", actorType, tag),
		map[string]interface{}{"actorType": actorType, "tag": tag})
}
