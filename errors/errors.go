package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegistry  Phase = "registry"  // capability registration
	PhaseDispatch  Phase = "dispatch"  // script-initiated calls
	PhaseBorrow    Phase = "borrow"    // cell borrow discipline
	PhaseEncode    Phase = "encode"    // Go to Lua
	PhaseDecode    Phase = "decode"    // Lua to Go
	PhaseAppData   Phase = "appdata"   // app-state store
	PhaseUserValue Phase = "uservalue" // per-object user values
	PhaseRuntime   Phase = "runtime"   // runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindBorrowConflict Kind = "borrow_conflict"
	KindTypeMismatch   Kind = "type_mismatch"
	KindDestructed     Kind = "destructed"
	KindMetaRestricted Kind = "metamethod_restricted"
	KindUserValueRange Kind = "user_value_out_of_range"
	KindDepthExceeded  Kind = "depth_exceeded"
	KindUnsupported    Kind = "unsupported_value_kind"
	KindHostCallback   Kind = "host_callback"
	KindRegistration   Kind = "registration"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	LuaType  string
	TypeName string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.TypeName != "" {
		b.WriteString(" on ")
		b.WriteString(e.TypeName)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.LuaType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.LuaType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", Lua type ")
			b.WriteString(e.LuaType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("Lua type ")
			b.WriteString(e.LuaType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.LuaType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// LuaType sets the Lua type name
func (b *Builder) LuaType(t string) *Builder {
	b.err.LuaType = t
	return b
}

// TypeName sets the registered host type name
func (b *Builder) TypeName(name string) *Builder {
	b.err.TypeName = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// BorrowConflict creates a borrow conflict error
func BorrowConflict(phase Phase, typeName, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindBorrowConflict,
		TypeName: typeName,
		Detail:   detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, luaType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		LuaType: luaType,
	}
}

// WrongType creates a type mismatch error for a handle holding a different host type
func WrongType(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		GoType: got,
		Detail: fmt.Sprintf("handle does not hold %s", want),
	}
}

// Destructed creates an access-after-destruction error
func Destructed(phase Phase, typeName string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindDestructed,
		TypeName: typeName,
		Detail:   "value has been destructed",
	}
}

// MetaRestricted creates a restricted metamethod error
func MetaRestricted(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMetaRestricted,
		Detail: fmt.Sprintf("metamethod %q is restricted", name),
		Value:  name,
	}
}

// UserValueRange creates a user value index error
func UserValueRange(index, max int) *Error {
	return &Error{
		Phase:  PhaseUserValue,
		Kind:   KindUserValueRange,
		Detail: fmt.Sprintf("index %d out of range (1..%d)", index, max),
		Value:  index,
	}
}

// DepthExceeded creates a recursion depth error
func DepthExceeded(phase Phase, path []string, max int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDepthExceeded,
		Path:   path,
		Detail: fmt.Sprintf("nesting depth exceeds %d", max),
	}
}

// Unsupported creates an unsupported value kind error
func Unsupported(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Path:   path,
		Detail: what,
	}
}

// HostCallback wraps an error raised by a host closure, preserving the cause
func HostCallback(cause error) *Error {
	return &Error{
		Phase: PhaseDispatch,
		Kind:  KindHostCallback,
		Cause: cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(typeName, capability string, cause error) *Error {
	return &Error{
		Phase:    PhaseRegistry,
		Kind:     KindRegistration,
		TypeName: typeName,
		Detail:   fmt.Sprintf("register %q", capability),
		Cause:    cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
