package luabridge

import (
	"strings"

	"github.com/wippyai/lua-bridge/errors"
)

// MetaMethod names a metatable entry. The typed constants cover the
// engine's dispatchable set; any other "__"-prefixed name is accepted
// as long as it passes Validate.
type MetaMethod string

const (
	MetaAdd      MetaMethod = "__add"
	MetaSub      MetaMethod = "__sub"
	MetaMul      MetaMethod = "__mul"
	MetaDiv      MetaMethod = "__div"
	MetaMod      MetaMethod = "__mod"
	MetaPow      MetaMethod = "__pow"
	MetaUnm      MetaMethod = "__unm"
	MetaConcat   MetaMethod = "__concat"
	MetaLen      MetaMethod = "__len"
	MetaEq       MetaMethod = "__eq"
	MetaLt       MetaMethod = "__lt"
	MetaLe       MetaMethod = "__le"
	MetaIndex    MetaMethod = "__index"
	MetaNewIndex MetaMethod = "__newindex"
	MetaCall     MetaMethod = "__call"
	MetaToString MetaMethod = "__tostring"
	MetaName     MetaMethod = "__name"

	// MetaClose registers but Lua 5.1 engines never invoke it.
	MetaClose MetaMethod = "__close"
)

// reservedPrefix marks metatable keys the bridge manages itself.
const reservedPrefix = "__luabridge"

// Validate reports whether the name may be registered. The collection
// hook and the metatable-protection key stay under engine control, and
// the bridge's own keys are off limits.
func (m MetaMethod) Validate() error {
	name := string(m)
	switch {
	case name == "__gc":
		return errors.MetaRestricted(errors.PhaseRegistry, name)
	case name == "__metatable":
		return errors.MetaRestricted(errors.PhaseRegistry, name)
	case strings.HasPrefix(name, reservedPrefix):
		return errors.MetaRestricted(errors.PhaseRegistry, name)
	case !strings.HasPrefix(name, "__") || len(name) <= 2:
		return errors.InvalidInput(errors.PhaseRegistry,
			"metamethod name must start with __")
	}
	return nil
}

func (m MetaMethod) String() string {
	return string(m)
}
