package gate

import (
	"errors"
	"fmt"
)

var (
	ErrZeroInterval       = errors.New("cooldown interval must be > 0")
	ErrAlreadyInitialized = errors.New("gate already initialized")
	ErrUninitialized      = errors.New("gate not initialized")
)

// CooldownError is the only failure expected in normal operation. Root is
// the identity the cooldown is charged to, Caller the identity of the
// immediate invocation; they differ when a protected body re-entered the
// gate through another caller.
type CooldownError struct {
	Root   string
	Caller string
	Expiry uint64
}

func (e *CooldownError) Error() string {
	if e.Caller != e.Root {
		return fmt.Sprintf("cooldown active for %s until %d (reentered via %s)", e.Root, e.Expiry, e.Caller)
	}
	return fmt.Sprintf("cooldown active for %s until %d", e.Root, e.Expiry)
}
