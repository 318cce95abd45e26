// Package addr maps user-facing Modbus register addresses (1-based
// coils/discretes, 30001/40001 conventional bases) onto wire-level 0-based
// addresses.
package addr

import "fmt"

// RegisterType mirrors config.RegisterType without importing it, so this
// package stays free of a config dependency.
type RegisterType string

const (
	Coil     RegisterType = "coil"
	Discrete RegisterType = "discrete"
	Holding  RegisterType = "holding"
	Input    RegisterType = "input"
)

// Normalize maps a config-level address to a wire-level 0-based address.
// When normalize is false the address is returned unchanged: the operator
// has declared it already wire-level.
//
//   - holding, a >= 40001 -> a-40001
//   - input,   a >= 30001 -> a-30001
//   - coil|discrete, 1 <= a < 100000 -> a-1
//   - otherwise unchanged
//
// Applying Normalize to an already-normalized address is a no-op: every
// rule's guard only fires on addresses expressed in the 1-based/4xxxx/3xxxx
// convention, never on the wire-level range it produces.
func Normalize(a int, rt RegisterType, normalize bool) int {
	if !normalize {
		return a
	}
	switch rt {
	case Holding:
		if a >= 40001 {
			return a - 40001
		}
	case Input:
		if a >= 30001 {
			return a - 30001
		}
	case Coil, Discrete:
		if a >= 1 && a < 100000 {
			return a - 1
		}
	}
	return a
}

// Span reports the wire-level [start, start+words) register/bit range a
// parameter occupies, and rejects configurations where a multi-word
// parameter would straddle the 40001/30001 convention boundary: one word
// addressed in the raw wire space and the next pulled across the
// conventional offset makes no sense, and previously manifested as a
// silent address underflow. Normalize itself never returns a negative
// number, but a straddling run is still a misconfiguration, not a wire
// address, so it is rejected here rather than handed to a transport.
func Span(a int, rt RegisterType, words int, normalize bool) (start, end int, err error) {
	if normalize {
		var base int
		switch rt {
		case Holding:
			base = 40001
		case Input:
			base = 30001
		}
		if base != 0 && words > 1 && a < base && a+words-1 >= base {
			return 0, 0, fmt.Errorf("address %d with words=%d straddles the %d convention boundary", a, words, base)
		}
	}
	start = Normalize(a, rt, normalize)
	end = start + words
	if start < 0 {
		return 0, 0, fmt.Errorf("address %d normalizes to a negative wire address", a)
	}
	return start, end, nil
}
