package pool

import (
	"fmt"
	"strings"
)

/*
Selection policies of a ServerPool:

	  Selection     Skips dead servers   Order
	-------------- -------------------- ----------------------
	| Fallback    | yes                | first alive, in order |
	| RoundRobin  | no                 | rotating cursor       |
	| Random      | yes                | uniform               |
*/
type Selection uint32

const (
	Fallback   Selection = iota // The first alive server in pool order.
	RoundRobin                  // The server at the cursor, regardless of liveness.
	Random                      // A uniformly chosen alive server.
)

func (s Selection) String() string {
	switch s {
	case Fallback:
		return "fallback"
	case RoundRobin:
		return "round-robin"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("selection(%d)", uint32(s))
	}
}

// ParseSelection parses the String form of a Selection. Underscores are
// accepted in place of dashes.
func ParseSelection(s string) (Selection, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "fallback":
		return Fallback, nil
	case "round-robin", "roundrobin", "rr":
		return RoundRobin, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownSelection, s)
	}
}
