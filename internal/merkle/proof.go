package merkle

import "fmt"

// Side tells on which side of the running hash a proof sibling is placed.
type Side uint8

const (
	// Right appends the sibling after the running hash.
	Right Side = iota
	// Left prepends the sibling before the running hash.
	Left
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case Left, Right:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("merkle: invalid side %d", uint8(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	default:
		return fmt.Errorf("merkle: invalid side %q", string(text))
	}
	return nil
}

// ProofItem is one sibling on the path from a leaf to the root.
type ProofItem struct {
	Hash Hash `json:"hash" yaml:"hash"`
	Side Side `json:"side" yaml:"side"`
}

// Proof is an ordered leaf-to-root list of siblings.
type Proof []ProofItem
