// Package merkle builds commitments over ordered leaf sequences and produces
// and verifies membership proofs against them.
//
// Nodes are hashed with blake2b-256. A parent is the hash of its two children
// concatenated left to right; the last node of an odd-length layer is paired
// with itself. Trees are stored breadth-first in a single slice (leaves first,
// root last) so that any node can be addressed by one index.
package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrEmptyTree is returned when building a tree from no leaves.
	ErrEmptyTree = errors.New("merkle: empty leaf set")

	// ErrIndexOutOfRange is returned for leaf indexes outside [1, n].
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// HashSize is the digest length in bytes.
const HashSize = blake2b.Size256

// Hash is a node digest.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// String renders h as 0x-prefixed hex.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The 0x prefix is optional.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a hex digest, with or without the 0x prefix.
func ParseHash(s string) (Hash, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return Hash{}, fmt.Errorf("merkle: decode hash: %w", err)
	}
	if len(raw) != HashSize {
		return Hash{}, fmt.Errorf("merkle: hash must be %d bytes, got %d", HashSize, len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// LeafHash hashes an encoded leaf payload.
func LeafHash(payload []byte) Hash {
	return blake2b.Sum256(payload)
}

// hashPair hashes left || right.
func hashPair(left, right Hash) Hash {
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return blake2b.Sum256(buf[:])
}

// Tree is a fully materialised commitment tree.
type Tree struct {
	leaves int
	nodes  []Hash
}

// Build hashes every payload and folds the layers up to a single root.
func Build(payloads [][]byte) (*Tree, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyTree
	}

	nodes := make([]Hash, 0, 2*len(payloads))
	for _, p := range payloads {
		nodes = append(nodes, LeafHash(p))
	}

	start, width := 0, len(payloads)
	for width > 1 {
		for i := 0; i+1 < width; i += 2 {
			nodes = append(nodes, hashPair(nodes[start+i], nodes[start+i+1]))
		}
		if width%2 == 1 {
			last := nodes[start+width-1]
			nodes = append(nodes, hashPair(last, last))
		}
		start += width
		width = halfUp(width)
	}

	return &Tree{leaves: len(payloads), nodes: nodes}, nil
}

// Root returns the commitment.
func (t *Tree) Root() Hash {
	return t.nodes[len(t.nodes)-1]
}

// Len returns the number of leaves.
func (t *Tree) Len() int { return t.leaves }

// Nodes returns the breadth-first node layout. The slice must not be modified.
func (t *Tree) Nodes() []Hash { return t.nodes }

// Proof returns the membership proof of the 1-based leaf index i.
func (t *Tree) Proof(i int) (Proof, error) {
	path, err := IndexPath(t.leaves, i)
	if err != nil {
		return nil, err
	}
	proof := make(Proof, 0, len(path))
	for _, step := range path {
		proof = append(proof, ProofItem{Hash: t.nodes[step.Index-1], Side: step.Side})
	}
	return proof, nil
}

// PathStep addresses a sibling in the breadth-first layout. Index is 1-based.
type PathStep struct {
	Index int
	Side  Side
}

// IndexPath lists the siblings needed to climb from leaf i (1-based) of an n
// leaf tree to the root. The unpaired tail of an odd layer references itself
// and is tagged Left.
func IndexPath(n, i int) ([]PathStep, error) {
	if n < 1 || i < 1 || i > n {
		return nil, fmt.Errorf("%w: leaf %d of %d", ErrIndexOutOfRange, i, n)
	}

	var path []PathStep
	offset, idx, width := 0, i, n
	for width != 1 {
		switch {
		case idx%2 == 1 && idx == width:
			path = append(path, PathStep{Index: offset + idx, Side: Left})
		case idx%2 == 1:
			path = append(path, PathStep{Index: offset + idx + 1, Side: Right})
		default:
			path = append(path, PathStep{Index: offset + idx - 1, Side: Left})
		}
		offset += width
		idx = halfUp(idx)
		width = halfUp(width)
	}
	return path, nil
}

// Verify folds the proof over the payload hash and compares with root.
func Verify(payload []byte, root Hash, proof Proof) bool {
	acc := LeafHash(payload)
	for _, item := range proof {
		switch item.Side {
		case Left:
			acc = hashPair(item.Hash, acc)
		case Right:
			acc = hashPair(acc, item.Hash)
		default:
			return false
		}
	}
	return acc == root
}

func halfUp(x int) int { return x/2 + x%2 }
