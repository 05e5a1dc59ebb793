// Package auditlog is the append-only record of every Arbiter decision. It
// anchors entries into a Merkle tree for tamper evidence, adapted from the
// teacher's ledger package: a full-rebuild-on-append tree sized for an
// append-only audit trail, not for high write throughput.
package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of one Arbiter evaluation.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionHold  Decision = "hold"
	DecisionBlock Decision = "block"
)

// Entry is one append-only audit record, matching the external wire
// format's field set plus the hash-chain fields used for Merkle anchoring.
type Entry struct {
	EntryID      string    `json:"entryId"`
	Timestamp    time.Time `json:"ts"`
	AgentID      string    `json:"agentId"`
	Frame        string    `json:"frame"`
	ParentFrame  string    `json:"parentFrame,omitempty"`
	Decision     Decision  `json:"decision"`
	Reasons      []string  `json:"reasons"`
	DriftScore   float64   `json:"driftScore"`
	CircuitState string    `json:"circuitState"`
	EntryHash    string    `json:"entryHash"`
}

type merkleNode struct {
	left, right *merkleNode
	hash        string
}

// Log is the append-only audit trail for a single Engine instance. Appends
// are serialized under a single mutex, matching the teacher's ledger
// locking granularity — audit entries are low-frequency relative to the
// per-agent locks guarding the rest of the engine.
type Log struct {
	mu      sync.Mutex
	entries []*Entry
	leaves  []*merkleNode
	root    *merkleNode
	w       io.Writer // optional newline-delimited JSON sink
}

// New constructs an empty audit log. If w is non-nil, every appended entry
// is additionally encoded as a newline-delimited JSON record to w, matching
// the external audit log wire format.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Append records a new entry, computing its EntryHash from the entry's
// canonical fields and the previous entry's hash, then anchors it into the
// Merkle tree. Returns the stored entry (with EntryHash populated).
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.EntryID = uuid.New().String()
	e.Timestamp = time.Now()
	prevHash := ""
	if n := len(l.entries); n > 0 {
		prevHash = l.entries[n-1].EntryHash
	}
	e.EntryHash = hashString(fmt.Sprintf("%s|%s|%s|%s|%s", prevHash, e.AgentID, e.Frame, e.Decision, joinReasons(e.Reasons)))

	stored := e
	l.entries = append(l.entries, &stored)
	l.leaves = append(l.leaves, &merkleNode{hash: stored.EntryHash})
	l.rebuildRoot()

	if l.w != nil {
		if data, err := json.Marshal(stored); err == nil {
			l.w.Write(data)
			l.w.Write([]byte("\n"))
		}
	}

	return stored
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}

// rebuildRoot rebuilds the Merkle tree from scratch. Must be called with
// l.mu held.
func (l *Log) rebuildRoot() {
	if len(l.leaves) == 0 {
		l.root = nil
		return
	}
	if len(l.leaves) == 1 {
		l.root = l.leaves[0]
		return
	}

	nodes := make([]*merkleNode, len(l.leaves))
	copy(nodes, l.leaves)
	for len(nodes) > 1 {
		var next []*merkleNode
		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			right := left
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}
			next = append(next, &merkleNode{left: left, right: right, hash: hashString(left.hash + right.hash)})
		}
		nodes = next
	}
	l.root = nodes[0]
}

// Root returns the current Merkle root hash, or "" if the log is empty.
func (l *Log) Root() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root == nil {
		return ""
	}
	return l.root.hash
}

// ForAgent returns every entry recorded for agentID, in append order —
// since audit entries for a single agent are totally ordered and match
// Arbiter call order, this is also their decision order.
func (l *Log) ForAgent(agentID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.AgentID == agentID {
			out = append(out, *e)
		}
	}
	return out
}

// All returns every entry recorded, in append order.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// VerifyInclusion reports whether entryHash is present in the current
// Merkle tree by recomputing the root from a freshly generated proof.
func (l *Log) VerifyInclusion(entryHash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, n := range l.leaves {
		if n.hash == entryHash {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	return l.verifyAgainstRootLocked(idx)
}

func (l *Log) verifyAgainstRootLocked(leafIdx int) bool {
	if l.root == nil {
		return false
	}
	nodes := make([]*merkleNode, len(l.leaves))
	copy(nodes, l.leaves)
	idx := leafIdx
	current := nodes[idx].hash

	for len(nodes) > 1 {
		var next []*merkleNode
		newIdx := idx / 2
		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			right := left
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}
			if i == idx {
				current = hashString(current + right.hash)
			} else if i+1 == idx {
				current = hashString(left.hash + current)
			}
			next = append(next, &merkleNode{left: left, right: right, hash: hashString(left.hash + right.hash)})
		}
		nodes = next
		idx = newIdx
	}
	return current == l.root.hash
}
