package fact

import (
	"crypto/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tag marks the provenance of a fact within a reasoning graph.
type Tag string

const (
	// TagGold marks a fact given as ground truth input.
	TagGold Tag = "gold"
	// TagDerived marks a fact produced by applying a rule.
	TagDerived Tag = "derived"
	// TagDistractor marks a leaf fact irrelevant to the answer, included
	// for narrative plausibility.
	TagDistractor Tag = "distractor"
)

// Fact is an atomic statement. Immutable once created.
type Fact struct {
	ID        string
	Predicate string
	Vars      map[string]string
	Value     string
	Tag       Tag
	Text      string
}

// Key identifies a fact by predicate and bound variables, independent of ID
// and provenance. Two facts with the same key are the same statement.
func (f Fact) Key() string {
	if len(f.Vars) == 0 {
		return f.Predicate
	}
	keys := make([]string, 0, len(f.Vars))
	for k := range f.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(f.Predicate)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(f.Vars[k])
	}
	return b.String()
}

// IsLeaf reports whether the fact was given rather than derived.
func (f Fact) IsLeaf() bool {
	return f.Tag != TagDerived
}

// Minter issues unique fact identifiers.
type Minter struct {
	entropy *ulid.MonotonicEntropy
}

// NewMinter creates a minter backed by monotonic ULIDs.
func NewMinter() *Minter {
	return &Minter{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a fresh identifier.
func (m *Minter) Next() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}
