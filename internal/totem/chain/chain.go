// Package chain maintains the running hash linkage between audit records.
//
// Each link hashes the previous tip together with the record's action,
// summary and timestamp:
//
//	hash = SHA-256(prev_hash | action | summary | unix_millis)
//
// with every field length-prefixed (see digest.Hex), so moving text across
// the action/summary boundary changes the hash.
//
// The first link is rooted at the fixed Genesis sentinel. A Chain is not safe
// for concurrent use; the ledger that owns it serializes appends.
package chain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/CheRocks42/project-re-governance-protocol/internal/totem/digest"
)

// Genesis is the tip of an empty chain.
const Genesis = "GENESIS"

// Link is the hashed portion of an audit record.
type Link struct {
	Action    string
	Summary   string
	Timestamp time.Time
}

// Chain holds the current tip. The only mutation is Append.
type Chain struct {
	tip string
}

// New returns a chain rooted at Genesis.
func New() *Chain {
	return &Chain{tip: Genesis}
}

// Resume returns a chain whose tip was restored from earlier state. An empty
// tip resumes at Genesis.
func Resume(tip string) *Chain {
	if tip == "" {
		tip = Genesis
	}
	return &Chain{tip: tip}
}

// Tip returns the hash of the most recently appended link.
func (c *Chain) Tip() string { return c.tip }

// Append hashes l onto the current tip, advances the tip, and returns both
// the new hash and the tip it was linked to.
func (c *Chain) Append(l Link) (hash, prev string) {
	prev = c.tip
	hash = Compute(prev, l)
	c.tip = hash
	return hash, prev
}

// Compute is the pure hash function behind Append.
func Compute(prev string, l Link) string {
	return digest.Hex(prev, l.Action, l.Summary, strconv.FormatInt(l.Timestamp.UnixMilli(), 10))
}

// Record is a stored link as seen by verification.
type Record struct {
	Link
	PrevHash string
	Hash     string
}

// IntegrityError reports the first position at which a chain stops matching
// its recomputation. It always indicates a bug or tampering, never a user
// condition.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at index %d: %s", e.Index, e.Reason)
}

// Verify recomputes records from Genesis and returns the first mismatch.
func Verify(records []Record) error {
	tip := Genesis
	for i, r := range records {
		if r.PrevHash != tip {
			return &IntegrityError{Index: i, Reason: fmt.Sprintf("prev_hash %s does not link to %s", r.PrevHash, tip)}
		}
		expected := Compute(tip, r.Link)
		if r.Hash != expected {
			return &IntegrityError{Index: i, Reason: fmt.Sprintf("hash %s != recomputed %s", r.Hash, expected)}
		}
		tip = r.Hash
	}
	return nil
}

// Broken returns every index whose stored hash or linkage disagrees with the
// recomputed chain. Recomputation carries the recomputed tip forward, so a
// single edited record invalidates itself and every record after it.
func Broken(records []Record) []int {
	var out []int
	tip := Genesis
	for i, r := range records {
		expected := Compute(tip, r.Link)
		if r.PrevHash != tip || r.Hash != expected {
			out = append(out, i)
		}
		tip = expected
	}
	return out
}
