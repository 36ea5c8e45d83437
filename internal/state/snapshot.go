// Package state models interpreter-visible persisted state as entities and
// computes content-addressed diffs between snapshots. The interpreter's
// global namespace is never treated as unstructured state: everything routes
// through capture/diff/commit.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type Kind string

const (
	KindProc Kind = "proc"
	KindVar  Kind = "var"
)

// EntityRef is entity identity: (kind, name).
type EntityRef struct {
	Kind Kind
	Name string
}

// Snapshot is the complete name→content mapping of all entities visible in
// the interpreter at one instant, excluding the fixed baseline set.
type Snapshot map[EntityRef]string

// Hash is the content digest used throughout the store.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Source is the narrow interpreter surface the engine enumerates.
type Source interface {
	ProcNames() []string
	ProcContent(name string) (string, bool)
	VarNames() []string
	VarContent(name string) (string, bool)
}

// Capture enumerates every procedure and variable currently defined,
// skipping the baseline set established at fresh-interpreter bootstrap.
// Two captures of an unchanged interpreter are identical.
func Capture(src Source, baseline map[EntityRef]bool) Snapshot {
	snap := Snapshot{}
	for _, name := range src.ProcNames() {
		ref := EntityRef{Kind: KindProc, Name: name}
		if baseline[ref] {
			continue
		}
		if content, ok := src.ProcContent(name); ok {
			snap[ref] = content
		}
	}
	for _, name := range src.VarNames() {
		ref := EntityRef{Kind: KindVar, Name: name}
		if baseline[ref] {
			continue
		}
		if content, ok := src.VarContent(name); ok {
			snap[ref] = content
		}
	}
	return snap
}

// Refs returns the snapshot's entity identities in deterministic order.
func (s Snapshot) Refs() []EntityRef {
	refs := make([]EntityRef, 0, len(s))
	for ref := range s {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Equal compares two snapshots by content.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for ref, content := range s {
		if other[ref] != content {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for ref, content := range s {
		out[ref] = content
	}
	return out
}
