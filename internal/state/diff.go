package state

import (
	"sort"
	"strings"
)

type Action string

const (
	ActionCreated  Action = "created"
	ActionModified Action = "modified"
	ActionDeleted  Action = "deleted"
)

// Change is one entity-level delta. Old/New content are carried so the store
// can write blobs and compute line stats without re-asking the interpreter.
type Change struct {
	Kind   Kind
	Name   string
	Action Action

	OldHash string
	NewHash string

	OldContent string
	NewContent string
}

// Diff is the ordered set of changes between two snapshots, compared by name
// and content hash. A redefinition with identical content yields no entry,
// and a rename surfaces as delete+create.
type Diff struct {
	Changes []Change
}

func ComputeDiff(before, after Snapshot) Diff {
	var changes []Change
	for ref, newContent := range after {
		oldContent, existed := before[ref]
		if !existed {
			changes = append(changes, Change{
				Kind: ref.Kind, Name: ref.Name, Action: ActionCreated,
				NewHash: Hash(newContent), NewContent: newContent,
			})
			continue
		}
		if oldContent != newContent {
			changes = append(changes, Change{
				Kind: ref.Kind, Name: ref.Name, Action: ActionModified,
				OldHash: Hash(oldContent), OldContent: oldContent,
				NewHash: Hash(newContent), NewContent: newContent,
			})
		}
	}
	for ref, oldContent := range before {
		if _, still := after[ref]; !still {
			changes = append(changes, Change{
				Kind: ref.Kind, Name: ref.Name, Action: ActionDeleted,
				OldHash: Hash(oldContent), OldContent: oldContent,
			})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
	return Diff{Changes: changes}
}

func (d Diff) Empty() bool { return len(d.Changes) == 0 }

// Apply replays the diff onto a snapshot, producing the after-state.
func (d Diff) Apply(snap Snapshot) Snapshot {
	out := snap.Clone()
	for _, ch := range d.Changes {
		ref := EntityRef{Kind: ch.Kind, Name: ch.Name}
		switch ch.Action {
		case ActionDeleted:
			delete(out, ref)
		default:
			out[ref] = ch.NewContent
		}
	}
	return out
}

// Summary renders the original one-line change summary, e.g.
// "+proc: greet | ~var: x | -var: tmp".
func (d Diff) Summary() string {
	group := func(kind Kind, action Action) []string {
		var names []string
		for _, ch := range d.Changes {
			if ch.Kind == kind && ch.Action == action {
				names = append(names, ch.Name)
			}
		}
		return names
	}
	var parts []string
	add := func(prefix string, kind Kind, action Action) {
		if names := group(kind, action); len(names) > 0 {
			parts = append(parts, prefix+": "+strings.Join(names, ", "))
		}
	}
	add("+proc", KindProc, ActionCreated)
	add("~proc", KindProc, ActionModified)
	add("-proc", KindProc, ActionDeleted)
	add("+var", KindVar, ActionCreated)
	add("~var", KindVar, ActionModified)
	add("-var", KindVar, ActionDeleted)
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, " | ")
}
