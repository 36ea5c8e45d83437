package state

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func ref(kind Kind, name string) EntityRef {
	return EntityRef{Kind: kind, Name: name}
}

func TestComputeDiff_Classification(t *testing.T) {
	before := Snapshot{
		ref(KindProc, "keep"):   "{args} {body}",
		ref(KindProc, "change"): "{a} {old}",
		ref(KindVar, "gone"):    "scalar 1",
	}
	after := Snapshot{
		ref(KindProc, "keep"):   "{args} {body}",
		ref(KindProc, "change"): "{a} {new}",
		ref(KindVar, "fresh"):   "scalar 2",
	}

	d := ComputeDiff(before, after)
	if len(d.Changes) != 3 {
		t.Fatalf("got %d changes, want 3: %+v", len(d.Changes), d.Changes)
	}

	byName := map[string]Change{}
	for _, ch := range d.Changes {
		byName[ch.Name] = ch
	}
	if byName["change"].Action != ActionModified {
		t.Fatalf("change: %+v", byName["change"])
	}
	if byName["fresh"].Action != ActionCreated {
		t.Fatalf("fresh: %+v", byName["fresh"])
	}
	if byName["gone"].Action != ActionDeleted {
		t.Fatalf("gone: %+v", byName["gone"])
	}
	if byName["gone"].OldContent != "scalar 1" {
		t.Fatalf("deleted change dropped old content: %+v", byName["gone"])
	}
}

func TestComputeDiff_IdenticalRedefinitionIsNoChange(t *testing.T) {
	s := Snapshot{ref(KindProc, "p"): "{x} {return $x}"}
	if d := ComputeDiff(s, s.Clone()); !d.Empty() {
		t.Fatalf("identical snapshots diffed: %+v", d.Changes)
	}
}

func TestComputeDiff_Ordering(t *testing.T) {
	before := Snapshot{}
	after := Snapshot{
		ref(KindVar, "b"):  "scalar 1",
		ref(KindProc, "z"): "{} {}",
		ref(KindVar, "a"):  "scalar 2",
		ref(KindProc, "a"): "{} {}",
	}
	d := ComputeDiff(before, after)
	want := []string{"a", "z", "a", "b"} // procs first, each kind sorted by name
	for i, ch := range d.Changes {
		if ch.Name != want[i] {
			t.Fatalf("order mismatch at %d: got %s, want %s", i, ch.Name, want[i])
		}
	}
	if d.Changes[0].Kind != KindProc || d.Changes[2].Kind != KindVar {
		t.Fatalf("kinds out of order: %+v", d.Changes)
	}
}

func TestSummary(t *testing.T) {
	before := Snapshot{
		ref(KindVar, "x"):   "scalar 1",
		ref(KindVar, "tmp"): "scalar 9",
	}
	after := Snapshot{
		ref(KindProc, "greet"): "{} {}",
		ref(KindVar, "x"):      "scalar 2",
	}
	got := ComputeDiff(before, after).Summary()
	want := "+proc: greet | ~var: x | -var: tmp"
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}

	if got := ComputeDiff(before, before).Summary(); got != "no changes" {
		t.Fatalf("empty summary = %q", got)
	}
}

func genEntityName() gopter.Gen {
	return gen.Identifier()
}

func genSnapshot() gopter.Gen {
	return gen.MapOf(genEntityName(), gen.AlphaString()).Map(func(m map[string]string) Snapshot {
		snap := Snapshot{}
		for name, content := range m {
			kind := KindVar
			if len(name)%2 == 0 {
				kind = KindProc
			}
			snap[ref(kind, name)] = content
		}
		return snap
	})
}

func TestDiffProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("apply(diff(a,b), a) == b", prop.ForAll(
		func(before, after Snapshot) bool {
			d := ComputeDiff(before, after)
			return d.Apply(before).Equal(after)
		},
		genSnapshot(), genSnapshot(),
	))

	properties.Property("diff(a,a) is empty", prop.ForAll(
		func(snap Snapshot) bool {
			return ComputeDiff(snap, snap.Clone()).Empty()
		},
		genSnapshot(),
	))

	properties.Property("diff is deterministic", prop.ForAll(
		func(before, after Snapshot) bool {
			a := ComputeDiff(before, after)
			b := ComputeDiff(before, after)
			if len(a.Changes) != len(b.Changes) {
				return false
			}
			for i := range a.Changes {
				if a.Changes[i] != b.Changes[i] {
					return false
				}
			}
			return true
		},
		genSnapshot(), genSnapshot(),
	))

	properties.TestingRun(t)
}

func TestHash_Stable(t *testing.T) {
	a := Hash("scalar 1")
	b := Hash("scalar 1")
	c := Hash("scalar 2")
	if a != b {
		t.Fatal("hash not deterministic")
	}
	if a == c {
		t.Fatal("distinct content collided")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
}
