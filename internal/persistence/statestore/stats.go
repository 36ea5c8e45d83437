package statestore

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"scriptvault.io/internal/state"
)

// diffStats sums line-level insertions and deletions across the diff.
// Pure creations and deletions count whole bodies; modifications get a real
// line diff.
func diffStats(diff state.Diff) (insertions, deletions int) {
	for _, ch := range diff.Changes {
		switch ch.Action {
		case state.ActionCreated:
			insertions += lineCount(ch.NewContent)
		case state.ActionDeleted:
			deletions += lineCount(ch.OldContent)
		case state.ActionModified:
			ins, del := lineStats(ch.OldContent, ch.NewContent)
			insertions += ins
			deletions += del
		}
	}
	return insertions, deletions
}

func lineStats(before, after string) (insertions, deletions int) {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			insertions += lineCount(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += lineCount(d.Text)
		}
	}
	return insertions, deletions
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(value, "\n"), "\n") + 1
}
