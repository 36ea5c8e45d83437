package statestore

import (
	"fmt"
	"time"

	"scriptvault.io/internal/state"
)

// Compact squashes history older than the newest keepLast commits into a
// synthetic baseline commit, then sweeps blob files no retained change row
// references. Content reachable from head or any retained commit is never
// removed: the cutoff never climbs past head, and the baseline keeps the
// cutoff commit's id so existing references stay valid.
func (s *Store) Compact(keepLast int) (removedCommits, removedBlobs int, err error) {
	if keepLast < 1 {
		keepLast = 1
	}

	var tipSeq int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq),0) FROM commits`).Scan(&tipSeq); err != nil {
		return 0, 0, err
	}
	head, err := s.Head()
	if err != nil {
		return 0, 0, err
	}
	var headSeq int64
	if err := s.db.QueryRow(`SELECT seq FROM commits WHERE id=?`, head).Scan(&headSeq); err != nil {
		return 0, 0, err
	}

	cutoffSeq := tipSeq - int64(keepLast)
	if headSeq < cutoffSeq {
		cutoffSeq = headSeq
	}
	if cutoffSeq <= 0 {
		return 0, 0, nil
	}

	var cutoffID string
	if err := s.db.QueryRow(`SELECT id FROM commits WHERE seq=?`, cutoffSeq).Scan(&cutoffID); err != nil {
		return 0, 0, err
	}
	snap, err := s.Reconstruct(cutoffID)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM commits WHERE seq < ?`, cutoffSeq)
	if err != nil {
		return 0, 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removedCommits = int(n)
	}
	if _, err := tx.Exec(
		`DELETE FROM changes WHERE commit_id NOT IN (SELECT id FROM commits WHERE seq >= ?)`,
		cutoffSeq,
	); err != nil {
		return 0, 0, err
	}

	// Rewrite the cutoff commit as a full baseline under its original id.
	if _, err := tx.Exec(
		`UPDATE commits SET parent='', message=?, summary=?, files_changed=?, insertions=?, deletions=0, author=?, created_at=? WHERE id=?`,
		fmt.Sprintf("Compacted baseline of %d squashed commits", removedCommits),
		"compacted baseline", len(snap), 0, rootAuthor,
		time.Now().UTC().Format(time.RFC3339Nano), cutoffID,
	); err != nil {
		return 0, 0, err
	}
	if _, err := tx.Exec(`DELETE FROM changes WHERE commit_id=?`, cutoffID); err != nil {
		return 0, 0, err
	}
	for _, ref := range snap.Refs() {
		if _, err := tx.Exec(
			`INSERT INTO changes(commit_id,kind,name,action,hash) VALUES(?,?,?,?,?)`,
			cutoffID, string(ref.Kind), ref.Name, string(state.ActionCreated), state.Hash(snap[ref]),
		); err != nil {
			return 0, 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	referenced := map[string]bool{}
	rows, err := s.db.Query(`SELECT DISTINCT hash FROM changes WHERE hash<>''`)
	if err != nil {
		return removedCommits, 0, err
	}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return removedCommits, 0, err
		}
		referenced[h] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return removedCommits, 0, err
	}
	rows.Close()

	removedBlobs, err = s.sweepBlobs(referenced)
	return removedCommits, removedBlobs, err
}
