// Package statestore is the durable half of the versioned state model: a
// content-addressed blob area plus a linear, attributable commit log in
// sqlite. Commits are the sole source of truth across restarts.
package statestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scriptvault.io/internal/protocol"
	"scriptvault.io/internal/state"
)

var (
	// ErrNoChange reports an empty diff: no commit is created.
	ErrNoChange = errors.New("no state changes to commit")

	ErrNotFound  = errors.New("commit not found")
	ErrAmbiguous = errors.New("ambiguous commit reference")
)

const rootAuthor = "scriptvault"

type Store struct {
	dir string
	db  *sql.DB
}

// Open initializes (or reopens) the store at dir. A fresh store gets an
// empty root commit so every later commit has exactly one parent.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty store dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{dir: dir, db: db}
	if err := s.ensureRoot(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style commit log; NORMAL is a fine durability
	// tradeoff for state that is re-derivable from the interpreter.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commits (
			id TEXT PRIMARY KEY,
			parent TEXT NOT NULL,
			seq INTEGER NOT NULL UNIQUE,
			author TEXT NOT NULL,
			created_at TEXT NOT NULL,
			message TEXT NOT NULL,
			summary TEXT NOT NULL,
			files_changed INTEGER NOT NULL,
			insertions INTEGER NOT NULL,
			deletions INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_seq ON commits(seq);`,
		`CREATE TABLE IF NOT EXISTS changes (
			commit_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			action TEXT NOT NULL,
			hash TEXT NOT NULL,
			PRIMARY KEY (commit_id, kind, name)
		);`,
	}
	for _, st := range stmts {
		if _, err := db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Head returns the current head commit id.
func (s *Store) Head() (string, error) {
	var head string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key='head'`).Scan(&head)
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	return head, nil
}

func (s *Store) ensureRoot() error {
	if _, err := s.Head(); err == nil {
		return nil
	}
	now := time.Now().UTC()
	id := commitID("", rootAuthor, now, "Initial commit", nil)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(
		`INSERT INTO commits(id,parent,seq,author,created_at,message,summary,files_changed,insertions,deletions)
		 VALUES(?,?,?,?,?,?,?,0,0,0)`,
		id, "", 0, rootAuthor, now.Format(time.RFC3339Nano), "Initial commit", "no changes",
	); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('head',?)`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// commitID is the content digest of the canonical commit encoding.
func commitID(parent, author string, at time.Time, message string, changes []state.Change) string {
	var b strings.Builder
	b.WriteString("parent " + parent + "\n")
	b.WriteString("author " + author + "\n")
	b.WriteString("at " + at.Format(time.RFC3339Nano) + "\n")
	b.WriteString("message " + message + "\n")
	for _, ch := range changes {
		hash := ch.NewHash
		if ch.Action == state.ActionDeleted {
			hash = ch.OldHash
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", ch.Kind, ch.Name, ch.Action, hash)
	}
	return state.Hash(b.String())
}

// Commit applies a non-empty diff: writes new blobs, records one commit whose
// parent is the current head, and advances head. Returns ErrNoChange for an
// empty diff.
func (s *Store) Commit(diff state.Diff, author, message string) (protocol.CommitInfo, error) {
	if diff.Empty() {
		return protocol.CommitInfo{}, ErrNoChange
	}
	if author == "" {
		author = "unknown"
	}

	for _, ch := range diff.Changes {
		if ch.Action == state.ActionDeleted {
			continue
		}
		if err := s.writeBlob(ch.NewHash, ch.NewContent); err != nil {
			return protocol.CommitInfo{}, fmt.Errorf("write blob for %s %s: %w", ch.Kind, ch.Name, err)
		}
	}

	head, err := s.Head()
	if err != nil {
		return protocol.CommitInfo{}, err
	}
	var maxSeq int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq),0) FROM commits`).Scan(&maxSeq); err != nil {
		return protocol.CommitInfo{}, err
	}

	now := time.Now().UTC()
	id := commitID(head, author, now, message, diff.Changes)
	ins, del := diffStats(diff)
	info := protocol.CommitInfo{
		ID:           id,
		Parent:       head,
		Author:       author,
		CreatedAt:    now,
		Message:      message,
		Summary:      diff.Summary(),
		FilesChanged: len(diff.Changes),
		Insertions:   ins,
		Deletions:    del,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return protocol.CommitInfo{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO commits(id,parent,seq,author,created_at,message,summary,files_changed,insertions,deletions)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		id, head, maxSeq+1, author, now.Format(time.RFC3339Nano), message, info.Summary,
		info.FilesChanged, ins, del,
	); err != nil {
		return protocol.CommitInfo{}, err
	}
	for _, ch := range diff.Changes {
		hash := ch.NewHash
		if ch.Action == state.ActionDeleted {
			hash = ch.OldHash
		}
		if _, err := tx.Exec(
			`INSERT INTO changes(commit_id,kind,name,action,hash) VALUES(?,?,?,?,?)`,
			id, string(ch.Kind), ch.Name, string(ch.Action), hash,
		); err != nil {
			return protocol.CommitInfo{}, err
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('head',?)`, id); err != nil {
		return protocol.CommitInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return protocol.CommitInfo{}, err
	}
	return info, nil
}

// Seed bootstraps baseline content as the first real commit. A no-op when
// the baseline is empty.
func (s *Store) Seed(snap state.Snapshot, author, message string) (protocol.CommitInfo, error) {
	diff := state.ComputeDiff(state.Snapshot{}, snap)
	if diff.Empty() {
		return protocol.CommitInfo{}, ErrNoChange
	}
	if message == "" {
		message = "Seed baseline state"
	}
	return s.Commit(diff, author, message)
}

// Resolve expands a possibly-abbreviated commit reference.
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) < 4 {
		return "", fmt.Errorf("%w: %q (need at least 4 hex chars)", ErrNotFound, ref)
	}
	rows, err := s.db.Query(`SELECT id FROM commits WHERE id LIKE ? LIMIT 2`, ref+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNotFound, ref)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("%w: %q", ErrAmbiguous, ref)
}

func (s *Store) commitRow(id string) (protocol.CommitInfo, error) {
	var (
		info      protocol.CommitInfo
		createdAt string
	)
	err := s.db.QueryRow(
		`SELECT id,parent,author,created_at,message,summary,files_changed,insertions,deletions
		 FROM commits WHERE id=?`, id,
	).Scan(&info.ID, &info.Parent, &info.Author, &createdAt, &info.Message, &info.Summary,
		&info.FilesChanged, &info.Insertions, &info.Deletions)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return info, err
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return info, nil
}

// History walks the parent chain from head, most recent first.
func (s *Store) History(limit int) ([]protocol.CommitInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	id, err := s.Head()
	if err != nil {
		return nil, err
	}
	var out []protocol.CommitInfo
	for id != "" && len(out) < limit {
		info, err := s.commitRow(id)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
		id = info.Parent
	}
	return out, nil
}

// chain returns root→ref order.
func (s *Store) chain(ref string) ([]string, error) {
	var ids []string
	id := ref
	for id != "" {
		info, err := s.commitRow(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("commit history compacted past %q", ref)
			}
			return nil, err
		}
		ids = append(ids, id)
		id = info.Parent
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

// Reconstruct materializes the full snapshot as of ref by replaying change
// rows from the root.
func (s *Store) Reconstruct(ref string) (state.Snapshot, error) {
	id, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	ids, err := s.chain(id)
	if err != nil {
		return nil, err
	}
	snap := state.Snapshot{}
	for _, cid := range ids {
		rows, err := s.db.Query(`SELECT kind,name,action,hash FROM changes WHERE commit_id=?`, cid)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var kind, name, action, hash string
			if err := rows.Scan(&kind, &name, &action, &hash); err != nil {
				rows.Close()
				return nil, err
			}
			refKey := state.EntityRef{Kind: state.Kind(kind), Name: name}
			if state.Action(action) == state.ActionDeleted {
				delete(snap, refKey)
				continue
			}
			content, err := s.readBlob(hash)
			if err != nil {
				rows.Close()
				return nil, err
			}
			snap[refKey] = content
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return snap, nil
}

// ReconstructHead is the common "load current state" path.
func (s *Store) ReconstructHead() (state.Snapshot, error) {
	head, err := s.Head()
	if err != nil {
		return nil, err
	}
	return s.Reconstruct(head)
}

// Rollback moves head to ref. Blobs and later commits are kept, so rolling
// forward again stays possible. The caller must reload any live worker.
func (s *Store) Rollback(ref string) (protocol.CommitInfo, error) {
	id, err := s.Resolve(ref)
	if err != nil {
		return protocol.CommitInfo{}, err
	}
	info, err := s.commitRow(id)
	if err != nil {
		return protocol.CommitInfo{}, err
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('head',?)`, id); err != nil {
		return protocol.CommitInfo{}, err
	}
	return info, nil
}

// CommitCount is used by the GC threshold check.
func (s *Store) CommitCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM commits`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
