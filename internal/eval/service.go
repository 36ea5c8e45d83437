package eval

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scriptvault.io/internal/config"
	"scriptvault.io/internal/persistence/evallog"
	"scriptvault.io/internal/persistence/statestore"
	"scriptvault.io/internal/protocol"
	"scriptvault.io/internal/state"
)

// Service is the single entry point callers use. All operations are
// serialized on one mutex: at most one evaluation runs at a time, and
// rollback or history never interleaves with it.
type Service struct {
	mu sync.Mutex

	cfg     config.Config
	store   *statestore.Store
	factory EngineFactory
	pages   *pageCache
	audit   *evallog.Writer

	worker *worker
	// committed tracks the snapshot matching the last persisted head. Diffs
	// are computed against it, so changes a failed store write dropped get
	// folded into the next successful commit.
	committed state.Snapshot
}

// NewService loads head state from the store and starts the first worker.
func NewService(cfg config.Config, store *statestore.Store, factory EngineFactory, audit *evallog.Writer) (*Service, error) {
	snap, err := store.ReconstructHead()
	if err != nil {
		return nil, fmt.Errorf("load head state: %w", err)
	}
	w, err := newWorker(factory, snap)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		factory:   factory,
		pages:     newPageCache(cfg.PageLines, cfg.PageIdleExpiry()),
		audit:     audit,
		worker:    w,
		committed: snap,
	}, nil
}

func errValidation(format string, args ...any) error {
	return protocol.NewError(protocol.ErrValidation, format, args...)
}

func errLimiter(format string, args ...any) error {
	return protocol.NewError(protocol.ErrLimiter, format, args...)
}

// Evaluate runs code against the live worker, persists any state change as
// one commit, and returns the first page of output. A script error yields a
// result with IsError set and no commit; infrastructure failures return a
// *protocol.Error.
func (s *Service) Evaluate(code string, ectx protocol.EvalContext) (protocol.EvalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	reqID := uuid.NewString()
	result, err := s.evaluateLocked(code, ectx)
	s.writeAudit(reqID, started, code, ectx, result, err)
	return result, err
}

func (s *Service) evaluateLocked(code string, ectx protocol.EvalContext) (protocol.EvalResult, error) {
	if err := s.validate(code); err != nil {
		return protocol.EvalResult{}, err
	}

	req := workerRequest{
		code: code,
		ectx: ectx,
		resp: make(chan workerOutcome, 1),
	}

	select {
	case s.worker.reqs <- req:
	case <-s.worker.died:
		// Crashed while idle; replace and retry once on the fresh worker.
		if err := s.replaceWorker(); err != nil {
			return protocol.EvalResult{}, err
		}
		s.worker.reqs <- req
	}

	timer := time.NewTimer(s.cfg.EvalTimeout())
	defer timer.Stop()

	var out workerOutcome
	select {
	case out = <-req.resp:
	case <-s.worker.died:
		log.Printf("[eval] worker crashed during evaluation (actor=%s)", ectx.Actor)
		restartErr := s.replaceWorker()
		if restartErr != nil {
			return protocol.EvalResult{}, restartErr
		}
		return protocol.EvalResult{}, protocol.NewError(protocol.ErrCrash,
			"evaluation crashed the interpreter; state restored from last commit")
	case <-timer.C:
		log.Printf("[eval] evaluation timed out after %s (actor=%s), abandoning worker",
			s.cfg.EvalTimeout(), ectx.Actor)
		old := s.worker
		old.engine.Abandon()
		// The service is the only sender on reqs and holds the mutex, so the
		// close is safe. Once Abandon unwinds the script the goroutine drains
		// the closed channel and exits instead of pinning its interpreter.
		old.stop()
		if err := s.replaceWorker(); err != nil {
			return protocol.EvalResult{}, err
		}
		return protocol.EvalResult{}, protocol.NewError(protocol.ErrTimeout,
			"evaluation exceeded the %s time budget", s.cfg.EvalTimeout())
	}

	if out.restoreFail != "" {
		// The interpreter could not roll back the failed script's mutations;
		// serve from a fresh worker instead of a diverged one.
		log.Printf("[eval] rollback after failed script: %s, replacing worker", out.restoreFail)
		old := s.worker
		if err := s.replaceWorker(); err != nil {
			return protocol.EvalResult{}, err
		}
		old.stop()
	}

	if out.limiterFail != "" {
		return protocol.EvalResult{}, errLimiter("%s", Sanitize(out.limiterFail))
	}
	if out.scriptFail != "" {
		lines := append(out.output, "error: "+Sanitize(out.scriptFail))
		page, more := s.pages.Put(ectx.CacheKey(), lines)
		return protocol.EvalResult{Output: page, IsError: true, MoreAvailable: more}, nil
	}

	result := protocol.EvalResult{}
	lines := out.output
	if out.result != "" {
		lines = append(lines, out.result)
	}
	result.Output, result.MoreAvailable = s.pages.Put(ectx.CacheKey(), lines)

	diff := state.ComputeDiff(s.committed, out.post)
	if !diff.Empty() {
		info, err := s.store.Commit(diff, ectx.Actor, commitMessage(code, diff))
		if err != nil {
			// The interpreter keeps the new state; the diff against the
			// stale committed snapshot is retried on the next commit.
			log.Printf("[eval] commit failed: %v", err)
			result.Unpersisted = true
			return result, nil
		}
		s.committed = out.post.Clone()
		result.Commit = &info
		s.maybeCompact()
	}
	return result, nil
}

// replaceWorker discards the current worker and starts a fresh one from the
// last committed snapshot.
func (s *Service) replaceWorker() error {
	w, err := newWorker(s.factory, s.committed)
	if err != nil {
		log.Printf("[eval] worker restart failed: %v", err)
		return protocol.NewError(protocol.ErrRestart, "interpreter restart failed")
	}
	s.worker = w
	return nil
}

// maybeCompact squashes old history once the commit count crosses the next
// GC threshold. Failures are logged, never surfaced.
func (s *Service) maybeCompact() {
	if s.cfg.GCEveryCommits <= 0 {
		return
	}
	n, err := s.store.CommitCount()
	if err != nil {
		log.Printf("[gc] commit count: %v", err)
		return
	}
	if n%s.cfg.GCEveryCommits != 0 {
		return
	}
	commits, blobs, err := s.store.Compact(s.cfg.GCKeepCommits)
	if err != nil {
		log.Printf("[gc] compact: %v", err)
		return
	}
	if commits > 0 || blobs > 0 {
		log.Printf("[gc] compacted %d commits, swept %d blobs", commits, blobs)
	}
}

// ContinueOutput returns the next cached page for this caller, if any.
func (s *Service) ContinueOutput(ectx protocol.EvalContext) (protocol.EvalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, more, ok := s.pages.Next(ectx.CacheKey())
	if !ok {
		return protocol.EvalResult{}, errValidation("no buffered output to continue")
	}
	return protocol.EvalResult{Output: page, MoreAvailable: more}, nil
}

// History lists commits from head backwards.
func (s *Service) History(limit int) ([]protocol.CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := s.store.History(limit)
	if err != nil {
		return nil, protocol.NewError(protocol.ErrStore, "%s", Sanitize(err.Error()))
	}
	return infos, nil
}

// Rollback moves head to ref and reloads the worker from it. History after
// ref is kept, so a later rollback can move forward again.
func (s *Service) Rollback(ref string, ectx protocol.EvalContext) (protocol.CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ectx.Privileged {
		return protocol.CommitInfo{}, errValidation("rollback requires privileged access")
	}
	info, err := s.store.Rollback(ref)
	if err != nil {
		switch {
		case errors.Is(err, statestore.ErrNotFound), errors.Is(err, statestore.ErrAmbiguous):
			return protocol.CommitInfo{}, errValidation("%v", err)
		default:
			return protocol.CommitInfo{}, protocol.NewError(protocol.ErrStore, "%s", Sanitize(err.Error()))
		}
	}
	snap, err := s.store.Reconstruct(info.ID)
	if err != nil {
		return protocol.CommitInfo{}, protocol.NewError(protocol.ErrStore, "%s", Sanitize(err.Error()))
	}

	old := s.worker
	s.committed = snap
	if err := s.replaceWorker(); err != nil {
		return protocol.CommitInfo{}, err
	}
	old.stop()
	log.Printf("[eval] rolled back to %s (actor=%s)", shortID(info.ID), ectx.Actor)
	return info, nil
}

// Close stops the worker and flushes the audit log.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.worker.died:
	default:
		s.worker.stop()
	}
	if s.audit != nil {
		return s.audit.Close()
	}
	return nil
}

func (s *Service) writeAudit(reqID string, started time.Time, code string, ectx protocol.EvalContext, res protocol.EvalResult, err error) {
	if s.audit == nil {
		return
	}
	e := evallog.Entry{
		RequestID:  reqID,
		At:         started.UTC().Format(time.RFC3339Nano),
		Actor:      ectx.Actor,
		Origin:     ectx.Origin,
		Code:       code,
		IsError:    res.IsError || err != nil,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		e.ErrorCode = protocol.CodeOf(err)
	}
	if res.Commit != nil {
		e.CommitID = res.Commit.ID
	}
	if werr := s.audit.Write(e); werr != nil {
		log.Printf("[eval] audit write: %v", werr)
	}
}

const commitCodeLimit = 100

// commitMessage renders the conventional message: a truncated echo of the
// code plus one section per change class.
func commitMessage(code string, diff state.Diff) string {
	oneline := strings.Join(strings.Fields(code), " ")
	if len(oneline) > commitCodeLimit {
		oneline = oneline[:commitCodeLimit] + "..."
	}
	var b strings.Builder
	b.WriteString("Evaluated " + oneline)

	sections := []struct {
		title  string
		action state.Action
	}{
		{"New", state.ActionCreated},
		{"Modified", state.ActionModified},
		{"Deleted", state.ActionDeleted},
	}
	for _, sec := range sections {
		var names []string
		for _, ch := range diff.Changes {
			if ch.Action == sec.action {
				names = append(names, string(ch.Kind)+" "+ch.Name)
			}
		}
		if len(names) > 0 {
			b.WriteString("\n\n" + sec.title + ":\n  " + strings.Join(names, "\n  "))
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
