package eval

import (
	"errors"

	"scriptvault.io/internal/protocol"
	"scriptvault.io/internal/script"
	"scriptvault.io/internal/state"
)

// worker owns one live engine and runs at most one evaluation at a time.
// It is never reused after abandonment: a wedged or crashed worker is
// replaced wholesale by the service, and a late result is discarded.
type worker struct {
	reqs   chan workerRequest
	died   chan struct{}
	engine Engine
}

type workerRequest struct {
	code string
	ectx protocol.EvalContext
	// Buffered so a late result from an abandoned worker never blocks it.
	resp chan workerOutcome
}

type workerOutcome struct {
	result string
	output []string

	// In-language failure, already classified: scriptFail for ordinary
	// script errors, limiterFail for capability rejections.
	scriptFail  string
	limiterFail string

	// Set when the post-failure rollback itself failed; the engine no longer
	// matches the committed index and must not serve another evaluation.
	restoreFail string

	pre  state.Snapshot
	post state.Snapshot
}

// newWorker spawns a fresh worker whose engine is reloaded from snap.
func newWorker(factory EngineFactory, snap state.Snapshot) (*worker, error) {
	engine, err := factory()
	if err != nil {
		return nil, err
	}
	if err := engine.Restore(snap); err != nil {
		return nil, err
	}
	w := &worker{
		reqs:   make(chan workerRequest),
		died:   make(chan struct{}),
		engine: engine,
	}
	go w.run()
	return w, nil
}

// run processes requests until the channel closes. A panic anywhere in an
// evaluation is swallowed here and surfaces to the service only as the died
// channel closing without a response.
func (w *worker) run() {
	defer close(w.died)
	defer func() { _ = recover() }()
	for req := range w.reqs {
		req.resp <- w.evalOne(req)
	}
}

func (w *worker) evalOne(req workerRequest) workerOutcome {
	w.engine.SetContext(req.ectx)

	pre := w.engine.Capture()
	result, output, err := w.engine.Eval(req.code)
	out := workerOutcome{result: result, output: output, pre: pre}

	if err != nil {
		// Partial mutations from a failed script are rolled back so the
		// next pre-eval snapshot still matches the committed index.
		if rerr := w.engine.Restore(pre); rerr != nil {
			out.restoreFail = rerr.Error()
		}
		var denied *script.DeniedError
		if errors.As(err, &denied) {
			out.limiterFail = denied.Error()
		} else {
			out.scriptFail = err.Error()
		}
		return out
	}

	out.post = w.engine.Capture()
	return out
}

// stop closes the request channel so the goroutine exits after its current
// evaluation, if any, unwinds. The caller must be the only sender.
func (w *worker) stop() {
	close(w.reqs)
}
