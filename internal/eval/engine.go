package eval

import (
	"scriptvault.io/internal/config"
	"scriptvault.io/internal/protocol"
	"scriptvault.io/internal/script"
	"scriptvault.io/internal/state"
)

// Host context variables set per evaluation. They are part of the fixed
// baseline exclusion set so they never show up as state changes.
var contextVars = []string{"nick", "origin"}

// Engine is the narrow interpreter surface the worker drives. Implementations
// are not safe for concurrent use; exactly one worker goroutine owns one.
type Engine interface {
	SetContext(ctx protocol.EvalContext)
	// Eval runs code and returns its result value plus printed output.
	// A non-nil error is an in-language failure (script or capability).
	Eval(code string) (result string, output []string, err error)
	// Capture enumerates current persisted-state entities, baseline excluded.
	Capture() state.Snapshot
	// Restore resets the interpreter to exactly snap.
	Restore(snap state.Snapshot) error
	// Abandon asks a wedged engine to unwind; best effort, never awaited.
	Abandon()
}

// EngineFactory builds the engine for a fresh worker. Resource limits and the
// capability deny-list are applied here, at worker (re)start, not per call.
type EngineFactory func() (Engine, error)

type scriptEngine struct {
	interp   *script.Interp
	baseline map[state.EntityRef]bool
}

// NewScriptEngine wires the embedded interpreter as the production engine.
func NewScriptEngine(cfg config.Config) (Engine, error) {
	in := script.New(script.Options{
		MaxDepth:       cfg.MaxRecursionDepth,
		MaxOutputLines: cfg.MaxOutputLines,
		Denied:         cfg.DeniedCommands,
	})
	e := &scriptEngine{interp: in, baseline: map[state.EntityRef]bool{}}
	// Whatever a fresh interpreter defines before saved state loads is the
	// bootstrap baseline and never tracked.
	for ref := range state.Capture(in, nil) {
		e.baseline[ref] = true
	}
	for _, name := range contextVars {
		e.baseline[state.EntityRef{Kind: state.KindVar, Name: name}] = true
	}
	return e, nil
}

func (e *scriptEngine) SetContext(ctx protocol.EvalContext) {
	e.interp.SetScalar("nick", ctx.Actor)
	e.interp.SetScalar("origin", ctx.Origin)
}

func (e *scriptEngine) Eval(code string) (string, []string, error) {
	result, err := e.interp.Eval(code)
	output := e.interp.TakeOutput()
	return result, output, err
}

func (e *scriptEngine) Capture() state.Snapshot {
	return state.Capture(e.interp, e.baseline)
}

func (e *scriptEngine) Restore(snap state.Snapshot) error {
	for ref := range state.Capture(e.interp, e.baseline) {
		if _, keep := snap[ref]; keep {
			continue
		}
		switch ref.Kind {
		case state.KindProc:
			e.interp.DeleteProc(ref.Name)
		case state.KindVar:
			e.interp.DeleteVar(ref.Name)
		}
	}
	for ref, content := range snap {
		var err error
		switch ref.Kind {
		case state.KindProc:
			err = e.interp.RestoreProc(ref.Name, content)
		case state.KindVar:
			err = e.interp.RestoreVar(ref.Name, content)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *scriptEngine) Abandon() { e.interp.Abandon() }
