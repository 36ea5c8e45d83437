// Package script is a deliberately small Tcl-flavored command interpreter.
// It exists so the evaluation core has something real to run and snapshot;
// the service only depends on the narrow surface used by the worker.
package script

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

type Proc struct {
	Args []string
	Body string
}

type variable struct {
	isArray bool
	scalar  string
	array   map[string]string
}

type frame struct {
	vars    map[string]*variable
	globals map[string]bool
}

// Options configure a fresh interpreter. Denied names become guard commands
// that fail with ErrDenied-kinded errors; MaxDepth bounds proc recursion.
type Options struct {
	MaxDepth       int
	MaxOutputLines int
	Denied         []string
}

type Interp struct {
	vars   map[string]*variable
	procs  map[string]*Proc
	frames []*frame
	denied map[string]bool

	maxDepth  int
	maxOutput int
	depth     int

	out       []string
	truncated bool

	abandoned atomic.Bool
}

// ScriptError is an ordinary in-language failure. The worker keeps serving.
type ScriptError struct{ Msg string }

func (e *ScriptError) Error() string { return e.Msg }

// DeniedError marks a capability rejection from the deny-list guard.
type DeniedError struct{ Name string }

func (e *DeniedError) Error() string {
	return fmt.Sprintf("command %q is not allowed in the sandbox", e.Name)
}

// AbandonedError unwinds an interpreter whose worker gave up on it.
type AbandonedError struct{}

func (e *AbandonedError) Error() string { return "interpreter abandoned" }

// Control-flow sentinels, never visible outside Eval.
type returnSignal struct{ value string }
type breakSignal struct{}
type continueSignal struct{}

func (returnSignal) Error() string   { return "return outside of a procedure" }
func (breakSignal) Error() string    { return "break outside of a loop" }
func (continueSignal) Error() string { return "continue outside of a loop" }

func New(opts Options) *Interp {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1000
	}
	if opts.MaxOutputLines <= 0 {
		opts.MaxOutputLines = 10000
	}
	in := &Interp{
		vars:      map[string]*variable{},
		procs:     map[string]*Proc{},
		denied:    map[string]bool{},
		maxDepth:  opts.MaxDepth,
		maxOutput: opts.MaxOutputLines,
	}
	for _, name := range opts.Denied {
		in.denied[name] = true
	}
	return in
}

// Abandon makes the next command dispatch fail so a wedged evaluation can
// unwind and release its goroutine. Best effort only: the supervisor never
// waits for it and the abandoned worker's result is discarded regardless.
func (in *Interp) Abandon() { in.abandoned.Store(true) }

// Eval runs a script and returns the result of its last command.
// Output produced by puts accumulates until TakeOutput.
func (in *Interp) Eval(code string) (string, error) {
	res, err := in.evalScript(code)
	if err != nil {
		switch err.(type) {
		case returnSignal:
			return err.(returnSignal).value, nil
		case breakSignal, continueSignal:
			return "", &ScriptError{Msg: err.Error()}
		}
		return "", err
	}
	return res, nil
}

// TakeOutput drains accumulated puts lines.
func (in *Interp) TakeOutput() []string {
	out := in.out
	if in.truncated {
		out = append(out, "(output truncated)")
	}
	in.out = nil
	in.truncated = false
	return out
}

func (in *Interp) puts(line string) {
	if len(in.out) >= in.maxOutput {
		in.truncated = true
		return
	}
	in.out = append(in.out, line)
}

func (in *Interp) evalScript(code string) (string, error) {
	cmds, err := splitCommands(code)
	if err != nil {
		return "", &ScriptError{Msg: err.Error()}
	}
	var result string
	for _, cmd := range cmds {
		words, err := in.parseWords(cmd)
		if err != nil {
			return "", err
		}
		if len(words) == 0 {
			continue
		}
		result, err = in.invoke(words)
		if err != nil {
			return "", err
		}
	}
	return result, nil
}

func (in *Interp) invoke(words []string) (string, error) {
	if in.abandoned.Load() {
		return "", &AbandonedError{}
	}
	name := words[0]
	if in.denied[name] {
		return "", &DeniedError{Name: name}
	}
	if p, ok := in.procs[name]; ok {
		return in.callProc(name, p, words[1:])
	}
	if b, ok := builtins[name]; ok {
		return b(in, words[1:])
	}
	return "", &ScriptError{Msg: fmt.Sprintf("invalid command name %q", name)}
}

func (in *Interp) callProc(name string, p *Proc, args []string) (string, error) {
	if in.depth >= in.maxDepth {
		return "", &ScriptError{Msg: fmt.Sprintf("too many nested calls (limit %d): possible infinite recursion in %q", in.maxDepth, name)}
	}
	f := &frame{vars: map[string]*variable{}, globals: map[string]bool{}}
	for i, argName := range p.Args {
		if argName == "args" && i == len(p.Args)-1 {
			f.vars["args"] = &variable{scalar: joinList(args[i:])}
			args = args[:i]
			break
		}
		if i >= len(args) {
			return "", &ScriptError{Msg: fmt.Sprintf("wrong # args: should be %q", name+" "+strings.Join(p.Args, " "))}
		}
		f.vars[argName] = &variable{scalar: args[i]}
	}
	if len(args) > len(p.Args) {
		return "", &ScriptError{Msg: fmt.Sprintf("wrong # args: should be %q", name+" "+strings.Join(p.Args, " "))}
	}

	in.frames = append(in.frames, f)
	in.depth++
	res, err := in.evalScript(p.Body)
	in.depth--
	in.frames = in.frames[:len(in.frames)-1]

	if err != nil {
		if rs, ok := err.(returnSignal); ok {
			return rs.value, nil
		}
		return "", err
	}
	return res, nil
}

// Variable resolution: inside a proc, names live in the local frame unless
// declared with the global command.
func (in *Interp) scope(name string) map[string]*variable {
	if len(in.frames) == 0 {
		return in.vars
	}
	f := in.frames[len(in.frames)-1]
	if f.globals[name] {
		return in.vars
	}
	return f.vars
}

func (in *Interp) getVar(name string) (*variable, bool) {
	base, key, hasKey := splitElement(name)
	v, ok := in.scope(base)[base]
	if !ok {
		return nil, false
	}
	if hasKey {
		if !v.isArray {
			return nil, false
		}
		val, ok := v.array[key]
		if !ok {
			return nil, false
		}
		return &variable{scalar: val}, true
	}
	return v, true
}

func (in *Interp) readVar(name string) (string, error) {
	v, ok := in.getVar(name)
	if !ok {
		return "", &ScriptError{Msg: fmt.Sprintf("can't read %q: no such variable", name)}
	}
	if v.isArray {
		return "", &ScriptError{Msg: fmt.Sprintf("can't read %q: variable is array", name)}
	}
	return v.scalar, nil
}

func (in *Interp) setVar(name, value string) error {
	base, key, hasKey := splitElement(name)
	sc := in.scope(base)
	if hasKey {
		v, ok := sc[base]
		if !ok {
			v = &variable{isArray: true, array: map[string]string{}}
			sc[base] = v
		}
		if !v.isArray {
			return &ScriptError{Msg: fmt.Sprintf("can't set %q: variable isn't array", name)}
		}
		v.array[key] = value
		return nil
	}
	if v, ok := sc[base]; ok && v.isArray {
		return &ScriptError{Msg: fmt.Sprintf("can't set %q: variable is array", name)}
	}
	sc[base] = &variable{scalar: value}
	return nil
}

func (in *Interp) unsetVar(name string) error {
	base, key, hasKey := splitElement(name)
	sc := in.scope(base)
	v, ok := sc[base]
	if !ok {
		return &ScriptError{Msg: fmt.Sprintf("can't unset %q: no such variable", name)}
	}
	if hasKey {
		if !v.isArray {
			return &ScriptError{Msg: fmt.Sprintf("can't unset %q: variable isn't array", name)}
		}
		delete(v.array, key)
		return nil
	}
	delete(sc, base)
	return nil
}

// splitElement recognizes name(key) array element references.
func splitElement(name string) (base, key string, hasKey bool) {
	open := strings.IndexByte(name, '(')
	if open > 0 && strings.HasSuffix(name, ")") {
		return name[:open], name[open+1 : len(name)-1], true
	}
	return name, "", false
}

// SetScalar installs a host context variable (nick, origin) at global scope.
func (in *Interp) SetScalar(name, value string) {
	in.vars[name] = &variable{scalar: value}
}

// ProcNames and VarNames enumerate current global definitions, sorted.
func (in *Interp) ProcNames() []string {
	names := make([]string, 0, len(in.procs))
	for n := range in.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (in *Interp) VarNames() []string {
	names := make([]string, 0, len(in.vars))
	for n := range in.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProcContent serializes a procedure as "{args} {body}".
func (in *Interp) ProcContent(name string) (string, bool) {
	p, ok := in.procs[name]
	if !ok {
		return "", false
	}
	return "{" + strings.Join(p.Args, " ") + "} {" + p.Body + "}", true
}

// VarContent serializes a variable as "scalar <value>" or
// "array <k> <v> ..." with keys sorted for deterministic capture.
func (in *Interp) VarContent(name string) (string, bool) {
	v, ok := in.vars[name]
	if !ok {
		return "", false
	}
	if !v.isArray {
		return "scalar " + v.scalar, true
	}
	keys := make([]string, 0, len(v.array))
	for k := range v.array {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, listQuote(k), listQuote(v.array[k]))
	}
	return "array " + strings.Join(parts, " "), true
}

// DeleteProc and DeleteVar drop global definitions; used when resetting the
// interpreter back to a known snapshot.
func (in *Interp) DeleteProc(name string) { delete(in.procs, name) }
func (in *Interp) DeleteVar(name string)  { delete(in.vars, name) }

// RestoreProc reinstalls a procedure from its serialized form.
func (in *Interp) RestoreProc(name, content string) error {
	parts, err := splitList(content)
	if err != nil || len(parts) != 2 {
		return &ScriptError{Msg: fmt.Sprintf("malformed procedure body for %q", name)}
	}
	args := strings.Fields(parts[0])
	in.procs[name] = &Proc{Args: args, Body: parts[1]}
	return nil
}

// RestoreVar reinstalls a variable from its serialized form.
func (in *Interp) RestoreVar(name, content string) error {
	switch {
	case strings.HasPrefix(content, "scalar "):
		in.vars[name] = &variable{scalar: content[len("scalar "):]}
	case content == "scalar":
		in.vars[name] = &variable{scalar: ""}
	case strings.HasPrefix(content, "array"):
		items, err := splitList(strings.TrimPrefix(strings.TrimPrefix(content, "array"), " "))
		if err != nil || len(items)%2 != 0 {
			return &ScriptError{Msg: fmt.Sprintf("malformed array body for %q", name)}
		}
		arr := map[string]string{}
		for i := 0; i < len(items); i += 2 {
			arr[items[i]] = items[i+1]
		}
		in.vars[name] = &variable{isArray: true, array: arr}
	default:
		return &ScriptError{Msg: fmt.Sprintf("malformed variable body for %q", name)}
	}
	return nil
}
