package script

import (
	"strings"
	"testing"
)

func newTestInterp() *Interp {
	return New(Options{MaxDepth: 100, MaxOutputLines: 50})
}

func mustEval(t *testing.T, in *Interp, code string) string {
	t.Helper()
	res, err := in.Eval(code)
	if err != nil {
		t.Fatalf("eval %q: %v", code, err)
	}
	return res
}

func TestEval_SetAndSubstitute(t *testing.T) {
	in := newTestInterp()
	if got := mustEval(t, in, "set x 5"); got != "5" {
		t.Fatalf("set result = %q, want 5", got)
	}
	if got := mustEval(t, in, "set y $x"); got != "5" {
		t.Fatalf("substitution = %q, want 5", got)
	}
	if got := mustEval(t, in, `set z "x is $x"`); got != "x is 5" {
		t.Fatalf("quoted substitution = %q", got)
	}
	// Braced words are literal.
	if got := mustEval(t, in, `set w {no $x here}`); got != "no $x here" {
		t.Fatalf("braced word = %q", got)
	}
}

func TestEval_CommandSubstitution(t *testing.T) {
	in := newTestInterp()
	if got := mustEval(t, in, "set n [expr 2 + 3]"); got != "5" {
		t.Fatalf("expr result = %q, want 5", got)
	}
	if got := mustEval(t, in, "set m [string length hello]"); got != "5" {
		t.Fatalf("nested command = %q, want 5", got)
	}
}

func TestEval_ProcAndCall(t *testing.T) {
	in := newTestInterp()
	mustEval(t, in, "proc double {n} { expr $n * 2 }")
	if got := mustEval(t, in, "double 21"); got != "42" {
		t.Fatalf("double 21 = %q, want 42", got)
	}
	mustEval(t, in, "proc sum {a b} { return [expr $a + $b] }")
	if got := mustEval(t, in, "sum 4 [double 3]"); got != "10" {
		t.Fatalf("sum = %q, want 10", got)
	}
}

func TestEval_ProcLocalScope(t *testing.T) {
	in := newTestInterp()
	mustEval(t, in, "set x outer")
	mustEval(t, in, "proc shadow {} { set x inner; return $x }")
	if got := mustEval(t, in, "shadow"); got != "inner" {
		t.Fatalf("shadow = %q", got)
	}
	if got := mustEval(t, in, "set x"); got != "outer" {
		t.Fatalf("global x clobbered: %q", got)
	}
	mustEval(t, in, "proc bump {} { global x; set x changed }")
	mustEval(t, in, "bump")
	if got := mustEval(t, in, "set x"); got != "changed" {
		t.Fatalf("global not applied: %q", got)
	}
}

func TestEval_ControlFlow(t *testing.T) {
	in := newTestInterp()
	code := `
set total 0
for {set i 1} {$i <= 5} {incr i} {
	if {$i == 3} { continue }
	incr total $i
}
set total`
	if got := mustEval(t, in, code); got != "12" {
		t.Fatalf("loop total = %q, want 12", got)
	}

	code = `
set n 0
while {1} {
	incr n
	if {$n >= 4} { break }
}
set n`
	if got := mustEval(t, in, code); got != "4" {
		t.Fatalf("while break = %q, want 4", got)
	}
}

func TestEval_BreakOutsideLoopIsError(t *testing.T) {
	in := newTestInterp()
	if _, err := in.Eval("break"); err == nil {
		t.Fatal("expected error from stray break")
	}
}

func TestEval_Arrays(t *testing.T) {
	in := newTestInterp()
	mustEval(t, in, "set color(red) ff0000")
	mustEval(t, in, "set color(blue) 0000ff")
	if got := mustEval(t, in, "set color(red)"); got != "ff0000" {
		t.Fatalf("array element = %q", got)
	}
	if got := mustEval(t, in, "array names color"); got != "blue red" {
		t.Fatalf("array names = %q", got)
	}
	mustEval(t, in, "array unset color")
	if _, err := in.Eval("set color(red)"); err == nil {
		t.Fatal("expected error after array unset")
	}
}

func TestEval_DeniedCommand(t *testing.T) {
	in := New(Options{MaxDepth: 100, MaxOutputLines: 50, Denied: []string{"exec", "open"}})
	_, err := in.Eval("exec rm -rf /")
	var denied *DeniedError
	if err == nil {
		t.Fatal("expected denied error")
	}
	if !asDenied(err, &denied) {
		t.Fatalf("expected DeniedError, got %T: %v", err, err)
	}
	// Denied also inside command substitution.
	if _, err := in.Eval("set x [open /etc/passwd]"); err == nil {
		t.Fatal("expected denied error through substitution")
	}
}

func asDenied(err error, target **DeniedError) bool {
	d, ok := err.(*DeniedError)
	if ok {
		*target = d
	}
	return ok
}

func TestEval_RecursionDepthLimit(t *testing.T) {
	in := New(Options{MaxDepth: 20, MaxOutputLines: 50})
	mustEval(t, in, "proc loop {} { loop }")
	if _, err := in.Eval("loop"); err == nil {
		t.Fatal("expected recursion depth error")
	}
	// The interpreter stays usable afterwards.
	if got := mustEval(t, in, "set ok 1"); got != "1" {
		t.Fatalf("interp unusable after depth error: %q", got)
	}
}

func TestEval_OutputCaptureAndTruncation(t *testing.T) {
	in := New(Options{MaxDepth: 100, MaxOutputLines: 3})
	mustEval(t, in, `puts one
puts two`)
	out := in.TakeOutput()
	if len(out) != 2 || out[0] != "one" || out[1] != "two" {
		t.Fatalf("output = %v", out)
	}
	if out := in.TakeOutput(); len(out) != 0 {
		t.Fatalf("TakeOutput not drained: %v", out)
	}

	mustEval(t, in, `for {set i 0} {$i < 10} {incr i} { puts line$i }`)
	out = in.TakeOutput()
	if len(out) != 4 {
		t.Fatalf("truncated output length = %d, want 3 lines + marker", len(out))
	}
	if !strings.Contains(out[3], "truncated") {
		t.Fatalf("missing truncation marker: %v", out)
	}
}

func TestEval_ErrorCommand(t *testing.T) {
	in := newTestInterp()
	_, err := in.Eval(`error "boom"`)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error command: %v", err)
	}
}

func TestEval_UnbalancedBraces(t *testing.T) {
	in := newTestInterp()
	if _, err := in.Eval("set x {unclosed"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	in := newTestInterp()
	mustEval(t, in, "proc greet {name} { return \"hi $name\" }")
	mustEval(t, in, "set counter 7")
	mustEval(t, in, "set cfg(a) 1")
	mustEval(t, in, "set cfg(b) {two words}")

	pc, ok := in.ProcContent("greet")
	if !ok {
		t.Fatal("missing proc content")
	}
	vc, ok := in.VarContent("counter")
	if !ok || vc != "scalar 7" {
		t.Fatalf("scalar content = %q", vc)
	}
	ac, ok := in.VarContent("cfg")
	if !ok || !strings.HasPrefix(ac, "array ") {
		t.Fatalf("array content = %q", ac)
	}

	// Reinstall into a fresh interpreter and verify behavior survives.
	in2 := newTestInterp()
	if err := in2.RestoreProc("greet", pc); err != nil {
		t.Fatalf("restore proc: %v", err)
	}
	if err := in2.RestoreVar("counter", vc); err != nil {
		t.Fatalf("restore scalar: %v", err)
	}
	if err := in2.RestoreVar("cfg", ac); err != nil {
		t.Fatalf("restore array: %v", err)
	}
	if got := mustEval(t, in2, "greet world"); got != "hi world" {
		t.Fatalf("restored proc = %q", got)
	}
	if got := mustEval(t, in2, "set counter"); got != "7" {
		t.Fatalf("restored scalar = %q", got)
	}
	if got := mustEval(t, in2, "set cfg(b)"); got != "two words" {
		t.Fatalf("restored array element = %q", got)
	}
}

func TestRename_DeletesProc(t *testing.T) {
	in := newTestInterp()
	mustEval(t, in, "proc gone {} { return x }")
	mustEval(t, in, `rename gone ""`)
	if _, err := in.Eval("gone"); err == nil {
		t.Fatal("expected unknown command after rename to empty")
	}
	for _, n := range in.ProcNames() {
		if n == "gone" {
			t.Fatal("proc still listed after delete")
		}
	}
}

func TestExpr_Operators(t *testing.T) {
	in := newTestInterp()
	cases := map[string]string{
		"expr 7 % 3":           "1",
		"expr 2 + 3 * 4":       "14",
		"expr (2 + 3) * 4":     "20",
		"expr 1 == 1":          "1",
		"expr 1 != 1":          "0",
		"expr 2 < 10":          "1",
		"expr !0":              "1",
		"expr -5 + 5":          "0",
		"expr 1 && 0":          "0",
		"expr 1 || 0":          "1",
		`expr "abc" == "abc"`:  "1",
		`expr "abc" < "abd"`:   "1",
	}
	for code, want := range cases {
		if got := mustEval(t, in, code); got != want {
			t.Fatalf("%s = %q, want %q", code, got, want)
		}
	}
	if _, err := in.Eval("expr 1 / 0"); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestAbandon_StopsLoop(t *testing.T) {
	in := newTestInterp()
	done := make(chan error, 1)
	go func() {
		_, err := in.Eval("while {1} { set x 1 }")
		done <- err
	}()
	in.Abandon()
	err := <-done
	if err == nil {
		t.Fatal("expected abandonment error")
	}
	if _, ok := err.(*AbandonedError); !ok {
		t.Fatalf("expected AbandonedError, got %T: %v", err, err)
	}
}
