package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type builtin func(in *Interp, args []string) (string, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"set":      builtinSet,
		"unset":    builtinUnset,
		"proc":     builtinProc,
		"rename":   builtinRename,
		"puts":     builtinPuts,
		"if":       builtinIf,
		"while":    builtinWhile,
		"for":      builtinFor,
		"incr":     builtinIncr,
		"expr":     builtinExpr,
		"return":   builtinReturn,
		"break":    builtinBreak,
		"continue": builtinContinue,
		"error":    builtinError,
		"array":    builtinArray,
		"global":   builtinGlobal,
		"string":   builtinString,
		"llength":  builtinLlength,
		"lindex":   builtinLindex,
		"eval":     builtinEval,
	}
}

func builtinSet(in *Interp, args []string) (string, error) {
	switch len(args) {
	case 1:
		return in.readVar(args[0])
	case 2:
		if err := in.setVar(args[0], args[1]); err != nil {
			return "", err
		}
		return args[1], nil
	}
	return "", &ScriptError{Msg: `wrong # args: should be "set varName ?newValue?"`}
}

func builtinUnset(in *Interp, args []string) (string, error) {
	if len(args) == 0 {
		return "", &ScriptError{Msg: `wrong # args: should be "unset varName ?varName ...?"`}
	}
	for _, name := range args {
		if err := in.unsetVar(name); err != nil {
			return "", err
		}
	}
	return "", nil
}

func builtinProc(in *Interp, args []string) (string, error) {
	if len(args) != 3 {
		return "", &ScriptError{Msg: `wrong # args: should be "proc name args body"`}
	}
	argNames, err := splitList(args[1])
	if err != nil {
		return "", &ScriptError{Msg: fmt.Sprintf("malformed argument list: %v", err)}
	}
	in.procs[args[0]] = &Proc{Args: argNames, Body: args[2]}
	return "", nil
}

// rename name {} deletes a procedure, the idiom the diff engine sees as
// delete+create when a proc moves to a new name.
func builtinRename(in *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "rename oldName newName"`}
	}
	old, next := args[0], args[1]
	p, ok := in.procs[old]
	if !ok {
		return "", &ScriptError{Msg: fmt.Sprintf("can't rename %q: no such procedure", old)}
	}
	delete(in.procs, old)
	if next != "" {
		in.procs[next] = p
	}
	return "", nil
}

func builtinPuts(in *Interp, args []string) (string, error) {
	if len(args) != 1 {
		return "", &ScriptError{Msg: `wrong # args: should be "puts string"`}
	}
	in.puts(args[0])
	return "", nil
}

func builtinIf(in *Interp, args []string) (string, error) {
	i := 0
	for {
		if i+1 >= len(args) {
			return "", &ScriptError{Msg: `wrong # args: no expression after "if" argument`}
		}
		cond, body := args[i], args[i+1]
		if body == "then" && i+2 < len(args) {
			body = args[i+2]
			i++
		}
		ok, err := in.exprTruthy(cond)
		if err != nil {
			return "", err
		}
		if ok {
			return in.evalScript(body)
		}
		i += 2
		if i >= len(args) {
			return "", nil
		}
		switch args[i] {
		case "elseif":
			i++
			continue
		case "else":
			if i+1 >= len(args) {
				return "", &ScriptError{Msg: `wrong # args: no script after "else" argument`}
			}
			return in.evalScript(args[i+1])
		default:
			return "", &ScriptError{Msg: fmt.Sprintf("invalid if clause %q", args[i])}
		}
	}
}

func builtinWhile(in *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "while test command"`}
	}
	for {
		ok, err := in.exprTruthy(args[0])
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		if _, err := in.evalScript(args[1]); err != nil {
			switch err.(type) {
			case breakSignal:
				return "", nil
			case continueSignal:
				continue
			}
			return "", err
		}
	}
}

func builtinFor(in *Interp, args []string) (string, error) {
	if len(args) != 4 {
		return "", &ScriptError{Msg: `wrong # args: should be "for start test next command"`}
	}
	if _, err := in.evalScript(args[0]); err != nil {
		return "", err
	}
	for {
		ok, err := in.exprTruthy(args[1])
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		if _, err := in.evalScript(args[3]); err != nil {
			switch err.(type) {
			case breakSignal:
				return "", nil
			case continueSignal:
			default:
				return "", err
			}
		}
		if _, err := in.evalScript(args[2]); err != nil {
			return "", err
		}
	}
}

func builtinIncr(in *Interp, args []string) (string, error) {
	if len(args) != 1 && len(args) != 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "incr varName ?increment?"`}
	}
	by := int64(1)
	if len(args) == 2 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return "", &ScriptError{Msg: fmt.Sprintf("expected integer but got %q", args[1])}
		}
		by = n
	}
	cur := int64(0)
	if v, ok := in.getVar(args[0]); ok {
		n, err := strconv.ParseInt(v.scalar, 10, 64)
		if err != nil {
			return "", &ScriptError{Msg: fmt.Sprintf("expected integer but got %q", v.scalar)}
		}
		cur = n
	}
	next := strconv.FormatInt(cur+by, 10)
	if err := in.setVar(args[0], next); err != nil {
		return "", err
	}
	return next, nil
}

func builtinExpr(in *Interp, args []string) (string, error) {
	if len(args) == 0 {
		return "", &ScriptError{Msg: `wrong # args: should be "expr arg ?arg ...?"`}
	}
	return in.exprEval(strings.Join(args, " "))
}

func builtinReturn(in *Interp, args []string) (string, error) {
	val := ""
	if len(args) > 0 {
		val = args[0]
	}
	return "", returnSignal{value: val}
}

func builtinBreak(in *Interp, args []string) (string, error) {
	return "", breakSignal{}
}

func builtinContinue(in *Interp, args []string) (string, error) {
	return "", continueSignal{}
}

func builtinError(in *Interp, args []string) (string, error) {
	msg := "error"
	if len(args) > 0 {
		msg = args[0]
	}
	return "", &ScriptError{Msg: msg}
}

func builtinArray(in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "array option arrayName ?arg ...?"`}
	}
	op, name := args[0], args[1]
	sc := in.scope(name)
	switch op {
	case "exists":
		v, ok := sc[name]
		return boolStr(ok && v.isArray), nil
	case "set":
		if len(args) != 3 {
			return "", &ScriptError{Msg: `wrong # args: should be "array set arrayName list"`}
		}
		items, err := splitList(args[2])
		if err != nil || len(items)%2 != 0 {
			return "", &ScriptError{Msg: "list must have an even number of elements"}
		}
		v, ok := sc[name]
		if !ok {
			v = &variable{isArray: true, array: map[string]string{}}
			sc[name] = v
		}
		if !v.isArray {
			return "", &ScriptError{Msg: fmt.Sprintf("can't set %q: variable isn't array", name)}
		}
		for i := 0; i < len(items); i += 2 {
			v.array[items[i]] = items[i+1]
		}
		return "", nil
	case "get":
		v, ok := sc[name]
		if !ok || !v.isArray {
			return "", nil
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
		return strings.Join(parts, " "), nil
	case "names":
		v, ok := sc[name]
		if !ok || !v.isArray {
			return "", nil
		}
		keys := make([]string, 0, len(v.array))
		for k := range v.array {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return joinList(keys), nil
	case "unset":
		delete(sc, name)
		return "", nil
	}
	return "", &ScriptError{Msg: fmt.Sprintf("unknown array option %q", op)}
}

func builtinGlobal(in *Interp, args []string) (string, error) {
	if len(in.frames) == 0 {
		return "", nil
	}
	f := in.frames[len(in.frames)-1]
	for _, name := range args {
		f.globals[name] = true
	}
	return "", nil
}

func builtinString(in *Interp, args []string) (string, error) {
	if len(args) < 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "string option arg ?arg ...?"`}
	}
	switch args[0] {
	case "length":
		return strconv.Itoa(len(args[1])), nil
	case "tolower":
		return strings.ToLower(args[1]), nil
	case "toupper":
		return strings.ToUpper(args[1]), nil
	case "trim":
		return strings.TrimSpace(args[1]), nil
	}
	return "", &ScriptError{Msg: fmt.Sprintf("unknown string option %q", args[0])}
}

func builtinLlength(in *Interp, args []string) (string, error) {
	if len(args) != 1 {
		return "", &ScriptError{Msg: `wrong # args: should be "llength list"`}
	}
	items, err := splitList(args[0])
	if err != nil {
		return "", &ScriptError{Msg: err.Error()}
	}
	return strconv.Itoa(len(items)), nil
}

func builtinLindex(in *Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", &ScriptError{Msg: `wrong # args: should be "lindex list index"`}
	}
	items, err := splitList(args[0])
	if err != nil {
		return "", &ScriptError{Msg: err.Error()}
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil || idx < 0 || idx >= len(items) {
		return "", nil
	}
	return items[idx], nil
}

func builtinEval(in *Interp, args []string) (string, error) {
	return in.evalScript(strings.Join(args, " "))
}
