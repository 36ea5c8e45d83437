package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"scriptvault.io/internal/config"
	"scriptvault.io/internal/eval"
	"scriptvault.io/internal/persistence/evallog"
	"scriptvault.io/internal/persistence/statestore"
	"scriptvault.io/internal/protocol"
)

const (
	promptMain  = "vault> "
	promptCont  = "...... "
	historyFile = ".scriptvault_history"
)

const helpText = `commands:
  :more            next page of buffered output
  :history [n]     show the last n commits (default 10)
  :rollback <ref>  move head to ref and reload the interpreter
  :help            this text
  :quit            exit
anything else is evaluated as script.
`

func main() {
	var (
		configPath = flag.String("config", "./config.yaml", "config file path")
		stateDir   = flag.String("state", "", "state directory (overrides config)")
		actor      = flag.String("actor", "console", "author recorded on commits")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[repl] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Defaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}
	if strings.TrimSpace(*stateDir) != "" {
		cfg.StateDir = *stateDir
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	store, err := statestore.Open(filepath.Join(cfg.StateDir, "store"))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	audit := evallog.NewWriter(filepath.Join(cfg.StateDir, "evals"))
	factory := func() (eval.Engine, error) { return eval.NewScriptEngine(cfg) }
	svc, err := eval.NewService(cfg, store, factory, audit)
	if err != nil {
		logger.Fatalf("start service: %v", err)
	}
	defer svc.Close()

	// The console author is privileged: it sits on the same host as the
	// store, so rollback is allowed without a token.
	ectx := protocol.EvalContext{Actor: *actor, Origin: "console", Privileged: true}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readBalanced(ln)
		if !ok {
			fmt.Println()
			break
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") {
			if done := handleCommand(svc, ectx, trimmed); done {
				break
			}
			ln.AppendHistory(trimmed)
			continue
		}

		result, err := svc.Evaluate(code, ectx)
		if err != nil {
			printError(err)
		} else {
			printResult(result)
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}

func handleCommand(svc *eval.Service, ectx protocol.EvalContext, line string) (exit bool) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ":help":
		fmt.Print(helpText)

	case ":quit", ":exit":
		return true

	case ":more":
		result, err := svc.ContinueOutput(ectx)
		if err != nil {
			printError(err)
			return false
		}
		printResult(result)

	case ":history":
		limit := 10
		if len(fields) > 1 {
			_, _ = fmt.Sscanf(fields[1], "%d", &limit)
		}
		commits, err := svc.History(limit)
		if err != nil {
			printError(err)
			return false
		}
		for _, c := range commits {
			line := strings.SplitN(c.Message, "\n", 2)[0]
			fmt.Printf("%.12s  %s  %s  (%s)\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), line, c.Summary)
		}

	case ":rollback":
		if len(fields) < 2 {
			fmt.Println("usage: :rollback <ref>")
			return false
		}
		info, err := svc.Rollback(fields[1], ectx)
		if err != nil {
			printError(err)
			return false
		}
		fmt.Printf("head is now %.12s (%s)\n", info.ID, strings.SplitN(info.Message, "\n", 2)[0])

	default:
		fmt.Println("unknown command. Type :help for help.")
	}
	return false
}

// readBalanced accumulates lines until the braces balance, so procs can be
// typed across multiple lines.
func readBalanced(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C drops the current input.
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if err := eval.ValidateBrackets(src); err == nil {
			return src, true
		}
		// Unbalanced closers are a real error; let the service reject them.
		if strings.Contains(err.Error(), "closing") {
			return src, true
		}
	}
}

func printResult(r protocol.EvalResult) {
	for _, line := range r.Output {
		fmt.Println(line)
	}
	if r.MoreAvailable {
		fmt.Println("  (more output buffered; :more to continue)")
	}
	if r.Commit != nil {
		fmt.Printf("  [%.12s] %s\n", r.Commit.ID, r.Commit.Summary)
	}
	if r.Unpersisted {
		fmt.Println("  (warning: state change not persisted)")
	}
}

func printError(err error) {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		fmt.Printf("%s: %s\n", perr.Code, perr.Message)
		return
	}
	fmt.Println(err)
}
