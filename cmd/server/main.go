package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"scriptvault.io/internal/config"
	"scriptvault.io/internal/eval"
	"scriptvault.io/internal/persistence/evallog"
	"scriptvault.io/internal/persistence/statestore"
	"scriptvault.io/internal/transport/web"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./config.yaml", "config file path")
		schemaDir  = flag.String("schemas", "./schemas", "request schema directory")
		stateDir   = flag.String("state", "", "state directory (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", *configPath)
			cfg = config.Defaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Listen = *addr
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

	websrv, err := web.NewServer(svc, *schemaDir, cfg.RollbackToken, logger)
	if err != nil {
		logger.Fatalf("web server: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	websrv.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (state=%s)", cfg.Listen, cfg.StateDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
