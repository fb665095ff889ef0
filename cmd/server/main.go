// Command server runs the grid dashboard: uploads, schema inference, the
// typed grid API, database pushes, and dataset chat.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridchat/internal/chat"
	"gridchat/internal/config"
	"gridchat/internal/inference"
	"gridchat/internal/ingest"
	"gridchat/internal/metrics"
	"gridchat/internal/metrics/datadog"
	"gridchat/internal/server"
	"gridchat/internal/storage"

	// register all storage backends with the factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "gridchat/internal/storage/all"
)

func main() {
	var (
		cfgPath  string
		addrFlg  string
		validate bool
	)

	flag.StringVar(&cfgPath, "config", "", "config JSON path (empty uses defaults)")
	flag.StringVar(&addrFlg, "addr", "", "listen address (overrides config)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if !*verbose {
		log.SetOutput(os.Stderr)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if addrFlg != "" {
		cfg.Server.Addr = addrFlg
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s\n", iss)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupMetrics(ctx, cfg.Metrics)

	apiKey := os.Getenv("OPENAI_API_KEY")

	pipeline := ingest.NewPipeline(inference.New(inference.Config{
		Model:   cfg.Inference.Model,
		APIKey:  apiKey,
		BaseURL: cfg.Inference.BaseURL,
	}))
	chatter := chat.New(chat.Config{
		Model:   cfg.Chat.Model,
		APIKey:  apiKey,
		BaseURL: cfg.Chat.BaseURL,
	})

	var repo storage.Repository
	if cfg.Storage.Kind != "" {
		repo, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			fatalf("storage: %v", err)
		}
		defer repo.Close()
		log.Printf("storage: kind=%s", cfg.Storage.Kind)
	} else {
		log.Printf("storage: disabled; database pushes will fail")
	}

	if *verbose {
		log.Printf("inference: model=%s chat: model=%s max_upload=%d",
			cfg.Inference.Model, cfg.Chat.Model, cfg.Server.MaxUploadBytes)
	}

	srv := server.New(server.Options{
		Log:            log.Default(),
		Pipeline:       pipeline,
		Chatter:        chatter,
		Repo:           repo,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalf("serve: %v", err)
		}
	}

	if err := metrics.Flush(); err != nil {
		log.Printf("metrics: flush error: %v", err)
	}
}

// setupMetrics installs the configured metrics backend. Failure to set up
// metrics never stops the server; it degrades to the nop backend.
func setupMetrics(ctx context.Context, cfg config.MetricsConfig) {
	switch cfg.Backend {
	case "datadog":
		flushEvery := time.Duration(cfg.FlushSeconds) * time.Second
		extraTags := datadog.ParseTagsCSV(cfg.Tags)
		if env := os.Getenv("METRICS_TAGS"); env != "" {
			extraTags = append(extraTags, datadog.ParseTagsCSV(env)...)
		}

		b, err := datadog.NewBackend(ctx, datadog.Options{
			Tags:       extraTags,
			FlushEvery: flushEvery,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog")
		metrics.SetBackend(b)

	case "", "none":
		// nop backend stays installed.

	default:
		log.Printf("metrics: unknown backend %q; using nop", cfg.Backend)
	}
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
