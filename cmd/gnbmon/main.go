// Command gnbmon tails a gNB log, aggregates per-UE radio metrics, and
// emits normalized snapshots to local sinks and an optional HTTP
// ingestion endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CrashxZ/AF25/internal/api"
	"github.com/CrashxZ/AF25/internal/classify"
	"github.com/CrashxZ/AF25/internal/config"
	"github.com/CrashxZ/AF25/internal/deliver"
	"github.com/CrashxZ/AF25/internal/pipeline"
	"github.com/CrashxZ/AF25/internal/sink"
)

// initLogger configures the global slog default.
func initLogger(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func main() {
	def := config.Default()

	// ---- Flags -----------------------------------------------------------
	cfgPath := flag.String("config", "", "Path to optional YAML config file")
	input := flag.String("input", def.Input, "Input path to the gNB log")
	output := flag.String("output", def.Output, "NDJSON output path; '-' for stdout")
	once := flag.Bool("once", def.Once, "Process the input once and exit (no follow/tail)")
	format := flag.String("format", def.Format, "Input log format (oai|srsran)")
	postURL := flag.String("post-url", def.PostURL, "POST snapshots to this URL (empty disables delivery)")
	sendInterval := flag.Duration("send-interval", def.SendInterval, "Minimum spacing between sends")
	postTimeout := flag.Duration("post-timeout", def.PostTimeout, "HTTP POST timeout per attempt")
	retries := flag.Int("retries", def.MaxRetries, "Max retries on transient delivery failures")
	backoffBase := flag.Duration("backoff-base", def.BackoffBase, "First retry delay; doubles per retry")
	batch := flag.Bool("batch", def.Batch, "Send all buffered snapshots per interval as an array")
	sendOrder := flag.String("send-order", def.SendOrder, "One-at-a-time order: latest (drop older) or fifo")
	csvPath := flag.String("csv", def.CSVPath, "CSV output path (empty disables)")
	source := flag.String("source", def.Source, "Value for the snapshot source field")
	statusAddr := flag.String("status-addr", def.StatusAddr, "Status API listen address (empty disables)")
	logLevel := flag.String("log-level", def.LogLevel, "Log level (debug|info|warn|error)")
	logFormat := flag.String("log-format", def.LogFormat, "Log format (text|json)")
	flag.Parse()

	// ---- Config resolution: flags > env > file > defaults ---------------
	cfg := config.Default()
	if *cfgPath != "" {
		if err := config.LoadFile(*cfgPath, &cfg); err != nil {
			log.Fatalf("loading config file: %v", err)
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		log.Fatalf("reading environment: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "output":
			cfg.Output = *output
		case "once":
			cfg.Once = *once
		case "format":
			cfg.Format = *format
		case "post-url":
			cfg.PostURL = *postURL
		case "send-interval":
			cfg.SendInterval = *sendInterval
		case "post-timeout":
			cfg.PostTimeout = *postTimeout
		case "retries":
			cfg.MaxRetries = *retries
		case "backoff-base":
			cfg.BackoffBase = *backoffBase
		case "batch":
			cfg.Batch = *batch
		case "send-order":
			cfg.SendOrder = *sendOrder
		case "csv":
			cfg.CSVPath = *csvPath
		case "source":
			cfg.Source = *source
		case "status-addr":
			cfg.StatusAddr = *statusAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	initLogger(cfg.LogLevel, cfg.LogFormat)

	// ---- Sinks -----------------------------------------------------------
	jsonSink, err := sink.NewJSONLines(cfg.Output)
	if err != nil {
		log.Fatalf("opening NDJSON sink: %v", err)
	}
	var csvSink *sink.CSV
	if cfg.CSVPath != "" {
		csvSink, err = sink.NewCSV(cfg.CSVPath)
		if err != nil {
			log.Fatalf("opening CSV sink: %v", err)
		}
		slog.Info("CSV output enabled", "path", cfg.CSVPath)
	}

	// ---- Delivery --------------------------------------------------------
	var buffer *deliver.Buffer
	if cfg.PostURL != "" {
		mode := deliver.ModeLatest
		switch {
		case cfg.Batch:
			mode = deliver.ModeBatch
		case cfg.SendOrder == config.OrderFIFO:
			mode = deliver.ModeFIFO
		}
		client := deliver.NewClient(cfg.PostTimeout, cfg.MaxRetries, cfg.BackoffBase)
		buffer = deliver.NewBuffer(client, cfg.PostURL, cfg.SendInterval, mode)
		slog.Info("delivery enabled",
			"url", cfg.PostURL,
			"mode", mode.String(),
			"interval", cfg.SendInterval,
		)
	}

	// ---- Classifier ------------------------------------------------------
	var classifier classify.Classifier
	if cfg.Format == config.FormatSRSRAN {
		classifier = classify.NewSRS()
	} else {
		classifier = classify.NewOAI()
	}

	pipe := pipeline.New(pipeline.Options{
		Input:      cfg.Input,
		Follow:     !cfg.Once,
		Source:     cfg.Source,
		Classifier: classifier,
		JSONSink:   jsonSink,
		CSVSink:    csvSink,
		Buffer:     buffer,
	})

	// ---- Status server (optional) ---------------------------------------
	var statusSrv *api.Server
	if cfg.StatusAddr != "" {
		statusSrv = api.NewServer(cfg.StatusAddr, pipe)
		statusSrv.Start()
	}

	// An interrupt cancels the context; the pipeline finishes its current
	// line, performs one forced flush, and closes the sinks.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipe.Run(ctx); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("status server shutdown", "error", err)
		}
	}
}
