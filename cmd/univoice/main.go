// Command univoice is the main entry point for the UniVoice captioning and
// translation engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/univoice/core/internal/config"
	"github.com/univoice/core/internal/gateway"
	"github.com/univoice/core/internal/health"
	"github.com/univoice/core/internal/observe"
	"github.com/univoice/core/internal/pipeline"
	"github.com/univoice/core/internal/resilience"
	"github.com/univoice/core/pkg/provider/asr"
	"github.com/univoice/core/pkg/provider/asr/deepgram"
	"github.com/univoice/core/pkg/provider/asr/whispercpp"
	"github.com/univoice/core/pkg/provider/translate"
	"github.com/univoice/core/pkg/provider/translate/anyllm"
	"github.com/univoice/core/pkg/provider/translate/openai"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "univoice: config file %q not found — create it or pass -config <path>\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "univoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("univoice starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "univoice"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to initialise metrics instruments", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	asrProvider, realtimeProvider, qualityProvider, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Pipeline ──────────────────────────────────────────────────────────
	p := pipeline.New(pipeline.Deps{
		Config:             cfg,
		ASRProvider:        asrProvider,
		RealtimeProvider:   realtimeProvider,
		QualityProvider:    qualityProvider,
		VocabularyProvider: realtimeProvider,
		ReportProvider:     qualityProvider,
		Metrics:            metrics,
	})

	// ── HTTP surface: health, metrics, WebSocket gateway ───────────────────
	healthHandler := health.New(health.Checker{
		Name: "providers",
		Check: func(context.Context) error {
			if asrProvider == nil {
				return errors.New("no asr provider configured")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.HandleFunc("/readyz", healthHandler.Readyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/stream", gateway.New(p))

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	slog.Info("univoice ready — press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────

// registerBuiltinProviders registers the ASR and translate factories that
// ship with UniVoice under the provider names recognized by
// [config.ValidProviderNames].
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterASR("deepgram", func(entry config.ProviderEntry) (asr.Provider, error) {
		opts := []deepgram.Option{}
		model := entry.Model
		if m, ok := entry.Options["model"].(string); ok && m != "" {
			model = m
		}
		if model != "" {
			opts = append(opts, deepgram.WithModel(model))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterASR("whispercpp", func(entry config.ProviderEntry) (asr.Provider, error) {
		modelPath, _ := entry.Options["model_path"].(string)
		return whispercpp.New(modelPath)
	})

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		opts := []openai.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranslate("anyllm", func(entry config.ProviderEntry) (translate.Provider, error) {
		backend, _ := entry.Options["backend"].(string)
		opts := []anyllmlib.Option{}
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})
}

// buildProviders instantiates the ASR and translate providers named in cfg,
// wrapping the ASR provider in a [resilience.ASRFallback] when a fallback
// entry is configured (spec §7 transport resilience).
func buildProviders(cfg *config.Config, reg *config.Registry) (asrProvider asr.Provider, realtime, quality translate.Provider, err error) {
	asrPrimary, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}

	if cfg.Providers.ASRFallback.Name != "" {
		fallbackProvider, ferr := reg.CreateASR(cfg.Providers.ASRFallback)
		if ferr != nil {
			return nil, nil, nil, fmt.Errorf("create asr fallback provider %q: %w", cfg.Providers.ASRFallback.Name, ferr)
		}
		group := resilience.NewASRFallback(asrPrimary, cfg.Providers.ASR.Name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{Name: "asr"},
		})
		group.AddFallback(cfg.Providers.ASRFallback.Name, fallbackProvider)
		asrProvider = group
	} else {
		asrProvider = asrPrimary
	}

	realtime, err = reg.CreateTranslate(resolveTranslateEntry(cfg.Providers.Realtime))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create realtime translate provider %q: %w", cfg.Providers.Realtime.Name, err)
	}
	quality, err = reg.CreateTranslate(resolveTranslateEntry(cfg.Providers.Quality))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create quality translate provider %q: %w", cfg.Providers.Quality.Name, err)
	}
	return asrProvider, realtime, quality, nil
}

// resolveTranslateEntry splits a "anyllm:groq"-style provider name (per
// [config.ValidProviderNames]) into the registered factory name "anyllm"
// plus the backend passed through Options, since any-llm-go is registered
// under a single factory that dispatches on a backend option.
func resolveTranslateEntry(entry config.ProviderEntry) config.ProviderEntry {
	if !strings.HasPrefix(entry.Name, "anyllm:") {
		return entry
	}
	backend := strings.TrimPrefix(entry.Name, "anyllm:")
	out := entry
	out.Name = "anyllm"
	if out.Options == nil {
		out.Options = map[string]any{}
	} else {
		cloned := make(map[string]any, len(out.Options)+1)
		for k, v := range out.Options {
			cloned[k] = v
		}
		out.Options = cloned
	}
	out.Options["backend"] = backend
	return out
}

// ── Startup summary ─────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         UniVoice — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("ASR fallback", cfg.Providers.ASRFallback.Name, "")
	printProvider("Realtime", cfg.Providers.Realtime.Name, cfg.Providers.Realtime.Model)
	printProvider("Quality", cfg.Providers.Quality.Name, cfg.Providers.Quality.Model)
	fmt.Printf("║  Source → target : %-19s ║\n", cfg.ASR.Language+" → "+cfg.ASR.TargetLanguage)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
