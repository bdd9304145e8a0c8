// Command max-bridge relays Max messages into Matrix and Telegram.
// It:
//   - Loads configuration (env, .env and the credential file) and initializes
//     structured logging.
//   - Ensures a Max credential exists, running the browser capture flow on
//     localhost when none is configured.
//   - Polls Max on POLL_INTERVAL (optionally also streaming over WebSocket)
//     and forwards every new message to the enabled sinks.
//   - Exposes /healthz and /metrics on METRICS_ADDR when set.
//
// Shutdown is graceful on SIGINT/SIGTERM. A failed authorization exits 1.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/max-bridge/auth"
	"github.com/onnwee/max-bridge/bridge"
	"github.com/onnwee/max-bridge/config"
	"github.com/onnwee/max-bridge/credentials"
	"github.com/onnwee/max-bridge/dispatch"
	"github.com/onnwee/max-bridge/matrix"
	"github.com/onnwee/max-bridge/maxapi"
	"github.com/onnwee/max-bridge/poller"
	"github.com/onnwee/max-bridge/telegram"
	"github.com/onnwee/max-bridge/telemetry"
)

const version = "1.0.0"

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load(".env")
	setupLogging()

	figure.NewFigure("max-bridge", "", true).Print()
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(context.Background(), version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	shutdown := func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cfg.CredentialStore()
	if err != nil {
		slog.Error("credential store", slog.Any("err", err))
		os.Exit(1)
	}
	coord := auth.NewCoordinator(cfg.Credential(), credentials.NewResolver(store), auth.ServerCapture(cfg.AuthAddr, cfg.AuthPagePath, store))
	coord.Timeout = cfg.AuthTimeout

	client := maxapi.NewClient(cfg.MaxAPIURL, &http.Client{Timeout: cfg.MaxHTTPTimeout})
	disp := dispatch.New(buildSinks(ctx, cfg)...)
	if disp.Len() == 0 {
		slog.Warn("no sinks enabled; messages will only be logged")
	}

	b := &bridge.Bridge{
		Poller:     poller.New(coord, client),
		Dispatcher: disp,
		Interval:   cfg.PollInterval,
	}
	if cfg.MaxStream {
		b.Stream = maxapi.NewStream(cfg.MaxWSURL)
		b.Token = func() string { return coord.Credential().Token }
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	if err := b.Run(ctx); err != nil {
		if errors.Is(err, auth.ErrAuthorizationNotObtained) {
			fmt.Fprintln(os.Stderr, "Не удалось получить авторизацию Max. Завершение работы.")
		}
		slog.Error("bridge stopped", slog.Any("err", err))
		shutdown()
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// setupLogging configures the default slog logger from LOG_LEVEL and
// LOG_FORMAT. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

// buildSinks enables every sink whose settings are complete.
func buildSinks(ctx context.Context, cfg *config.Config) []dispatch.Sink {
	var sinks []dispatch.Sink

	if err := cfg.ValidateMatrixReady(); err != nil {
		slog.Info("matrix sink disabled", slog.Any("reason", err))
	} else {
		lctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		s, err := matrix.New(lctx, matrix.Options{
			Homeserver:  cfg.MatrixHomeserver,
			Username:    cfg.MatrixUsername,
			Password:    cfg.MatrixPassword,
			AccessToken: cfg.MatrixAccessToken,
			UserID:      cfg.MatrixUserID,
			RoomID:      cfg.MatrixRoomID,
		})
		cancel()
		if err != nil {
			slog.Error("matrix sink unavailable", slog.Any("err", err))
		} else {
			sinks = append(sinks, s)
		}
	}

	if err := cfg.ValidateTelegramReady(); err != nil {
		slog.Info("telegram sink disabled", slog.Any("reason", err))
	} else {
		s, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			slog.Error("telegram sink unavailable", slog.Any("err", err))
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("metrics server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", slog.Any("err", err))
	}
}
