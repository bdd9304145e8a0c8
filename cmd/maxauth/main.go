// Command maxauth runs the Max authorization capture flow once and exits.
// It is useful to provision max_config.json before starting the bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"

	"github.com/onnwee/max-bridge/auth"
	"github.com/onnwee/max-bridge/config"
	"github.com/onnwee/max-bridge/credentials"
)

func main() {
	force := flag.Bool("force", false, "Capture a new credential even if one is configured")
	flag.Parse()

	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	figure.NewFigure("maxauth", "", true).Print()
	fmt.Println()

	cfg, err := loadConfig(*force)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	store, err := cfg.CredentialStore()
	if err != nil {
		slog.Error("credential store", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := auth.NewCoordinator(cfg.Credential(), credentials.NewResolver(store), auth.ServerCapture(cfg.AuthAddr, cfg.AuthPagePath, store))
	coord.Timeout = cfg.AuthTimeout

	cred, err := coord.EnsureAuth(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Не удалось получить авторизацию Max.")
		slog.Error("authorization failed", slog.Any("err", err))
		os.Exit(1)
	}
	fmt.Printf("Авторизация получена для пользователя %s (файл %s)\n", cred.UserID, store.Path)
}

// loadConfig skips the credential file when force is set, so a corrupt file
// can be replaced. The resulting config carries no credential.
func loadConfig(force bool) (*config.Config, error) {
	if force {
		return config.LoadSettings()
	}
	return config.Load()
}
