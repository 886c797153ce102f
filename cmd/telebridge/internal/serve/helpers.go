package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/bridge"
	"github.com/tinyland-inc/telebridge/pkg/bus"
	"github.com/tinyland-inc/telebridge/pkg/config"
	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

func serveCmd(configPath string, debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, debug)
	if err != nil {
		return err
	}

	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram bot token is not configured")
	}

	events := bus.NewEventBus()
	defer events.Close()

	client, err := telegram.NewBotClient(cfg.Telegram.BotToken, cfg.Telegram.SelfUserID, events, logger)
	if err != nil {
		return fmt.Errorf("error creating telegram client: %w", err)
	}

	selfPeer := telegram.UserPeer(cfg.Telegram.SelfUserID)
	srv := host.NewServer(selfPeer, logger)
	srv.SetAuthToken(cfg.Host.AuthToken)

	dispatcher := bridge.NewDispatcher(
		client,
		srv,
		srv,
		events,
		logger,
		bridge.Options{ScrollbackReplay: cfg.Bridge.ScrollbackReplay},
		cfg.Bridge.AllowFrom,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx)

	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("telegram client stopped")
			stop()
		}
	}()

	httpServer := &http.Server{Addr: cfg.Host.ListenAddr, Handler: srv}
	go func() {
		logger.Info().Str("addr", cfg.Host.ListenAddr).Msg("channel host listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("channel host stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}

func newLogger(level string, debug bool) (zerolog.Logger, error) {
	if debug {
		level = "debug"
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}
