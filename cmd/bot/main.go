package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"homework_bot/internal/bot"
	"homework_bot/internal/config"
	"homework_bot/internal/health"
	"homework_bot/internal/homework"
	"homework_bot/internal/logging"
	"homework_bot/internal/poller"
	"homework_bot/internal/practicum"
)

var errMissingTokens = homework.ConfigError("missing required environment variables")

func main() {
	// До чтения LOG_LEVEL пишем на info
	cfg, err := config.New(logging.New("info"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	cancel()

	switch {
	case errors.Is(err, errMissingTokens):
		fmt.Println("Программа принудительно остановлена.")
		os.Exit(1)
	case err != nil:
		log.Error().Err(err).Msg("stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("bye")
}

// run проверяет токены до создания любых клиентов: без них сеть не трогаем.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, botOpts ...bot.Option) error {
	if !cfg.CheckTokens(log) {
		return errMissingTokens
	}

	b, err := bot.New(cfg, log, botOpts...)
	if err != nil {
		return err
	}

	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}

	client := practicum.New(cfg.Endpoint, cfg.PracticumToken, practicum.WithTimeout(cfg.HTTPTimeout))
	p, err := poller.New(client, b, log,
		poller.WithSchedule(schedule),
		poller.WithFromOffset(cfg.FromOffset),
		poller.WithErrorCacheSize(cfg.ErrorCacheSize),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(ctx) })
	if cfg.Port > 0 {
		srv := health.NewServer("0.0.0.0", cfg.Port, p, log)
		// Падение health-сервера не должно останавливать опрос
		g.Go(func() error {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("health server failed, polling continues")
			}
			return nil
		})
	}
	return g.Wait()
}
