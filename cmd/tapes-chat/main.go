// Command tapes-chat talks to an OpenAI compatible model through a Tapes recording proxy.
//
//	tapes-chat         interactive chat in the terminal
//	tapes-chat serve   HTTP chat API on TAPES_LISTEN
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casualjim/tapes/internal/broker"
	"github.com/casualjim/tapes/internal/chat"
	"github.com/casualjim/tapes/internal/config"
	"github.com/casualjim/tapes/pkg/natsx"
	"github.com/casualjim/tapes/pkg/slogx"
	"github.com/casualjim/tapes/provider/openai"
	"github.com/casualjim/tapes/proxyfetch"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

const instructions = "You are a helpful assistant."

var log zerolog.Logger

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("tapes-chat failed")
	}
}

func run(args []string) error {
	setupLogging(false)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Debug)

	preset, err := openai.LookupPreset(cfg.Provider)
	if err != nil {
		return err
	}
	fetcher, err := proxyfetch.New(cfg.FetchConfig())
	if err != nil {
		return err
	}
	client := openai.New(fetcher, preset.Options(cfg.UpstreamURL, cfg.APIKey)...)
	model := preset.ModelOr(cfg.Model)

	slog.Info("starting tapes-chat",
		slog.String("provider", preset.Name),
		slog.String("model", model),
		slog.String("proxy", cfg.ProxyURL),
		slog.String("session", cfg.SessionID),
		slog.Bool("failover", cfg.Failover),
	)

	newSession := func(id string) *chat.Session {
		return chat.NewSession(id, client, model, instructions)
	}

	mode := "chat"
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "chat", "repl":
		return repl(newSession(cfg.SessionID))
	case "serve":
		return serve(cfg, newSession)
	default:
		return fmt.Errorf("unknown command %q, expected chat or serve", mode)
	}
}

func repl(session *chat.Session) error {
	r, err := chat.NewREPL(session, os.Stdin, os.Stdout, true)
	if err != nil {
		return err
	}
	fmt.Printf("Chatting with %s, type \"exit\" to quit.\n\n", session.Model())
	return r.Run(context.Background())
}

func serve(cfg config.Config, factory chat.SessionFactory) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var feed broker.Broker
	if cfg.NATSURL != "" {
		nc, err := natsx.Connect(cfg.NATSURL, cfg.App)
		if err != nil {
			return err
		}
		defer nc.Drain() //nolint:errcheck
		feed = broker.NATS(nc, broker.DefaultSubjectPrefix)
		slog.Info("publishing session events on nats", slog.String("url", cfg.NATSURL))
	}

	addr := cfg.Listen
	srv := &http.Server{
		Addr:              addr,
		Handler:           chat.NewServer(factory, feed, slog.Default()).WithRateLimit(cfg.RateLimit, time.Minute).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", slogx.Error(err))
		return err
	}
	return nil
}
