package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/redclient/internal/admin"
	"github.com/danmuck/redclient/internal/config"
	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/pubsub"
	"github.com/danmuck/redclient/internal/transport"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	host := flag.String("host", "", "server host")
	port := flag.Int("port", 0, "server port")
	channels := flag.String("channels", "", "comma separated channels to subscribe to")
	adminAddr := flag.String("admin", "", "admin HTTP listen address")
	logLevel := flag.String("log-level", "", "log level")
	flag.Parse()

	logger := observability.InitLogger("subctl")
	cfg, err := resolveConfig(*configPath, overrides{
		host:     *host,
		port:     *port,
		channels: *channels,
		admin:    *adminAddr,
		logLevel: *logLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "subctl: %v\n", err)
		os.Exit(2)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "subctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, out io.Writer) error {
	if len(cfg.Channels) == 0 {
		return errors.New("no channels configured")
	}
	conn, err := transport.Dial(ctx, cfg.Host, cfg.Port, cfg.Transport)
	if err != nil {
		return err
	}
	defer conn.Disconnect()
	logger.Info().Str("remote", conn.RemoteAddr()).Strs("channels", cfg.Channels).Msg("connected")

	sub := pubsub.NewSubscriber(conn)
	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(ctx) }()

	if cfg.AdminAddr != "" {
		srv := admin.New("subctl", sub, nil)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.AdminAddr); err != nil {
				logger.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	// q must be drained before subscribing. A full queue stalls Run and
	// every Subscribe behind it.
	q := pubsub.NewQueue(cfg.QueueCapacity)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for {
			select {
			case ev := <-q.Events():
				printEvent(out, ev)
			case <-sub.Done():
				return
			}
		}
	}()

	for _, ch := range cfg.Channels {
		if err := sub.Subscribe(ctx, ch, q); err != nil {
			return err
		}
	}

	err = <-runErr
	<-printed
	return err
}

func printEvent(out io.Writer, ev pubsub.Event) {
	switch ev.Kind {
	case pubsub.EventMessage:
		fmt.Fprintf(out, "%s: %s\n", ev.Channel, ev.Payload)
	default:
		fmt.Fprintf(out, "[%s %s]\n", ev.Kind, ev.Channel)
	}
}
