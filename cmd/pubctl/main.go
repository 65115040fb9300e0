package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/redclient/internal/config"
	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/pubsub"
	"github.com/danmuck/redclient/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	host := flag.String("host", "", "server host")
	port := flag.Int("port", 0, "server port")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: pubctl [flags] <channel> <message>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.InitLogger("pubctl")
	cfg := config.Default()
	if p := strings.TrimSpace(*configPath); p != "" {
		loaded, err := config.Load(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pubctl: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if h := strings.TrimSpace(*host); h != "" {
		cfg.Host = h
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "pubctl: %v\n", err)
		os.Exit(2)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := transport.Dial(ctx, cfg.Host, cfg.Port, cfg.Transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubctl: %v\n", err)
		os.Exit(1)
	}
	defer conn.Disconnect()
	logger.Debug().Str("remote", conn.RemoteAddr()).Msg("connected")

	n, err := pubsub.NewPublisher(conn).Publish(ctx, flag.Arg(0), []byte(flag.Arg(1)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pubctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(n)
}
