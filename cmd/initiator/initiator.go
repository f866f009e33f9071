package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	protocol "udp-tcp-pa/pkg"
)

func main() {
	configPath := flag.String("config", "", "YAML file with protocol tunables")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	tracePath := flag.String("trace", "", "write every datagram to this pcap file")
	progress := flag.Bool("progress", false, "show received bytes on stderr")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: initiator [flags] <host> <port>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	host := flag.Arg(0)
	port, err := strconv.ParseUint(flag.Arg(1), 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", flag.Arg(1), err)
		os.Exit(2)
	}

	cfg := protocol.DefaultConfig()
	if *configPath != "" {
		if cfg, err = protocol.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *tracePath != "" {
		cfg.TracePath = *tracePath
	}
	cfg.Progress = cfg.Progress || *progress

	logger, err := protocol.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	channel, err := protocol.DialChannel(host, uint16(port), cfg.PollInterval)
	if err != nil {
		logger.Error("cannot create socket", "error", err)
		os.Exit(1)
	}
	defer channel.Close()
	logger.Info("server address", "host", host, "port", port)

	session, err := protocol.OpenSession(cfg, logger)
	if err != nil {
		logger.Error("cannot set up local streams", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn := protocol.NewInitiator(channel, session.Input, session.Output, cfg, session.Options...)
	err = conn.Run(ctx)
	logger.Info("connection status\n" + conn.Status())
	if err != nil && ctx.Err() == nil {
		logger.Error("connection failed", "error", err)
		session.Close()
		channel.Close()
		os.Exit(1)
	}
}
