// Command fwdproxy runs the forwarding HTTP proxy server.
//
// Usage:
//
//	fwdproxy [flags]
//	fwdproxy -h
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"fwdproxy/internal/config"
	"fwdproxy/internal/proxy"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	srv := proxy.NewServer(cfg, sugar)

	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		sugar.Infow("received shutdown signal", "signal", s.String())
	case err := <-serveErr:
		if err != nil {
			sugar.Errorw("listener stopped unexpectedly", "error", err)
		}
	}

	cancel()
	srv.Shutdown()
	sugar.Infow("shut down")
}

func parseFlags(args []string) (config.Config, error) {
	cfg := config.Default()

	var connectTimeoutSec, readTimeoutSec, writeTimeoutSec int
	var user, pass string

	flags := pflag.NewFlagSet("fwdproxy", pflag.ContinueOnError)
	flags.StringVarP(&cfg.ListenIP, "ip", "i", cfg.ListenIP, "address to listen on")
	flags.IntVarP(&cfg.ListenPort, "port", "p", cfg.ListenPort, "port to listen on")
	flags.StringVarP(&user, "username", "u", "", "Proxy-Authorization username (requires --password)")
	flags.StringVarP(&pass, "password", "w", "", "Proxy-Authorization password (requires --username)")
	flags.IntVarP(&cfg.MaxConnections, "max-connections", "c", cfg.MaxConnections, "maximum concurrent connections")
	flags.IntVarP(&connectTimeoutSec, "connect-timeout", "t", int(cfg.ConnectTimeout/time.Second), "upstream dial timeout, seconds")
	flags.IntVarP(&readTimeoutSec, "read-timeout", "r", int(cfg.ReadTimeout/time.Second), "per-read relay deadline, seconds")
	flags.IntVarP(&writeTimeoutSec, "write-timeout", "W", int(cfg.WriteTimeout/time.Second), "per-write relay deadline, seconds")
	flags.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg.ConnectTimeout = time.Duration(connectTimeoutSec) * time.Second
	cfg.ReadTimeout = time.Duration(readTimeoutSec) * time.Second
	cfg.WriteTimeout = time.Duration(writeTimeoutSec) * time.Second

	if user != "" || pass != "" {
		cfg.Auth = &config.Auth{Username: user, Password: pass}
	}

	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.TimeKey = "ts"
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	return zcfg.Build()
}
