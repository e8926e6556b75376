package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-chatrelay/chat"
	"github.com/cyberinferno/go-chatrelay/logger"
)

func serveFlags() []cli.Flag {
	defaults := chat.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   defaults.Addr,
			Usage:   "listen address",
			Sources: cli.EnvVars("CHATRELAY_ADDR"),
		},
		&cli.IntFlag{
			Name:    "bus-capacity",
			Value:   defaults.BusCapacity,
			Usage:   "messages queued per session before the oldest are dropped",
			Sources: cli.EnvVars("CHATRELAY_BUS_CAPACITY"),
		},
		&cli.BoolFlag{
			Name:    "echo-nick",
			Usage:   "confirm nickname changes to the sender",
			Sources: cli.EnvVars("CHATRELAY_ECHO_NICK"),
		},
		&cli.DurationFlag{
			Name:    "write-timeout",
			Usage:   "deadline for each write to a client (0 disables)",
			Sources: cli.EnvVars("CHATRELAY_WRITE_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "continue-on-accept-error",
			Usage:   "log accept errors and keep serving instead of exiting",
			Sources: cli.EnvVars("CHATRELAY_CONTINUE_ON_ACCEPT_ERROR"),
		},
		&cli.DurationFlag{
			Name:    "reconnect-cooldown",
			Usage:   "refuse a host that connected less than this long ago (0 disables)",
			Sources: cli.EnvVars("CHATRELAY_RECONNECT_COOLDOWN"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "debug, info, warn or error",
			Sources: cli.EnvVars("CHATRELAY_LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "log-pretty",
			Usage:   "human-readable console logs instead of JSON",
			Sources: cli.EnvVars("CHATRELAY_LOG_PRETTY"),
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "also write daily-rotated log files to this directory",
			Sources: cli.EnvVars("CHATRELAY_LOG_DIR"),
		},
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.New(logger.Config{
		Service: serviceName,
		Level:   cmd.String("log-level"),
		Pretty:  cmd.Bool("log-pretty"),
		Dir:     cmd.String("log-dir"),
	})
	if err != nil {
		return err
	}
	defer log.Close()

	srv := chat.NewServer(chat.Config{
		Addr:                  cmd.String("addr"),
		BusCapacity:           cmd.Int("bus-capacity"),
		EchoNick:              cmd.Bool("echo-nick"),
		WriteTimeout:          cmd.Duration("write-timeout"),
		ContinueOnAcceptError: cmd.Bool("continue-on-accept-error"),
		ReconnectCooldown:     cmd.Duration("reconnect-cooldown"),
	}, log)

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(); !errors.Is(err, chat.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})

	err = g.Wait()
	srv.Wait()
	if err != nil {
		log.Error("relay stopped", logger.Field{Key: "error", Value: err})
		return err
	}

	log.Info("relay stopped")
	return nil
}
