package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/cyberinferno/go-chatrelay/chatclient"
)

func connectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "reconnect",
			Usage: "redial with backoff when the relay drops the connection",
		},
		&cli.StringFlag{
			Name:  "nick",
			Usage: "nickname to set right after connecting",
		},
	}
}

func runConnect(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.Args().First()
	if addr == "" {
		addr = "127.0.0.1:7711"
	}

	cfg := chatclient.DefaultConfig(addr)
	cfg.AutoReconnect = cmd.Bool("reconnect")

	client := chatclient.New(cfg)
	client.OnLine(func(line string) {
		fmt.Fprint(os.Stdout, line)
	})
	client.OnState(func(e chatclient.StateEvent) {
		if e.Error != nil {
			fmt.Fprintf(os.Stderr, "[%s] %v\n", e.State, e.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", e.State, e.Address)
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer client.Close()

	if nick := cmd.String("nick"); nick != "" {
		if err := client.SetNick(nick); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := client.SendLine(line); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}
}
