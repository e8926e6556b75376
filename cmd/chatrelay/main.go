// Command chatrelay runs the newline-delimited TCP chat relay, or connects
// to one as an interactive client.
//
//	chatrelay                       serve on 0.0.0.0:7711
//	chatrelay serve --addr :7711    same, explicit
//	chatrelay connect 127.0.0.1:7711
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const serviceName = "chatrelay"

func main() {
	cmd := &cli.Command{
		Name:   serviceName,
		Usage:  "multi-client text chat relay over TCP",
		Flags:  serveFlags(),
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "accept clients and relay their lines to each other",
				Flags:  serveFlags(),
				Action: runServe,
			},
			{
				Name:      "connect",
				Usage:     "connect to a relay, send stdin lines and print what others say",
				ArgsUsage: "[address]",
				Flags:     connectFlags(),
				Action:    runConnect,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
