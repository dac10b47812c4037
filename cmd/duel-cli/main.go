// Command duel-cli is an interactive terminal client for the duel server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"algoarena/internal/cli/client"
	"algoarena/internal/cli/repl"
	"algoarena/internal/cli/state"

	"github.com/urfave/cli/v3"
)

const (
	defaultBaseURL = "http://127.0.0.1:8080"
	defaultTimeout = 10 * time.Second
)

func main() {
	cmd := &cli.Command{
		Name:  "duel-cli",
		Usage: "play duels from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base", Usage: "server base URL", Sources: cli.EnvVars("ALGOARENA_BASE_URL")},
			&cli.StringFlag{Name: "token", Usage: "access token", Sources: cli.EnvVars("ALGOARENA_TOKEN")},
			&cli.StringFlag{Name: "state", Value: defaultStatePath(), Usage: "where settings are remembered"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "request and handshake timeout"},
			&cli.StringSliceFlag{Name: "lang", Usage: "languages to advertise when joining rooms"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	statePath := cmd.String("state")
	st, err := state.Load(statePath)
	if err != nil {
		return err
	}
	if base := cmd.String("base"); base != "" {
		st.BaseURL = base
	}
	if st.BaseURL == "" {
		st.BaseURL = defaultBaseURL
	}
	if token := cmd.String("token"); token != "" {
		st.AccessToken = token
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(st.BaseURL, st.AccessToken, cmd.Duration("timeout"))
	session := repl.New(repl.FromClient(c), &st, statePath, cmd.StringSlice("lang"), os.Stdout)
	return session.Run(ctx, os.Stdin)
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "duel-cli.json")
	}
	return filepath.Join(dir, "algoarena", "duel-cli.json")
}
