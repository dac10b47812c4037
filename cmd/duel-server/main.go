// Command duel-server runs the AlgoArena duel server and its operator tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "configs/duel-server.yaml"

func main() {
	cmd := &cli.Command{
		Name:  "duel-server",
		Usage: "real-time coding duels with sandboxed judging",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("ALGOARENA_CONFIG"),
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Value: []string{".env"},
				Usage: "dotenv files loaded before the config, missing files are skipped",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and websocket server",
				Action: serveAction,
			},
			{
				Name:  "seed",
				Usage: "load problems from a YAML file into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Value: "configs/problems.yaml", Usage: "problem list"},
				},
				Action: seedAction,
			},
			{
				Name:  "judge",
				Usage: "judge a local source file against a stored problem",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "problem", Required: true, Usage: "problem id"},
					&cli.StringFlag{Name: "lang", Required: true, Usage: "language id"},
					&cli.StringFlag{Name: "file", Required: true, Usage: "source file"},
				},
				Action: judgeAction,
			},
			{
				Name:  "token",
				Usage: "issue an access token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "name", Usage: "display name"},
					&cli.BoolFlag{Name: "admin", Usage: "grant the admin role"},
				},
				Action: tokenAction,
			},
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "duel-server: %v\n", err)
		os.Exit(1)
	}
}

func configFrom(cmd *cli.Command) (*AppConfig, error) {
	return loadAppConfig(cmd.String("config"), cmd.StringSlice("env-file")...)
}
