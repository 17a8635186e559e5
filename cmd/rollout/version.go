package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/version"
)

func versionCmd() *cli.Command {
	var short bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print build and backend information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "short",
				Usage:       "print only the version string",
				Destination: &short,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if short {
				_, err := fmt.Fprintln(os.Stdout, version.String())
				return err
			}
			return writeVersion(os.Stdout, version.Resolve())
		},
	}
}

func writeVersion(w io.Writer, info version.Info) error {
	rows := [][2]string{
		{"version", info.Version},
		{"commit", info.Commit},
		{"built", info.BuildTime},
		{"go", info.GoVersion},
		{"user agent", version.UserAgent()},
		{"backends", strings.Join(backend.Names(), ", ")},
	}
	if info.Modified {
		rows = append(rows, [2]string{"tree", "modified"})
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-11s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}
