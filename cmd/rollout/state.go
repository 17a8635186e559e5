package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/statefile"
)

func stateCmd() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Save, inspect and verify backend state snapshots",
		Commands: []*cli.Command{
			stateSaveCmd(),
			stateInspectCmd(),
			stateVerifyCmd(),
		},
	}
}

func stateSaveCmd() *cli.Command {
	var (
		prompt string
		out    string
	)
	return &cli.Command{
		Name:  "save",
		Usage: "Evaluate a prompt and snapshot the backend state",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt to evaluate before the snapshot",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "snapshot file to write",
				Required:    true,
				Destination: &out,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := loadModel(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			h, err := saveState(m, prompt, out)
			if err != nil {
				return err
			}
			logger.FromContext(ctx).Info("state saved",
				"path", out,
				"tokens", len(h.Tokens),
				"state_bytes", h.StateSize,
			)
			return nil
		},
	}
}

// saveState evaluates prompt (if any) on a fresh window and writes the
// resulting backend state to path.
func saveState(m *lm.Model, prompt, path string) (statefile.Header, error) {
	if err := m.Reset(0); err != nil {
		return statefile.Header{}, err
	}
	if prompt != "" {
		ids, err := m.Tokenize(prompt, true)
		if err != nil {
			return statefile.Header{}, err
		}
		if err := m.Evaluate(ids); err != nil {
			return statefile.Header{}, err
		}
	}
	blob, err := m.State()
	if err != nil {
		return statefile.Header{}, err
	}
	h := statefile.NewHeader(m.Properties(), m.InputTokens())
	if err := statefile.Save(path, h, blob); err != nil {
		return statefile.Header{}, err
	}
	h.StateSize = len(blob)
	return h, nil
}

func stateInspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print a snapshot header",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one snapshot file")
			}
			return inspectState(cmd.Args().First(), os.Stdout)
		},
	}
}

func inspectState(path string, w io.Writer) error {
	f, err := statefile.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	out, err := json.MarshalIndent(f.Header, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func stateVerifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check a snapshot against a model and load it",
		ArgsUsage: "<file>",
		Flags:     commonModelFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one snapshot file")
			}
			m, err := loadModel(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			if err := verifyState(m, cmd.Args().First()); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("state verified", "path", cmd.Args().First())
			return nil
		},
	}
}

// verifyState checks the snapshot header against m, verifies the checksum and
// loads the blob into the backend.
func verifyState(m *lm.Model, path string) error {
	f, err := statefile.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Header.Compatible(m.Properties(), m.StateSize()); err != nil {
		return err
	}
	blob, err := f.Blob()
	if err != nil {
		return err
	}
	return m.LoadState(blob)
}
