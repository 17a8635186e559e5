package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/logger"
)

// loadModel applies the config file and opens the model named by the flags.
func loadModel(ctx context.Context, cmd *cli.Command) (*lm.Model, error) {
	applyModelConfig(cmd.IsSet, LoadConfig())
	params, err := modelParams()
	if err != nil {
		return nil, err
	}
	return lm.Load(ctx, params, logger.FromContext(ctx))
}

func tokenizeCmd() *cli.Command {
	var (
		text  string
		noBOS bool
	)
	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Print the token ids of a text",
		ArgsUsage: "[text]",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "text",
				Usage:       "text to tokenize (default: first argument)",
				Destination: &text,
			},
			&cli.BoolFlag{
				Name:        "no-bos",
				Usage:       "do not prepend the BOS token",
				Destination: &noBOS,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if text == "" {
				text = strings.Join(cmd.Args().Slice(), " ")
			}
			m, err := loadModel(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			ids, err := m.Tokenize(text, !noBOS)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(ids)
		},
	}
}

func detokenizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "detokenize",
		Usage:     "Print the text of a token id sequence",
		ArgsUsage: "<id> [id...]",
		Flags:     commonModelFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids, err := parseIDs(cmd.Args().Slice())
			if err != nil {
				return err
			}
			m, err := loadModel(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			text, ok, err := m.Detokenize(ids)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, text)
			if !ok {
				logger.FromContext(ctx).Warn("sequence ends inside a multi-byte character")
			}
			return nil
		},
	}
}

// parseIDs accepts ids as separate arguments, comma separated, or both.
func parseIDs(args []string) ([]int, error) {
	var ids []int
	for _, a := range args {
		for f := range strings.FieldsFuncSeq(a, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q", f)
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one token id is required")
	}
	return ids, nil
}

func embedCmd() *cli.Command {
	return &cli.Command{
		Name:      "embed",
		Usage:     "Print the embedding of a text (implies --embedding)",
		ArgsUsage: "<text>",
		Flags:     commonModelFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text := strings.Join(cmd.Args().Slice(), " ")
			if text == "" {
				return fmt.Errorf("text is required")
			}
			embeddingMode = true
			m, err := loadModel(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			emb, err := m.Embed(text)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(emb)
		},
	}
}
