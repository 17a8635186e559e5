package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/inference"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/logits"
)

func generateCmd() *cli.Command {
	var (
		prompt        string
		promptsFile   string
		maxTokens     int64
		temp          float64
		topK          int64
		topP          float64
		tfsZ          float64
		typicalP      float64
		mirostat      string
		mirostatEta   float64
		mirostatTau   float64
		repeatPenalty float64
		repeatLastN   int64
		penalizeNL    bool
		freqPenalty   float64
		presPenalty   float64
		echoPrompt    bool
		flushTail     bool
		genConfig     string
		streamMode    string
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a completion for a prompt",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "prompts-file",
				Usage:       "file with one prompt per line; results are written as JSON lines",
				Destination: &promptsFile,
			},
			&cli.Int64Flag{
				Name:        "max-tokens",
				Aliases:     []string{"n"},
				Usage:       "maximum tokens to generate (0 = up to the context size)",
				Destination: &maxTokens,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature"},
				Usage:       "sampling temperature (<= 0 is greedy)",
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k sampling parameter (0 = disabled)",
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus sampling parameter",
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "tfs",
				Usage:       "tail free sampling z (1.0 = disabled)",
				Destination: &tfsZ,
			},
			&cli.Float64Flag{
				Name:        "typical-p",
				Usage:       "locally typical sampling p (1.0 = disabled)",
				Destination: &typicalP,
			},
			&cli.StringFlag{
				Name:        "mirostat",
				Usage:       "mirostat strategy (disabled, v1, v2)",
				Destination: &mirostat,
			},
			&cli.Float64Flag{
				Name:        "mirostat-eta",
				Usage:       "mirostat learning rate",
				Destination: &mirostatEta,
			},
			&cli.Float64Flag{
				Name:        "mirostat-tau",
				Usage:       "mirostat target surprise",
				Destination: &mirostatTau,
			},
			&cli.Float64Flag{
				Name:        "repeat-penalty",
				Usage:       "repetition penalty (1.0 = disabled)",
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "repeat-last-n",
				Usage:       "last n tokens to penalize (-1 = context size)",
				Destination: &repeatLastN,
			},
			&cli.BoolFlag{
				Name:        "penalize-nl",
				Usage:       "apply penalties to the newline token",
				Destination: &penalizeNL,
			},
			&cli.Float64Flag{
				Name:        "frequency-penalty",
				Destination: &freqPenalty,
			},
			&cli.Float64Flag{
				Name:        "presence-penalty",
				Destination: &presPenalty,
			},
			&cli.BoolFlag{
				Name:        "echo",
				Usage:       "print the prompt before the completion",
				Destination: &echoPrompt,
			},
			&cli.BoolFlag{
				Name:        "flush-tail",
				Usage:       "emit trailing whitespace held back by the stream decoder",
				Destination: &flushTail,
			},
			&cli.StringFlag{
				Name:        "generation-config",
				Usage:       "YAML file with generation defaults",
				Destination: &genConfig,
			},
			&cli.StringFlag{
				Name:        "stream-mode",
				Usage:       "output mode (instant, quiet)",
				Value:       string(StreamInstant),
				Destination: &streamMode,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyGenerateConfig(cmd.IsSet, LoadConfig(), &genConfig, &streamMode)

			if (prompt == "") == (promptsFile == "") {
				return fmt.Errorf("exactly one of --prompt or --prompts-file is required")
			}
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return err
			}

			opts := inference.RequestOptions{}
			setIf(cmd, "max-tokens", &opts.MaxTokens, int(maxTokens))
			setIf(cmd, "temp", &opts.Temperature, float32(temp))
			setIf(cmd, "top-k", &opts.TopK, int(topK))
			setIf(cmd, "top-p", &opts.TopP, float32(topP))
			setIf(cmd, "tfs", &opts.TailFreeZ, float32(tfsZ))
			setIf(cmd, "typical-p", &opts.TypicalP, float32(typicalP))
			setIf(cmd, "mirostat-eta", &opts.MirostatEta, float32(mirostatEta))
			setIf(cmd, "mirostat-tau", &opts.MirostatTau, float32(mirostatTau))
			setIf(cmd, "repeat-penalty", &opts.RepeatPenalty, float32(repeatPenalty))
			setIf(cmd, "repeat-last-n", &opts.RepeatLastN, int(repeatLastN))
			setIf(cmd, "penalize-nl", &opts.PenalizeNewline, penalizeNL)
			setIf(cmd, "frequency-penalty", &opts.FrequencyPenalty, float32(freqPenalty))
			setIf(cmd, "presence-penalty", &opts.PresencePenalty, float32(presPenalty))
			setIf(cmd, "echo", &opts.EchoPrompt, echoPrompt)
			setIf(cmd, "flush-tail", &opts.FlushTail, flushTail)
			if cmd.IsSet("mirostat") {
				s, err := logits.ParseMirostatStrategy(mirostat)
				if err != nil {
					return err
				}
				opts.Mirostat = &s
			}

			params, err := modelParams()
			if err != nil {
				return err
			}
			loaded, err := inference.Loader{Params: params, GenerationConfigPath: genConfig}.Load(ctx, log)
			if err != nil {
				return err
			}
			defer func() { _ = loaded.Engine.Close() }()

			if promptsFile != "" {
				return generateBatch(ctx, loaded, opts, promptsFile, os.Stdout)
			}

			opts.Prompt = prompt
			req := inference.ResolveRequest(opts, loaded.GenerationDefaults)
			sw := NewStreamWriter(mode, os.Stdout)
			res, err := loaded.Engine.Generate(ctx, &req, sw.Write)
			sw.Flush()
			_, _ = fmt.Fprintln(os.Stdout)
			if err != nil {
				return err
			}
			log.Info("generation complete",
				"stop", res.StopReason,
				"prompt_tokens", res.Stats.PromptTokens,
				"tokens", res.Stats.TokensGenerated,
				"duration", res.Stats.Duration,
				"tps", fmt.Sprintf("%.2f", res.Stats.TPS),
			)
			return nil
		},
	}
}

// setIf stores v in *dst only when the flag was given explicitly, so unset
// flags fall through to the generation defaults.
func setIf[T any](cmd *cli.Command, name string, dst **T, v T) {
	if cmd.IsSet(name) {
		*dst = &v
	}
}

type batchLine struct {
	Index      int                  `json:"index"`
	Prompt     string               `json:"prompt"`
	Text       string               `json:"text,omitempty"`
	StopReason inference.StopReason `json:"stop_reason,omitempty"`
	Tokens     int                  `json:"tokens"`
	Error      string               `json:"error,omitempty"`
}

func generateBatch(ctx context.Context, loaded *inference.LoadResult, opts inference.RequestOptions, path string, out io.Writer) error {
	prompts, err := readPrompts(path)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in %s", path)
	}

	bar := progressbar.NewOptions(len(prompts),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Generating"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	enc := json.NewEncoder(out)
	var total int
	for i, p := range prompts {
		if ctx.Err() != nil {
			break
		}
		o := opts
		o.Prompt = p
		req := inference.ResolveRequest(o, loaded.GenerationDefaults)
		line := batchLine{Index: i, Prompt: p}
		res, err := loaded.Engine.Generate(ctx, &req, nil)
		if err != nil {
			line.Error = err.Error()
		} else {
			line.Text = res.Text
			line.StopReason = res.StopReason
			line.Tokens = res.Stats.TokensGenerated
			total += line.Tokens
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
		bar.Describe(fmt.Sprintf("Generating [%d tokens]", total))
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return ctx.Err()
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var prompts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, sc.Err()
}
