package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/lm"
)

var (
	modelPath     string
	backendName   string
	contextSize   int64
	batchSize     int64
	seed          int64
	threads       int64
	ropeFreqBase  float64
	ropeFreqScale float64
	loraPath      string
	loraBase      string
	embeddingMode bool
	verbose       bool
	extraParams   []string

	logLevel  string
	logFormat string
	debug     bool
)

func backendUsage() string {
	names := append([]string{backend.Auto}, backend.Names()...)
	return "inference backend (" + strings.Join(names, ", ") + ")"
}

func commonModelFlags() []cli.Flag {
	def := lm.DefaultParams()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to the model file",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       backendUsage(),
			Value:       def.Backend,
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "context-size",
			Aliases:     []string{"ctx", "c"},
			Usage:       "context window in tokens",
			Value:       int64(def.ContextSize),
			Destination: &contextSize,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "tokens per evaluation batch",
			Value:       int64(def.BatchSize),
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = time based)",
			Value:       def.Seed,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "backend worker threads",
			Value:       int64(def.Threads),
			Destination: &threads,
		},
		&cli.Float64Flag{
			Name:        "rope-freq-base",
			Usage:       "RoPE base frequency",
			Value:       float64(def.RopeFreqBase),
			Destination: &ropeFreqBase,
		},
		&cli.Float64Flag{
			Name:        "rope-freq-scale",
			Usage:       "RoPE frequency scale",
			Value:       float64(def.RopeFreqScale),
			Destination: &ropeFreqScale,
		},
		&cli.StringFlag{
			Name:        "lora",
			Usage:       "LoRA adapter path",
			Destination: &loraPath,
		},
		&cli.StringFlag{
			Name:        "lora-base",
			Usage:       "base model for the LoRA adapter",
			Destination: &loraBase,
		},
		&cli.BoolFlag{
			Name:        "embedding",
			Usage:       "load the model in embedding mode",
			Destination: &embeddingMode,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "log model properties on load",
			Destination: &verbose,
		},
		&cli.StringSliceFlag{
			Name:        "extra",
			Aliases:     []string{"x"},
			Usage:       "backend specific key=value parameter (repeatable)",
			Destination: &extraParams,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// modelParams collects the model flags into lm.Params.
func modelParams() (lm.Params, error) {
	extra, err := parseExtra(extraParams)
	if err != nil {
		return lm.Params{}, err
	}
	return lm.Params{
		Verbose:       verbose,
		Backend:       backendName,
		ModelPath:     modelPath,
		ContextSize:   int(contextSize),
		BatchSize:     int(batchSize),
		Seed:          seed,
		Threads:       int(threads),
		RopeFreqBase:  float32(ropeFreqBase),
		RopeFreqScale: float32(ropeFreqScale),
		LoraPath:      loraPath,
		LoraBase:      loraBase,
		EmbeddingMode: embeddingMode,
		Extra:         extra,
	}, nil
}

func parseExtra(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --extra %q (want key=value)", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
