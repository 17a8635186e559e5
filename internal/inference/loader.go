package inference

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/logger"
	"gopkg.in/yaml.v3"
)

type Loader struct {
	Params lm.Params

	// GenerationConfigPath optionally points at a YAML GenDefaults file.
	GenerationConfigPath string
}

type LoadResult struct {
	Engine             *EngineImpl
	Model              *lm.Model
	GenerationDefaults GenDefaults
}

func (l Loader) Load(ctx context.Context, log logger.Logger) (*LoadResult, error) {
	if strings.TrimSpace(l.Params.ModelPath) == "" {
		return nil, fmt.Errorf("model path is required")
	}

	defaults := DefaultGenDefaults()
	if l.GenerationConfigPath != "" {
		var err error
		defaults, err = loadGenDefaults(l.GenerationConfigPath, defaults)
		if err != nil {
			return nil, err
		}
	}

	m, err := lm.Load(ctx, l.Params, log)
	if err != nil {
		return nil, err
	}
	return &LoadResult{
		Engine:             NewEngine(m, defaults, log),
		Model:              m,
		GenerationDefaults: defaults,
	}, nil
}

func loadGenDefaults(path string, base GenDefaults) (GenDefaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("load generation config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("parse generation config %s: %w", path, err)
	}
	if err := cfg.Sampling.Validate(); err != nil {
		return base, fmt.Errorf("generation config %s: sampling: %w", path, err)
	}
	if err := cfg.Penalty.Validate(); err != nil {
		return base, fmt.Errorf("generation config %s: penalty: %w", path, err)
	}
	return cfg, nil
}
