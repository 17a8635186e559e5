package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/api"
	"github.com/samcharles93/rollout/internal/inference"
	"github.com/samcharles93/rollout/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		modelID     string
		genConfig   string
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the completions REST API",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.StringFlag{
				Name:        "model-id",
				Usage:       "model name reported by /v1/models (default: model file name)",
				Destination: &modelID,
			},
			&cli.StringFlag{
				Name:        "generation-config",
				Usage:       "YAML file with generation defaults",
				Destination: &genConfig,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd.IsSet, LoadConfig(), &genConfig, &addr)

			params, err := modelParams()
			if err != nil {
				return err
			}
			loaded, err := inference.Loader{Params: params, GenerationConfigPath: genConfig}.Load(ctx, log)
			if err != nil {
				return err
			}
			defer func() { _ = loaded.Engine.Close() }()

			if modelID == "" {
				modelID = strings.TrimSuffix(filepath.Base(params.ModelPath), filepath.Ext(params.ModelPath))
			}
			service := api.NewInferenceService(modelID, loaded.Engine, loaded.Model)
			server := api.NewServer(service, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", modelID)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
