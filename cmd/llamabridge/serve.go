package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/api"
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		recordTTL   time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the engine over HTTP",
		Flags: append(append(modelFlags(), samplingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "record-ttl",
				Usage:       "how long generation records stay retrievable",
				Value:       api.DefaultRecordTTL,
				Destination: &recordTTL,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			srv := fileConfig.Server
			if srv.Address != "" && !cmd.IsSet("addr") {
				addr = srv.Address
			}
			if srv.ReadTimeout != nil && !cmd.IsSet("read-timeout") {
				readTimeout = time.Duration(*srv.ReadTimeout)
			}
			if srv.RecordTTL != nil && !cmd.IsSet("record-ttl") {
				recordTTL = time.Duration(*srv.RecordTTL)
			}

			loadOpts := applyModelConfig(cmd, fileConfig)
			provider, err := llm.Lookup(providerName)
			if err != nil {
				return err
			}
			engine := inference.New(
				inference.WithProvider(provider),
				inference.WithLogger(log),
				inference.WithConfig(engineConfig(cmd, fileConfig)),
			)
			defer func() { _ = engine.Close() }()

			// A model given up front is loaded before listening; otherwise
			// clients load one through POST /v1/model.
			if modelPath != "" {
				if status := engine.LoadModel(modelPath, loadOpts); status != inference.StatusOK {
					log.Warn("startup model load failed", "path", modelPath, "status", status.String())
				}
			}

			server := api.NewServer(engine, api.NewRecordStore(recordTTL), api.Options{
				LoadDefaults: loadOpts,
				Log:          log,
			})
			defer server.Close()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "provider", provider.Name())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
