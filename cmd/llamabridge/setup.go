package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamabridge/internal/config"
	"github.com/samcharles93/llamabridge/internal/inference"
	"github.com/samcharles93/llamabridge/internal/llm"
	"github.com/samcharles93/llamabridge/internal/logger"
)

var errNoModel = errors.New("no model given (use --model or model.path in the config file)")

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("config: %v", err), 2)
	}
	fileConfig = cfg

	if cfg.Log.Level != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.Log.Format
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	log, err := logger.Open(os.Stderr, logFormat, level, isTerminal(os.Stderr))
	if err != nil {
		return ctx, cli.Exit(err.Error(), 2)
	}
	if path != "" {
		log.Debug("config resolved", "path", path)
	}
	return logger.WithContext(ctx, log), nil
}

// openEngine builds an engine from flags and config and loads the model.
func openEngine(ctx context.Context, cmd *cli.Command) (*inference.Engine, error) {
	log := logger.FromContext(ctx)
	opts := applyModelConfig(cmd, fileConfig)
	if modelPath == "" {
		return nil, errNoModel
	}
	provider, err := llm.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	engine := inference.New(
		inference.WithProvider(provider),
		inference.WithLogger(log),
		inference.WithConfig(engineConfig(cmd, fileConfig)),
	)
	if status := engine.LoadModel(modelPath, opts); status != inference.StatusOK {
		return nil, fmt.Errorf("load %s: %s", modelPath, status)
	}
	return engine, nil
}
