// Package command is the data-loader command line: a load subcommand that
// runs the same load the Lambda does, and a verify subcommand that checks a
// finished load.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/randyridgley/cdk-athena-federated/internal/app"
	"github.com/randyridgley/cdk-athena-federated/internal/awsclient"
	"github.com/randyridgley/cdk-athena-federated/internal/config"
	"github.com/randyridgley/cdk-athena-federated/internal/logging"
)

// Deps builds what a subcommand talks to. Tests swap in local fakes.
type Deps struct {
	Clients func(ctx context.Context, region string) (app.Clients, error)
	Logger  func(cfg *config.Config) (*zap.Logger, error)
}

func DefaultDeps() Deps {
	return Deps{
		Clients: func(ctx context.Context, region string) (app.Clients, error) {
			c, err := awsclient.Load(ctx, region)
			if err != nil {
				return app.Clients{}, err
			}
			return app.FromAWS(c), nil
		},
		Logger: func(cfg *config.Config) (*zap.Logger, error) {
			return logging.New(false, cfg.LogLevel)
		},
	}
}

func InitApp(deps Deps) *cli.Command {
	return &cli.Command{
		Name:  "data-loader",
		Usage: "load synthetic company records into DynamoDB and Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.EnvVars("LOADER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "table",
				Aliases: []string{"t"},
				Usage:   "DynamoDB table name",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "AWS region",
			},
			&cli.StringFlag{
				Name:  "redis-host",
				Usage: "Redis host, optionally host:port",
			},
			&cli.IntFlag{
				Name:  "redis-port",
				Usage: "Redis port",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			loadCommand(deps),
			verifyCommand(deps),
		},
	}
}

func loadCommand(deps Deps) *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "write records to both stores",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "records",
				Aliases: []string{"n"},
				Usage:   "number of records to write",
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Aliases: []string{"b"},
				Usage:   "records per batch, at most 25",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "generator seed, 0 for a random one",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, clients, logger, err := setup(ctx, cmd, deps)
			if err != nil {
				return err
			}
			defer logger.Sync()

			summary, err := app.Load(ctx, cfg, clients, logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, summary)
		},
	}
}

func verifyCommand(deps Deps) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "compare the table with the cache",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "ids listed per problem, 0 for all",
				Value:   20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, clients, logger, err := setup(ctx, cmd, deps)
			if err != nil {
				return err
			}
			defer logger.Sync()

			report, err := app.Verify(ctx, cfg, clients, logger, cmd.Int("limit"))
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.Root().Writer, report); err != nil {
				return err
			}
			if !report.Consistent() {
				return fmt.Errorf("table and cache differ: %d missing, %d unindexed, %d mismatched",
					report.MissingCount, report.UnindexedCount, report.MismatchedCount)
			}
			return nil
		},
	}
}

// setup loads the config file and environment, applies any flags that were
// set, then resolves and validates the result.
func setup(ctx context.Context, cmd *cli.Command, deps Deps) (*config.Config, app.Clients, *zap.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, app.Clients{}, nil, err
	}
	applyFlags(cmd, cfg)

	clients, err := deps.Clients(ctx, cfg.Region)
	if err != nil {
		return nil, app.Clients{}, nil, err
	}
	if err := app.Prepare(ctx, cfg, clients); err != nil {
		return nil, app.Clients{}, nil, err
	}
	logger, err := deps.Logger(cfg)
	if err != nil {
		return nil, app.Clients{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, clients, logger, nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("table") {
		cfg.TableName = cmd.String("table")
	}
	if cmd.IsSet("region") {
		cfg.Region = cmd.String("region")
	}
	if cmd.IsSet("redis-host") {
		cfg.Cache.Host = cmd.String("redis-host")
	}
	if cmd.IsSet("redis-port") {
		cfg.Cache.Port = cmd.Int("redis-port")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("records") {
		cfg.Load.TotalRecords = cmd.Int("records")
	}
	if cmd.IsSet("batch-size") {
		cfg.Load.BatchSize = cmd.Int("batch-size")
	}
	if cmd.IsSet("seed") {
		cfg.Load.Seed = cmd.Uint64("seed")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
