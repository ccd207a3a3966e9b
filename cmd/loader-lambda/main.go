package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/randyridgley/cdk-athena-federated/internal/app"
	"github.com/randyridgley/cdk-athena-federated/internal/awsclient"
	"github.com/randyridgley/cdk-athena-federated/internal/config"
	"github.com/randyridgley/cdk-athena-federated/internal/loader"
	"github.com/randyridgley/cdk-athena-federated/internal/logging"
)

const successMessage = "Records loaded successfully"

// Response is the invocation result. Body is a JSON-encoded string.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type handler struct {
	loadConfig func() (*config.Config, error)
	clients    app.Clients
	logger     *zap.Logger
	load       func(ctx context.Context, cfg *config.Config, clients app.Clients, logger *zap.Logger) (*loader.Summary, error)
}

func (h *handler) Handle(ctx context.Context, event json.RawMessage) (Response, error) {
	h.logger.Info("Received event", zap.ByteString("event", event))

	cfg, err := h.loadConfig()
	if err != nil {
		h.logger.Error("Failed to load configuration", zap.Error(err))
		return Response{}, err
	}
	if err := app.Prepare(ctx, cfg, h.clients); err != nil {
		h.logger.Error("Invalid configuration", zap.Error(err))
		return Response{}, err
	}

	summary, err := h.load(ctx, cfg, h.clients, h.logger)
	if err != nil {
		h.logger.Error("Load failed", zap.Error(err))
		return Response{}, err
	}
	h.logger.Info("Invocation finished",
		zap.String("run_id", summary.RunID),
		zap.Int("records", summary.Records),
		zap.Int("failed_batches", summary.Failed()),
	)

	body, _ := json.Marshal(successMessage)
	return Response{StatusCode: 200, Body: string(body)}, nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("unable to load configuration, %v", err)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("unable to build logger, %v", err)
	}
	defer logger.Sync()

	clients, err := awsclient.Load(ctx, cfg.Region)
	if err != nil {
		logger.Fatal("Unable to load SDK config", zap.Error(err))
	}

	h := &handler{
		loadConfig: func() (*config.Config, error) { return config.Load("") },
		clients:    app.FromAWS(clients),
		logger:     logger,
		load:       app.Load,
	}
	lambda.Start(h.Handle)
}
