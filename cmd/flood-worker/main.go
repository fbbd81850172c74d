// Package main is the entrypoint for the Flood Worker Lambda function.
//
// The Flood Worker consumes RunMessages from the flood run SQS queue and
// executes each queued run through the same pipeline the API uses for
// synchronous requests.
//
// Cold Start (main):
//  1. Resolve _SSM_PARAM secrets and load configuration.
//  2. Initialize the structured logger.
//  3. Wire the flood service (run repository, artifact store, pipeline,
//     metrics). The worker never re-queues, so the producer stays off.
//  4. Register the handler and call lambda.Start.
//
// Per message:
//  1. Decode the RunMessage. Malformed bodies are ACKed; a retry cannot fix them.
//  2. Execute the run. A failure recorded on the run is final and ACKed.
//  3. Anything else (database or store unavailable) is reported in
//     batchItemFailures so SQS redelivers only that message.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"floodfactor/internal/app"
	"floodfactor/internal/config"
	"floodfactor/internal/queue"
	"floodfactor/internal/types"
)

// RunExecutor executes a recorded run. *pipeline.Service implements it.
type RunExecutor interface {
	Execute(ctx context.Context, runID string, req types.FloodRequest) (*types.FloodRun, error)
}

// Handler holds the dependencies for the flood worker Lambda handler.
type Handler struct {
	executor RunExecutor
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(executor RunExecutor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{executor: executor, logger: logger, now: time.Now}
}

// Handle processes an SQS event. Messages are executed one at a time;
// failures that SQS should retry are returned in BatchItemFailures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process SQS message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.DecodeRunMessage(record.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed run message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	logger := h.logger.With(
		"run_id", msg.RunID,
		"trace_id", msg.TraceID,
		"receive_count", record.Attributes["ApproximateReceiveCount"],
	)
	ctx = types.WithRunID(ctx, msg.RunID)
	if msg.TraceID != "" {
		ctx = types.WithRequestID(ctx, msg.TraceID)
	}
	ctx = types.WithLogger(ctx, logger)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			logger.InfoContext(ctx, "processing run message", "queue_lag_ms", h.now().Sub(sentAt).Milliseconds())
		}
	}

	run, err := h.executor.Execute(ctx, msg.RunID, msg.Request)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "run message handled", "status", run.Status)
		return nil
	case run != nil && run.Status.IsTerminal():
		// The failure is on the run record; redelivery would only repeat it.
		logger.WarnContext(ctx, "run finished with failure",
			"code", run.ErrorCode,
			"message", run.ErrorMessage,
		)
		return nil
	case types.CodeOf(err) == types.ErrCodeNotFoundRun:
		logger.ErrorContext(ctx, "run record missing; dropping message")
		return nil
	default:
		return fmt.Errorf("executing run %s: %w", msg.RunID, err)
	}
}

// parseMillisTimestamp parses SQS's SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return fmt.Errorf("loading configuration (%s): %w", cfgErr.Type, err)
		}
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Flood Worker Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	a, err := app.Build(context.Background(), cfg, logger, app.Options{DisableQueue: true})
	if err != nil {
		return fmt.Errorf("wiring flood service: %w", err)
	}

	handler := NewHandler(a.Service, logger)
	logger.Info("Flood Worker Lambda initialized",
		"algorithm", cfg.Simulation.Algorithm,
		"run_timeout", cfg.Pipeline.RunTimeout.String(),
	)

	lambda.Start(handler.Handle)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
