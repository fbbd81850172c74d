// Package queue carries asynchronous flood runs from the API to the flood
// worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"floodfactor/internal/config"
	"floodfactor/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RunProducer implements types.RunPublisher on a single SQS queue.
type RunProducer struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

var _ types.RunPublisher = (*RunProducer)(nil)

// NewRunProducer reads the queue URL from the AWSConfig.
func NewRunProducer(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *RunProducer {
	return &RunProducer{
		client:   client,
		queueURL: awsCfg.RunQueueURL,
		logger:   logger,
	}
}

// Publish serializes msg and sends it. Failures carry ErrCodeUpstreamQueue.
func (p *RunProducer) Publish(ctx context.Context, msg types.RunMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RunMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"run_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.RunID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to enqueue run %s", msg.RunID), err)
	}

	p.logger.InfoContext(ctx, "run message sent",
		"queue_url", p.queueURL,
		"run_id", msg.RunID,
		"trace_id", msg.TraceID,
	)
	return nil
}

// DecodeRunMessage parses an SQS body produced by Publish.
func DecodeRunMessage(body string) (types.RunMessage, error) {
	var msg types.RunMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return types.RunMessage{}, fmt.Errorf("queue: malformed RunMessage: %w", err)
	}
	if msg.RunID == "" {
		return types.RunMessage{}, fmt.Errorf("queue: RunMessage has no run_id")
	}
	return msg, nil
}
