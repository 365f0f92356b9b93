package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	envConfig "github.com/BarkinBalci/behavior-telemetry/internal/config"
	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

// maxBatchEntries is the SQS limit for SendMessageBatch
const maxBatchEntries = 10

// BatchSender is the subset of the SQS API the sink needs
type BatchSender interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Client delivers event batches to an SQS queue
type Client struct {
	api      BatchSender
	queueURL string
	log      *zap.Logger
}

// NewClient creates a new SQS sink
func NewClient(ctx context.Context, SQSConfig envConfig.SQS, log *zap.Logger) (*Client, error) {
	if SQSConfig.QueueURL == "" {
		return nil, errors.New("SQS_QUEUE_URL is required for the sqs sink")
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(SQSConfig.Region),
	}

	var clientOpts []func(*sqs.Options)

	// Configure for local development with ElasticMQ
	if SQSConfig.Endpoint != "" {
		log.Info("Configuring SQS for local development",
			zap.String("endpoint", SQSConfig.Endpoint))
		configOpts = append(configOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))

		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(SQSConfig.Endpoint)
		})
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("SQS sink created",
		zap.String("region", SQSConfig.Region),
		zap.String("queue_url", SQSConfig.QueueURL))

	return NewWithAPI(sqs.NewFromConfig(cfg, clientOpts...), SQSConfig.QueueURL, log), nil
}

// NewWithAPI creates a sink over an existing SQS API implementation
func NewWithAPI(api BatchSender, queueURL string, log *zap.Logger) *Client {
	return &Client{api: api, queueURL: queueURL, log: log}
}

func (c *Client) Name() string { return "sqs" }

func (c *Client) Close() error { return nil }

// Deliver publishes events as JSON records, ten per SendMessageBatch call
func (c *Client) Deliver(ctx context.Context, events []domain.Event) error {
	for start := 0; start < len(events); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(events))
		if err := c.sendChunk(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, events []domain.Event) error {
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(events))
	for i, event := range events {
		body, err := domain.MarshalEvent(event)
		if err != nil {
			c.log.Error("Failed to marshal event",
				zap.String("event_name", event.Name),
				zap.Error(err))
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(strconv.Itoa(i)),
			MessageBody: aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"EventName": {
					DataType:    aws.String("String"),
					StringValue: aws.String(event.Name),
				},
			},
		})
	}

	out, err := c.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(c.queueURL),
		Entries:  entries,
	})
	if err != nil {
		c.log.Error("Failed to send message batch to SQS",
			zap.Int("event_count", len(events)),
			zap.Error(err))
		return fmt.Errorf("failed to send message batch to SQS: %w", err)
	}

	if len(out.Failed) > 0 {
		first := out.Failed[0]
		c.log.Warn("SQS rejected part of the batch",
			zap.Int("failed", len(out.Failed)),
			zap.Int("sent", len(out.Successful)),
			zap.String("code", aws.ToString(first.Code)))
		return fmt.Errorf("SQS rejected %d of %d messages: %s", len(out.Failed), len(events), aws.ToString(first.Message))
	}

	c.log.Debug("Event batch published to SQS", zap.Int("event_count", len(events)))
	return nil
}
