package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker/v2"

	"drivewatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message kinds understood by the platform consumer.
const (
	KindPush     = "push"
	KindAudioCue = "audio_cue"
)

// AlertMessage is the SQS body handed to the platform.
type AlertMessage struct {
	Kind  string                 `json:"kind"`
	Text  string                 `json:"text"`
	Alert types.CameraAlertEvent `json:"alert"`
}

// ErrBreakerOpen is returned while the channel's circuit breaker rejects calls.
var ErrBreakerOpen = errors.New("delivery channel circuit open")

// SQSChannel publishes alerts to one SQS queue behind a circuit breaker, so
// a failing queue trips to the fallback without paying the timeout on
// every alert.
type SQSChannel struct {
	name     string
	kind     string
	client   SQSSender
	queueURL string
	breaker  *gobreaker.CircuitBreaker[*sqs.SendMessageOutput]
	logger   types.Logger
}

var _ Channel = (*SQSChannel)(nil)

func newBreaker(name string) *gobreaker.CircuitBreaker[*sqs.SendMessageOutput] {
	return gobreaker.NewCircuitBreaker[*sqs.SendMessageOutput](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// NewPushChannel returns the primary visual push channel.
func NewPushChannel(client SQSSender, queueURL string, logger types.Logger) *SQSChannel {
	return newSQSChannel("push", KindPush, client, queueURL, logger)
}

// NewAudioChannel returns the fallback audio cue channel.
func NewAudioChannel(client SQSSender, queueURL string, logger types.Logger) *SQSChannel {
	return newSQSChannel("audio", KindAudioCue, client, queueURL, logger)
}

func newSQSChannel(name, kind string, client SQSSender, queueURL string, logger types.Logger) *SQSChannel {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SQSChannel{
		name:     name,
		kind:     kind,
		client:   client,
		queueURL: queueURL,
		breaker:  newBreaker("delivery-" + name),
		logger:   logger,
	}
}

// Name implements Channel.
func (c *SQSChannel) Name() string { return c.name }

// Send implements Channel.
func (c *SQSChannel) Send(ctx context.Context, alert types.CameraAlertEvent) error {
	body, err := json.Marshal(AlertMessage{Kind: c.kind, Text: AlertText(alert), Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"tier": {DataType: aws.String("String"), StringValue: aws.String(string(alert.Tier))},
		},
	}

	_, err = c.breaker.Execute(func() (*sqs.SendMessageOutput, error) {
		return c.client.SendMessage(ctx, input)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	if err != nil {
		return fmt.Errorf("failed to send to %s: %w", c.queueURL, err)
	}
	return nil
}

// AlertText is the short phrase shown or spoken to the driver.
func AlertText(a types.CameraAlertEvent) string {
	kind := "Speed camera"
	if a.CameraType == types.CameraRedLight {
		kind = "Red light camera"
	}
	if a.Address == "" {
		return kind + " ahead"
	}
	return fmt.Sprintf("%s ahead at %s", kind, a.Address)
}
