package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivewatch/internal/types"
)

type mockSQSSender struct {
	mu        sync.Mutex
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

const queueURL = "https://sqs.us-east-1.amazonaws.com/123/alerts"

func TestSQSChannel_SendBody(t *testing.T) {
	sender := &mockSQSSender{}
	ch := NewPushChannel(sender, queueURL, nil)
	alert := types.CameraAlertEvent{
		CameraID: "cam-1", CameraType: types.CameraRedLight, Address: "5th Ave & E 42nd St",
		SessionID: "s1", Approach: "E", Tier: types.TierHigh, Score: 81,
	}

	require.NoError(t, ch.Send(context.Background(), alert))
	require.Len(t, sender.calls, 1)

	in := sender.calls[0]
	assert.Equal(t, queueURL, *in.QueueUrl)
	assert.Equal(t, "high", *in.MessageAttributes["tier"].StringValue)

	var msg AlertMessage
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &msg))
	assert.Equal(t, KindPush, msg.Kind)
	assert.Equal(t, "Red light camera ahead at 5th Ave & E 42nd St", msg.Text)
	assert.Equal(t, "cam-1", msg.Alert.CameraID)
	assert.Equal(t, "push", ch.Name())
}

func TestSQSChannel_AudioKind(t *testing.T) {
	sender := &mockSQSSender{}
	ch := NewAudioChannel(sender, queueURL, nil)
	require.NoError(t, ch.Send(context.Background(), types.CameraAlertEvent{CameraType: types.CameraSpeed}))

	var msg AlertMessage
	require.NoError(t, json.Unmarshal([]byte(*sender.calls[0].MessageBody), &msg))
	assert.Equal(t, KindAudioCue, msg.Kind)
	assert.Equal(t, "Speed camera ahead", msg.Text)
}

func TestSQSChannel_BreakerTrips(t *testing.T) {
	boom := errors.New("queue unavailable")
	sender := &mockSQSSender{returnErr: boom}
	ch := NewPushChannel(sender, queueURL, nil)

	for i := 0; i < 6; i++ {
		err := ch.Send(context.Background(), types.CameraAlertEvent{})
		assert.ErrorIs(t, err, boom)
	}
	err := ch.Send(context.Background(), types.CameraAlertEvent{})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Len(t, sender.calls, 6)
}

type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func dimension(dims []cwtypes.Dimension, name string) string {
	for _, d := range dims {
		if *d.Name == name {
			return *d.Value
		}
	}
	return ""
}

func TestCloudWatchMetrics(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchMetrics(cw, nil)

	m.RecordDelivery(context.Background(), types.DeliveryFallbackAudio, types.TierMedium)
	m.RecordLatency(context.Background(), types.DeliveryPrimary, 250*time.Millisecond)
	require.Len(t, cw.calls, 2)

	d := cw.calls[0].MetricData[0]
	assert.Equal(t, types.MetricNamespace, *cw.calls[0].Namespace)
	assert.Equal(t, types.MetricDeliveryAttempt, *d.MetricName)
	assert.Equal(t, cwtypes.StandardUnitCount, d.Unit)
	assert.Equal(t, "fallback_audio", dimension(d.Dimensions, types.DimMode))
	assert.Equal(t, "medium", dimension(d.Dimensions, types.DimTier))

	l := cw.calls[1].MetricData[0]
	assert.Equal(t, types.MetricDeliveryLatency, *l.MetricName)
	assert.Equal(t, 250.0, *l.Value)
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, l.Unit)
}

func TestCloudWatchMetrics_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	m := NewCloudWatchMetrics(cw, nil)
	assert.NotPanics(t, func() {
		m.RecordDelivery(context.Background(), types.DeliveryPrimary, types.TierHigh)
	})
	assert.Len(t, cw.calls, 1)
}
