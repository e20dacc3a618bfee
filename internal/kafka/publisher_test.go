package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlens/pkg/models"
)

type message struct {
	topic string
	key   []byte
	value []byte
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *recordingProducer) Send(ctx context.Context, topic string, key []byte, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message{topic: topic, key: key, value: value})
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestPublishScore(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer)
	pub.now = func() time.Time { return time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC) }

	score := models.TriangleScore{TenantID: "acme", Service: 80, Cost: 60, Capital: 70, Overall: 69.04}
	require.NoError(t, pub.PublishScore(context.Background(), score))

	require.Len(t, producer.messages, 1)
	msg := producer.messages[0]
	assert.Equal(t, TopicTriangleScores, msg.topic)
	assert.Equal(t, "acme", string(msg.key))

	var event Event
	require.NoError(t, json.Unmarshal(msg.value, &event))
	assert.Equal(t, EventScoreComputed, event.Type)
	assert.Equal(t, "acme", event.TenantID)
	assert.NotEmpty(t, event.ID)

	var payload models.TriangleScore
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, 69.04, payload.Overall)
}

func TestPublishAlertAndRunTopics(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer)
	ctx := context.Background()

	require.NoError(t, pub.PublishAlert(ctx, models.Alert{ID: "a1", TenantID: "acme"}))
	require.NoError(t, pub.PublishAgentRun(ctx, models.AgentRun{ID: "r1", TenantID: "globex"}))

	require.Len(t, producer.messages, 2)
	assert.Equal(t, TopicAlertsTriggered, producer.messages[0].topic)
	assert.Equal(t, TopicAgentRuns, producer.messages[1].topic)
	assert.Equal(t, "globex", string(producer.messages[1].key))
}

func TestPublishWrapsProducerError(t *testing.T) {
	sendErr := errors.New("broker down")
	pub := NewPublisher(&recordingProducer{err: sendErr})

	err := pub.PublishScore(context.Background(), models.TriangleScore{TenantID: "acme"})
	assert.ErrorIs(t, err, sendErr)
}

func TestNoopProducer(t *testing.T) {
	p := NewNoopProducer()
	assert.NoError(t, p.Send(context.Background(), TopicAgentRuns, nil, []byte("{}")))
	assert.ErrorIs(t, p.Send(context.Background(), "", nil, nil), ErrInvalidTopic)
	assert.NoError(t, p.Close())
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, time.Second)
	assert.ErrorIs(t, err, ErrInvalidBrokers)
}

func TestGetTopicConfig(t *testing.T) {
	cfg, err := GetTopicConfig(TopicAlertsTriggered)
	require.NoError(t, err)
	assert.Equal(t, TopicAlertsTriggered, cfg.Name)

	_, err = GetTopicConfig("raw.events")
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer)

	err := pub.publish(context.Background(), "raw.events", EventScoreComputed, "acme", struct{}{})
	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Empty(t, producer.messages)
}

func TestPublishAgentRunEventTypeFollowsStatus(t *testing.T) {
	producer := &recordingProducer{}
	pub := NewPublisher(producer)
	ctx := context.Background()

	require.NoError(t, pub.PublishAgentRun(ctx, models.AgentRun{ID: "r1", TenantID: "acme", Status: models.AgentRunRunning}))
	require.NoError(t, pub.PublishAgentRun(ctx, models.AgentRun{ID: "r1", TenantID: "acme", Status: models.AgentRunFailed}))

	types := make([]string, 0, 2)
	for _, msg := range producer.messages {
		var event Event
		require.NoError(t, json.Unmarshal(msg.value, &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{EventAgentRunStarted, EventAgentRunFinished}, types)
}
