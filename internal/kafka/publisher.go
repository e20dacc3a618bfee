package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chainlens/pkg/models"
)

// Event types
const (
	EventScoreComputed    = "triangle.score_computed"
	EventAlertTriggered   = "alert.triggered"
	EventAgentRunStarted  = "agent.run_started"
	EventAgentRunFinished = "agent.run_finished"
)

// Event is the envelope written on every topic
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher marshals domain events keyed by tenant
type Publisher struct {
	producer Producer
	now      func() time.Time
}

// NewPublisher creates a publisher over a producer
func NewPublisher(producer Producer) *Publisher {
	if producer == nil {
		producer = NewNoopProducer()
	}
	return &Publisher{producer: producer, now: time.Now}
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, tenantID string, payload interface{}) error {
	if _, err := GetTopicConfig(topic); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	value, err := json.Marshal(Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: p.now().UTC(),
		Payload:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.producer.Send(ctx, topic, []byte(tenantID), value); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// PublishScore announces a computed triangle score
func (p *Publisher) PublishScore(ctx context.Context, score models.TriangleScore) error {
	return p.publish(ctx, TopicTriangleScores, EventScoreComputed, score.TenantID, score)
}

// PublishAlert announces a triggered alert
func (p *Publisher) PublishAlert(ctx context.Context, alert models.Alert) error {
	return p.publish(ctx, TopicAlertsTriggered, EventAlertTriggered, alert.TenantID, alert)
}

// PublishAgentRun announces an agent run status change
func (p *Publisher) PublishAgentRun(ctx context.Context, run models.AgentRun) error {
	eventType := EventAgentRunStarted
	if run.Status.IsTerminal() {
		eventType = EventAgentRunFinished
	}
	return p.publish(ctx, TopicAgentRuns, eventType, run.TenantID, run)
}

// Close closes the underlying producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
