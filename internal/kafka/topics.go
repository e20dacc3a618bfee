package kafka

import (
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topic names
const (
	TopicTriangleScores  = "triangle.scores"
	TopicAlertsTriggered = "alerts.triggered"
	TopicAgentRuns       = "agent.runs"
)

// TopicConfig defines Kafka topic configuration
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
}

// Topics defines all Kafka topics the service publishes on
var Topics = map[string]TopicConfig{
	TopicTriangleScores: {
		Name:              TopicTriangleScores,
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
	},
	TopicAlertsTriggered: {
		Name:              TopicAlertsTriggered,
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
	},
	TopicAgentRuns: {
		Name:              TopicAgentRuns,
		Partitions:        4,
		ReplicationFactor: 3,
		RetentionMs:       604800000, // 7 days
		CleanupPolicy:     "delete",
	},
}

// TopicManager handles Kafka topic creation and management
type TopicManager struct {
	brokers []string
	logger  *zap.Logger
}

// NewTopicManager creates a new topic manager
func NewTopicManager(brokers []string, logger *zap.Logger) *TopicManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopicManager{
		brokers: brokers,
		logger:  logger,
	}
}

// CreateTopics creates all Kafka topics if they don't exist
func (tm *TopicManager) CreateTopics() error {
	if len(tm.brokers) == 0 {
		return ErrInvalidBrokers
	}

	conn, err := kafka.Dial("tcp", tm.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	for _, cfg := range Topics {
		err := controllerConn.CreateTopics(kafkaTopicConfig(cfg))
		if err != nil {
			// Topic might already exist
			tm.logger.Warn("topic creation failed", zap.String("topic", cfg.Name), zap.Error(err))
		} else {
			tm.logger.Info("created topic", zap.String("topic", cfg.Name))
		}
	}

	return nil
}

func kafkaTopicConfig(cfg TopicConfig) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ConfigEntries: []kafka.ConfigEntry{
			{
				ConfigName:  "retention.ms",
				ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10),
			},
			{
				ConfigName:  "cleanup.policy",
				ConfigValue: cfg.CleanupPolicy,
			},
		},
	}
}

// Ping dials the first broker and reads partition metadata
func (tm *TopicManager) Ping() error {
	if len(tm.brokers) == 0 {
		return ErrInvalidBrokers
	}
	conn, err := kafka.Dial("tcp", tm.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read brokers: %w", err)
	}
	return nil
}

// GetTopicConfig retrieves the configuration for a specific topic
func GetTopicConfig(topicName string) (TopicConfig, error) {
	cfg, exists := Topics[topicName]
	if !exists {
		return TopicConfig{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topicName)
	}
	return cfg, nil
}
