package kafka

import "errors"

var (
	// ErrProducerClosed is returned by Send after Close
	ErrProducerClosed = errors.New("kafka producer closed")

	// ErrInvalidBrokers is returned when a producer or topic manager has no brokers
	ErrInvalidBrokers = errors.New("no kafka brokers configured")

	// ErrInvalidTopic is returned when an event has no destination topic
	ErrInvalidTopic = errors.New("kafka topic is empty")

	// ErrUnknownTopic is returned for topics chainlens does not publish to
	ErrUnknownTopic = errors.New("unknown chainlens topic")
)
