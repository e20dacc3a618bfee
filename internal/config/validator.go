package config

import (
	"fmt"
	"strings"

	"github.com/chainlens/internal/triangle"
)

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config error: %w", err)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database config error: dsn is required")
	}

	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %w", err)
	}

	if err := c.validateTriangle(); err != nil {
		return fmt.Errorf("triangle config error: %w", err)
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api config error: port must be between 1 and 65535")
	}

	if c.Alerts.PollInterval <= 0 {
		return fmt.Errorf("alerts config error: poll_interval must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	return nil
}

func (c *Config) validateKafka() error {
	for _, broker := range c.Kafka.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}
	return nil
}

func (c *Config) validateTriangle() error {
	t := c.Triangle
	if t.WindowDays <= 0 {
		return fmt.Errorf("window_days must be positive")
	}
	if !t.ZeroPolicy.Valid() {
		return fmt.Errorf("invalid zero_policy: %s (must be %s, %s, or %s)",
			t.ZeroPolicy, triangle.ZeroPolicyStrict, triangle.ZeroPolicyZero, triangle.ZeroPolicyFloor)
	}
	if t.Assumptions.OnTimeDeliveryRate < 0 || t.Assumptions.OnTimeDeliveryRate > 100 {
		return fmt.Errorf("on_time_delivery_rate must be between 0 and 100")
	}
	if t.Assumptions.DaysSalesOutstanding < 0 || t.Assumptions.DaysPayableOutstanding < 0 {
		return fmt.Errorf("days outstanding must not be negative")
	}
	if t.Assumptions.StockoutHorizonDays <= 0 {
		return fmt.Errorf("stockout_horizon_days must be positive")
	}
	return nil
}
