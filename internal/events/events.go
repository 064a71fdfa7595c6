// Package events publishes a message after every finished import so
// downstream consumers (price alerts, search indexing) can react.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ImportFinished describes the outcome of one snapshot import.
type ImportFinished struct {
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	DomainID     string    `json:"domain_id,omitempty"`
	Restaurant   string    `json:"restaurant"`
	Domain       string    `json:"domain"`
	ScrapedAt    time.Time `json:"scraped_at"`
	Products     int       `json:"products"`
	NewPrices    int       `json:"new_prices"`
	Warnings     int       `json:"warnings"`
	Error        string    `json:"error,omitempty"`
}

// Publisher delivers ImportFinished events.
type Publisher interface {
	Publish(ctx context.Context, ev ImportFinished) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ImportFinished) error { return nil }
func (Nop) Close() error                                  { return nil }

// Kafka publishes events as JSON, keyed by restaurant so one restaurant's
// events stay ordered within a partition.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaConfig returns the producer settings used by NewKafka.
func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return config
}

// NewKafka dials brokers and returns a Kafka publisher.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("events: start kafka producer: %w", err)
	}
	return NewKafkaWithProducer(producer, topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

// Publish sends ev synchronously.
func (k *Kafka) Publish(ctx context.Context, ev ImportFinished) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	key := ev.RestaurantID
	if key == "" {
		key = ev.SessionID
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("events: send to %s: %w", k.topic, err)
	}
	return nil
}

// Close closes the producer.
func (k *Kafka) Close() error { return k.producer.Close() }
