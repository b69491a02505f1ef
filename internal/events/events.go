// Package events publishes game analytics events.
//
// Events are best effort: callers log publish failures and carry on, the
// game never blocks on the broker being reachable. Without KAFKA_BROKERS
// the Noop publisher is used.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Type names an analytics event.
type Type string

const (
	TypeGuess Type = "guess"
	TypeWin   Type = "win"
	TypeLoss  Type = "loss"
	TypeReset Type = "reset"
)

// Event is one analytics record. Data holds one of the *Data structs below.
type Event struct {
	Type      Type      `json:"type"`
	GameUID   string    `json:"gameUid"`
	UID       string    `json:"uid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// GuessData accompanies TypeGuess.
type GuessData struct {
	Guess    string   `json:"guess"`
	Row      int      `json:"row"`
	Statuses []string `json:"statuses"`
}

// FinishData accompanies TypeWin and TypeLoss.
type FinishData struct {
	Name            string  `json:"name"`
	Tries           int     `json:"tries"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// ResetData accompanies TypeReset. The secret word is never published.
type ResetData struct {
	PreviousGameUID string `json:"previousGameUid,omitempty"`
	WordLength      int    `json:"wordLength"`
	MaxGuesses      int    `json:"maxGuesses"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error { return nil }

// Kafka publishes events as JSON keyed by game UID.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects a synchronous producer to brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	config := sarama.NewConfig()
	config.ClientID = "wordly"
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka producer connected")
	return NewKafkaWithProducer(producer, topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.GameUID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s event: %w", e.Type, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.producer.Close() }

// FromBrokers returns a Kafka publisher, or Noop when brokers is empty or
// the broker is unreachable at startup.
func FromBrokers(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	k, err := NewKafka(brokers, topic)
	if err != nil {
		log.Warn().Err(err).Msg("kafka not available, analytics disabled")
		return Noop{}
	}
	return k
}
