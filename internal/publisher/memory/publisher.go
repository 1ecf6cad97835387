// Package memory is an in-process stand-in for the Pub/Sub run notifier.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// Message is one accepted publish, with the JSON body Pub/Sub would carry.
type Message struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// Publisher keeps every notice it is handed.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. Nil restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Publish encodes payload and stores it under a sequential message id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.failWith)
	}
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload, Data: data})
	return id, nil
}

// Messages returns every stored message in publish order.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// OnTopic returns the messages published to topic.
func (p *Publisher) OnTopic(topic string) []Message {
	return lo.Filter(p.Messages(), func(m Message, _ int) bool {
		return m.Topic == topic
	})
}
