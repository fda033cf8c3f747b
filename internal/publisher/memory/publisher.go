// Package memory contains an in-memory publisher for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher records published payloads per topic for later inspection.
type Publisher struct {
	mu      sync.RWMutex
	byTopic map[string][]any
	seq     int
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{byTopic: make(map[string][]any)}
}

// Publish records the payload under its topic and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byTopic[topic] = append(p.byTopic[topic], payload)
	p.seq++
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Payloads returns everything published to topic, in publish order.
func (p *Publisher) Payloads(topic string) []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.byTopic[topic]))
	copy(out, p.byTopic[topic])
	return out
}
