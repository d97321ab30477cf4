// Package memory implements an in-process event publisher for tests
// and for running without Pub/Sub.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher records published payloads as JSON.
type Publisher struct {
	mu       sync.Mutex
	messages [][]byte
	seq      int
}

// New creates an empty publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the message log.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, data)
	p.seq++
	return fmt.Sprintf("mem-%d", p.seq), nil
}

// Messages returns copies of everything published so far.
func (p *Publisher) Messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages))
	for i, m := range p.messages {
		out[i] = append([]byte(nil), m...)
	}
	return out
}
