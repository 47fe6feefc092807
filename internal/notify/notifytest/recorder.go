// Package notifytest provides an in-memory notify.Sink for tests.
package notifytest

import (
	"context"
	"encoding/json"
	"sync"
)

// Recorder keeps every published message.  Set Err to make publishing
// fail.
type Recorder struct {
	mu       sync.Mutex
	messages map[string][][]byte
	Err      error
}

func (r *Recorder) Publish(_ context.Context, queue string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.messages == nil {
		r.messages = map[string][][]byte{}
	}
	r.messages[queue] = append(r.messages[queue], body)
	return nil
}

// Count returns how many messages went to queue.
func (r *Recorder) Count(queue string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[queue])
}

// Decode unmarshals the i-th message sent to queue into v.
func (r *Recorder) Decode(queue string, i int, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Unmarshal(r.messages[queue][i], v)
}
