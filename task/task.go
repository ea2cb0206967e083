package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task is the queued request to process one pending transaction. The
// transaction record itself is loaded from the transaction store; the
// queue only carries its id.
type Task struct {
	TransactionID string `json:"transactionId"`
}

// Decode parses a queue message body into a Task.
func Decode(body []byte) (Task, error) {
	var t Task

	if err := json.Unmarshal(body, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}

	if strings.TrimSpace(t.TransactionID) == "" {
		return Task{}, fmt.Errorf("decode task: transactionId is empty")
	}

	return t, nil
}

// Encode serializes a Task for publishing.
func (t Task) Encode() ([]byte, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}

	return body, nil
}
