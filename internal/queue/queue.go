package queue

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// TopicJobDispatch carries approved job IDs from the API to the worker.
const TopicJobDispatch = "job_dispatches"

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// InMemoryQueue is an in-process queue with retry, used when no broker
// is configured (single-binary deployments, tests).
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload []byte) error),
	}
}

// job wraps a payload with retry info
type job struct {
	payload    []byte
	retryCount int
	maxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{payload: payload, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(topic, handler, j)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload []byte) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.payload)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		log.Printf("⚠️ %s job failed (attempt %d/%d): %v", topic, j.retryCount, j.maxRetries, err)

		if j.retryCount > j.maxRetries {
			log.Printf("⚠️ %s job permanently failed after %d attempts", topic, j.maxRetries)
			return // no requeue
		}

		// Backoff before retry
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
