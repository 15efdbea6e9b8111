package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// ErrProducerClosed is returned by Publish once Close has been called.
var ErrProducerClosed = errors.New("kafka: producer closed")

// Producer buffers messages in an inbox and writes them from one goroutine.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}

	// mu guards closed; Publish holds it for reading while it sends so the
	// inbox is never closed under a blocked sender.
	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Str("topic", topic).Int("messages", len(msgs)).Msg("kafka: async write failed")
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called. The loop drains whatever
// is still in the inbox before closing the writer.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				log.Error().Err(err).Str("topic", p.w.Topic).Msg("kafka: write failed")
			}
		}
		if err := p.w.Close(); err != nil {
			log.Error().Err(err).Str("topic", p.w.Topic).Msg("kafka: close writer")
		}
	}()
}

// Publish enqueues a message. It blocks while the inbox is full unless ctx is
// done first, in which case the message is dropped and ctx.Err returned.
// After Close it returns ErrProducerClosed.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages. Safe to call more than once and
// concurrently with Publish; it waits for in-flight Publish calls.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the inbox is flushed and the writer closed.
func (p *Producer) WaitClosed() { <-p.closeCh }
