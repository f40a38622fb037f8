package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Message is what services hand to a Publisher. Topic is per message so one
// writer serves every lifecycle topic.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log zerolog.Logger) *Producer {
	log = log.With().Str("component", "kafka-producer").Logger()
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			Async:                  true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Int("messages", len(msgs)).Msg("kafka write failed")
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
}

func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error().Err(err).Str("topic", m.Topic).Msg("enqueue kafka message")
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Error().Err(err).Msg("close kafka writer")
		}
	}()
}

// Publish queues m. Trace context from ctx travels in the message headers.
// Messages published after Close are dropped.
func (p *Producer) Publish(ctx context.Context, m Message) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range m.Headers {
		carrier[k] = v
	}

	msg := kafka.Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Value,
		Time:    time.Now(),
		Headers: toHeaders(carrier),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn().Str("topic", m.Topic).Msg("publish after close dropped")
		return
	}
	select {
	case p.inbox <- msg:
	case <-ctx.Done():
		p.log.Warn().Str("topic", m.Topic).Msg("publish abandoned: context done")
	}
}

// Close stops accepting messages; the writer flushes what is queued.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the queue is drained and the writer closed.
func (p *Producer) WaitClosed() { <-p.closeCh }

// Noop stands in when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Message) {}
