// Package events publishes computed bills to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/config"
	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/metrics"
)

var (
	// ErrQueueFull is returned when the producer cannot accept more messages.
	ErrQueueFull = errors.New("events: producer queue full")
	// ErrClosed is returned by PublishBill after Close.
	ErrClosed = errors.New("events: publisher closed")
)

// BillEvent is the message emitted for every persisted bill.
type BillEvent struct {
	ID        string              `json:"id"`
	Source    string              `json:"source,omitempty"`
	TariffKey string              `json:"tariff_key,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Summary   billing.BillSummary `json:"summary"`
}

type Publisher interface {
	PublishBill(ctx context.Context, ev BillEvent) error
	Close() error
}

// Nop discards events. It is used when Kafka is disabled.
type Nop struct{}

func (Nop) PublishBill(context.Context, BillEvent) error { return nil }
func (Nop) Close() error                                 { return nil }

// New returns a Kafka publisher when enabled and Nop otherwise.
func New(cfg config.KafkaConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewKafkaPublisher(cfg)
}

func parseRequiredAcks(v string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(v) {
	case "none", "no_response", "0":
		return sarama.NoResponse, nil
	case "leader", "local", "wait_for_local", "1":
		return sarama.WaitForLocal, nil
	case "all", "wait_for_all", "-1":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForAll, fmt.Errorf("invalid kafka required_acks: %s", v)
	}
}

func parseCompression(v string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(v) {
	case "", "snappy":
		return sarama.CompressionSnappy, nil
	case "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("invalid kafka compression: %s", v)
	}
}

// SaramaConfig translates the kafka section into a producer configuration.
func SaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	sc.Producer.RequiredAcks = acks
	sc.Producer.Compression = codec
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Flush.Frequency = 500 * time.Millisecond
	return sc, nil
}

type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	log      *zap.Logger
	wg       sync.WaitGroup

	// mu guards closed; PublishBill holds it shared while sending so Close
	// cannot close the input channel under it.
	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	sc, err := SaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg.Topic), nil
}

func newKafkaPublisher(producer sarama.AsyncProducer, topic string) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      logging.Named("events"),
	}
	p.wg.Add(1)
	go p.handleNotifications()
	return p
}

// PublishBill queues ev keyed by bill ID, so every update of one bill lands
// on the same partition.
func (p *KafkaPublisher) PublishBill(ctx context.Context, ev BillEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode bill event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.ID),
		Value: sarama.ByteEncoder(value),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		metrics.EventsPublishedTotal.WithLabelValues("dropped").Inc()
		p.log.Warn("producer input full, dropping bill event", zap.String("bill_id", ev.ID))
		return ErrQueueFull
	}
}

func (p *KafkaPublisher) handleNotifications() {
	defer p.wg.Done()
	successes, errs := p.producer.Successes(), p.producer.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			metrics.EventsPublishedTotal.WithLabelValues("success").Inc()
			p.log.Debug("bill event delivered",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
			p.log.Error("bill event delivery failed", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
		}
	}
}

// Close flushes buffered messages and waits for their outcome. Later calls
// to PublishBill return ErrClosed.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.producer.Close()
	p.wg.Wait()
	return err
}
