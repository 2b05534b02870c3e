package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/twmb/franz-go/pkg/kgo"
)

// AuditEvent describes one business event after it happened
type AuditEvent struct {
	Action           string            `json:"action"`
	ScopeKey         string            `json:"scope_key"`
	DocumentTypeCode string            `json:"document_type_code"`
	Year             int               `json:"year"`
	Number           int64             `json:"number"`
	PreviousNumber   *int64            `json:"previous_number,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
	Actor            Actor             `json:"actor"`
	Metadata         *ClientMetadata   `json:"metadata,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

// AuditSink records audit events. Failures never undo the event being recorded.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

type nopAuditSink struct{}

// NewNopAuditSink returns a sink that drops every event
func NewNopAuditSink() AuditSink { return nopAuditSink{} }

func (nopAuditSink) Record(context.Context, AuditEvent) error { return nil }

// RepositoryAuditSink writes events to the audit_log table
type RepositoryAuditSink struct {
	repo repository.AuditLogRepository
}

func NewRepositoryAuditSink(repo repository.AuditLogRepository) *RepositoryAuditSink {
	return &RepositoryAuditSink{repo: repo}
}

func (s *RepositoryAuditSink) Record(ctx context.Context, event AuditEvent) error {
	entry, err := toAuditLog(event)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}
	return nil
}

func toAuditLog(event AuditEvent) (*models.AuditLog, error) {
	var metadata *string
	if len(event.Extra) > 0 {
		raw, err := json.Marshal(event.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = utils.ToPtr(string(raw))
	}

	description := fmt.Sprintf("%s %s", event.Action, models.FormatDocumentNumber(event.DocumentTypeCode, event.Number, event.Year))
	if event.PreviousNumber != nil {
		description = fmt.Sprintf("%s (was %d)", description, *event.PreviousNumber)
	}

	entry := &models.AuditLog{
		Action:      event.Action,
		TargetType:  models.AuditTargetSequence,
		TargetID:    event.ScopeKey,
		Description: &description,
		Metadata:    metadata,
		Success:     utils.ToPtr(true),
		CreatedAt:   event.OccurredAt,
	}
	if event.Actor.ID != "" {
		entry.ActorID = utils.ToPtr(event.Actor.ID)
	}
	if event.Actor.Name != "" {
		entry.ActorName = utils.ToPtr(event.Actor.Name)
	}
	if event.Metadata != nil {
		entry.IPAddress = optional(event.Metadata.IPAddress)
		entry.UserAgent = optional(event.Metadata.UserAgent)
		entry.RequestID = optional(event.Metadata.RequestID)
	}
	return entry, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// recordProducer is the part of *kgo.Client the Kafka sink needs
type recordProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaAuditSink publishes events as JSON, keyed by scope so one scope stays ordered.
// Publishing is asynchronous; delivery failures are logged and counted, never returned.
type KafkaAuditSink struct {
	producer recordProducer
	client   *kgo.Client
	topic    string
	logger   hclog.Logger
}

// NewKafkaAuditSink connects a producer to the given brokers
func NewKafkaAuditSink(brokers []string, topic string, logger hclog.Logger) (*KafkaAuditSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordDeliveryTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	sink := newKafkaAuditSinkWithProducer(client, topic, logger)
	sink.client = client
	return sink, nil
}

func newKafkaAuditSinkWithProducer(producer recordProducer, topic string, logger hclog.Logger) *KafkaAuditSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &KafkaAuditSink{producer: producer, topic: topic, logger: logger.Named("kafka-audit")}
}

// Record hands the event to the producer buffer and returns. Only encoding errors are reported.
func (s *KafkaAuditSink) Record(ctx context.Context, event AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ScopeKey),
		Value: payload,
	}
	// the request context ends with the response; delivery must outlive it
	s.producer.Produce(context.WithoutCancel(ctx), record, s.delivered)
	return nil
}

func (s *KafkaAuditSink) delivered(record *kgo.Record, err error) {
	if err == nil {
		return
	}
	auditPublishFailuresTotal.Inc()
	s.logger.Error("failed to publish audit event",
		"topic", record.Topic,
		"scope_key", string(record.Key),
		"error", err,
	)
}

// Close flushes buffered events and closes the underlying client
func (s *KafkaAuditSink) Close() {
	if s.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Flush(ctx); err != nil {
		s.logger.Warn("audit events left unflushed at shutdown", "error", err)
	}
	s.client.Close()
}

// MultiAuditSink fans an event out to several sinks and reports every failure
type MultiAuditSink struct {
	sinks []AuditSink
}

func NewMultiAuditSink(sinks ...AuditSink) *MultiAuditSink {
	return &MultiAuditSink{sinks: sinks}
}

func (s *MultiAuditSink) Record(ctx context.Context, event AuditEvent) error {
	var result *multierror.Error
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
