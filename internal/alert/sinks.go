package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

// defaultWebhookTimeout bounds a single webhook POST so a slow receiver
// cannot stall the run that raised the alert.
const defaultWebhookTimeout = 10 * time.Second

type (
	// Sink delivers one alert to one destination. Implementations must be
	// safe for concurrent use; the router may dispatch from parallel runs.
	Sink interface {
		Deliver(ctx context.Context, alert *Alert) error
	}

	// LogSink writes alerts to the structured log. It is the zero-setup
	// channel and the fallback when nothing else is configured.
	LogSink struct {
		logger *slog.Logger
	}

	// WebhookSink POSTs the alert as a JSON document to a fixed URL.
	WebhookSink struct {
		url    string
		client *http.Client
	}

	// KafkaSink publishes alerts to a Kafka topic, keyed by table name so
	// all alerts for one table land in the same partition.
	KafkaSink struct {
		writer *kafka.Writer
	}
)

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*WebhookSink)(nil)
	_ Sink = (*KafkaSink)(nil)
)

// NewLogSink creates a sink that emits alerts via the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogSink{logger: logger}
}

// Deliver logs the alert. FAIL verdicts log at error level, everything
// else at warn.
func (s *LogSink) Deliver(_ context.Context, alert *Alert) error {
	attrs := []any{
		slog.String("table_name", alert.TableName),
		slog.String("status", string(alert.Status)),
		slog.String("criticality", alert.Criticality.String()),
		slog.String("owner", alert.Owner),
		slog.String("reason", alert.Reason),
	}

	if alert.Status == verdict.StatusFail {
		s.logger.Error("Data quality alert", attrs...)
	} else {
		s.logger.Warn("Data quality alert", attrs...)
	}

	return nil
}

// NewWebhookSink creates a sink that POSTs alerts to url. A nil client
// gets a default with a bounded timeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}

	return &WebhookSink{url: url, client: client}
}

// Deliver POSTs the alert as JSON. Any non-2xx response is an error.
func (s *WebhookSink) Deliver(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting alert webhook: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// NewKafkaSink creates a sink publishing to topic on the given brokers.
// The writer dials lazily; construction never touches the network.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			WriteTimeout:           defaultWebhookTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Deliver publishes the alert keyed by table name.
func (s *KafkaSink) Deliver(ctx context.Context, alert *Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert payload: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.TableName),
		Value: value,
		Time:  alert.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("publishing alert to kafka: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying Kafka writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
