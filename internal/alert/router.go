// Package alert routes run verdicts to notification channels. Routing
// rules map a verdict status to the channels that should hear about it,
// filtered by dataset criticality so a broken scratch table never pages
// the on-call. Delivery is best-effort: a dead webhook or broker is
// logged and the run's verdict stands.
package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/datawarden-io/datawarden/internal/config"
	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Channel sink types accepted in the routing document.
const (
	SinkTypeLog     = "log"
	SinkTypeWebhook = "webhook"
	SinkTypeKafka   = "kafka"
)

// defaultRouteKey matches any status without an explicit routing rule.
const defaultRouteKey = "DEFAULT"

// DefaultKafkaTopic receives alerts when a kafka channel omits its topic
// and DATAWARDEN_KAFKA_TOPIC is unset.
const DefaultKafkaTopic = "datawarden.alerts"

// Rate-limit defaults for alert dispatch. Token-bucket, shared across
// all channels, so an alert storm degrades to dropped notifications
// instead of a thundering herd on the sinks. DATAWARDEN_ALERT_RPS and
// DATAWARDEN_ALERT_BURST override them.
const (
	defaultAlertRPS   = 5
	defaultAlertBurst = 10
)

type (
	// Alert is the notification payload handed to every sink.
	Alert struct {
		// Status is the verdict that triggered the alert.
		Status verdict.Status `json:"status"`

		// TableName identifies the dataset.
		TableName string `json:"table_name"`

		// File is the data file the run evaluated.
		File string `json:"file"`

		// Criticality is the dataset's resolved blast radius.
		Criticality verdict.Criticality `json:"criticality"`

		// Owner is the accountable team from the catalog, if known.
		Owner string `json:"owner,omitempty"`

		// Reason is the leading violation message, for one-line displays.
		Reason string `json:"reason"`

		// CriticalErrors and Warnings carry the full violation lists.
		CriticalErrors []string `json:"critical_errors,omitempty"`
		Warnings       []string `json:"warnings,omitempty"`

		// Timestamp is when the run started.
		Timestamp time.Time `json:"timestamp"`
	}

	// Rule selects channels for one verdict status.
	Rule struct {
		// RequiredCriticality suppresses the alert unless the dataset's
		// criticality is listed. Empty means alert for any criticality.
		RequiredCriticality []string `yaml:"required_criticality"`

		// Channels names the sinks to dispatch to, in order.
		Channels []string `yaml:"channels"`
	}

	// Channel configures one named sink endpoint.
	Channel struct {
		// Type is one of log, webhook, kafka.
		Type string `yaml:"type"`

		// URL is the webhook endpoint. Webhook channels only.
		URL string `yaml:"url"`

		// Brokers and Topic address the Kafka cluster. Kafka channels only.
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	}

	// routingDocument is the wire shape of the alerts file.
	routingDocument struct {
		Routing  map[string]Rule    `yaml:"routing"`
		Channels map[string]Channel `yaml:"channels"`
	}

	// Router dispatches alerts per the routing document. Immutable after
	// Load; safe for concurrent use from parallel runs.
	Router struct {
		routing    map[string]Rule
		sinks      map[string]Sink
		limiter    *rate.Limiter
		httpClient *http.Client
		logger     *slog.Logger
	}

	// Option configures a Router.
	Option func(*Router)
)

// WithLogger sets the logger used for routing decisions and delivery
// failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithRateLimit overrides the dispatch rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Router) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSink registers a sink under a channel name, taking precedence over
// any channel of the same name in the routing document.
func WithSink(name string, sink Sink) Option {
	return func(r *Router) {
		r.sinks[name] = sink
	}
}

// WithHTTPClient sets the client used by webhook sinks built from the
// routing document.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Router) {
		r.httpClient = client
	}
}

// Load reads the routing document from a YAML file.
//
// Behavior:
//   - Returns a disabled router (not error) if the file doesn't exist -
//     alerting is optional and absence means nobody gets paged
//   - Returns a disabled router + logs warning if the YAML is invalid
//     (graceful degradation)
//   - Returns a configured router on success
func Load(path string, opts ...Option) (*Router, error) {
	router := &Router{
		routing: make(map[string]Rule),
		sinks:   make(map[string]Sink),
		limiter: rate.NewLimiter(
			rate.Limit(config.GetEnvFloat("DATAWARDEN_ALERT_RPS", defaultAlertRPS)),
			config.GetEnvInt("DATAWARDEN_ALERT_BURST", defaultAlertBurst)),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(router)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			router.logger.Debug("Alert routing file not found, alerting disabled",
				slog.String("path", path))

			return router, nil
		}

		router.logger.Warn("Failed to read alert routing file, alerting disabled",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return router, nil
	}

	var doc routingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		router.logger.Warn("Failed to parse alert routing file, alerting disabled",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return router, nil
	}

	for status, rule := range doc.Routing {
		router.routing[strings.ToUpper(status)] = rule
	}

	for name, channel := range doc.Channels {
		if _, ok := router.sinks[name]; ok {
			// Injected sinks win over configured ones.
			continue
		}

		sink := router.buildSink(name, channel)
		if sink != nil {
			router.sinks[name] = sink
		}
	}

	return router, nil
}

// RuleCount returns the number of routing rules loaded.
func (r *Router) RuleCount() int {
	if r == nil {
		return 0
	}

	return len(r.routing)
}

// Route dispatches the report to every channel its status routes to.
// PASS, UNCHANGED, and SKIPPED verdicts never alert. Delivery failures
// are logged; Route never fails the run that called it.
func (r *Router) Route(ctx context.Context, report *verdict.Report, criticality verdict.Criticality, owner string) {
	if r == nil || report == nil || len(r.routing) == 0 {
		return
	}

	switch report.Status {
	case verdict.StatusPass, verdict.StatusUnchanged, verdict.StatusSkipped:
		return
	}

	rule, ok := r.routing[string(report.Status)]
	if !ok {
		rule, ok = r.routing[defaultRouteKey]
		if !ok {
			return
		}
	}

	if suppressed(rule.RequiredCriticality, criticality) {
		r.logger.Info("Alert suppressed, dataset below required criticality",
			slog.String("table_name", report.TableName),
			slog.String("status", string(report.Status)),
			slog.String("criticality", criticality.String()),
			slog.Any("required", rule.RequiredCriticality))

		return
	}

	alert := &Alert{
		Status:         report.Status,
		TableName:      report.TableName,
		File:           report.File,
		Criticality:    criticality,
		Owner:          owner,
		Reason:         reasonFor(report),
		CriticalErrors: report.CriticalErrors,
		Warnings:       report.Warnings,
		Timestamp:      report.Timestamp,
	}

	for _, name := range rule.Channels {
		sink, ok := r.sinks[name]
		if !ok {
			r.logger.Warn("Alert channel not configured",
				slog.String("channel", name))

			continue
		}

		if !r.limiter.Allow() {
			r.logger.Warn("Alert rate limit exceeded, dropping alert",
				slog.String("channel", name),
				slog.String("table_name", report.TableName))

			continue
		}

		if err := sink.Deliver(ctx, alert); err != nil {
			r.logger.Warn("Alert delivery failed",
				slog.String("channel", name),
				slog.String("table_name", report.TableName),
				slog.String("error", err.Error()))

			continue
		}

		r.logger.Debug("Alert dispatched",
			slog.String("channel", name),
			slog.String("table_name", report.TableName))
	}
}

// Close shuts down sinks that hold connections, e.g. Kafka writers.
func (r *Router) Close() error {
	if r == nil {
		return nil
	}

	var errs []error

	for _, sink := range r.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// buildSink constructs the sink for one channel entry, or nil when the
// entry is unusable. Unusable channels are logged and skipped so one
// typo does not disable the whole routing document.
func (r *Router) buildSink(name string, channel Channel) Sink {
	switch channel.Type {
	case SinkTypeLog:
		return NewLogSink(r.logger)

	case SinkTypeWebhook:
		if channel.URL == "" {
			r.logger.Warn("Webhook channel missing url, skipping",
				slog.String("channel", name))

			return nil
		}

		return NewWebhookSink(channel.URL, r.httpClient)

	case SinkTypeKafka:
		brokers := channel.Brokers
		if len(brokers) == 0 {
			brokers = config.ParseCommaSeparatedList(config.GetEnvStr("DATAWARDEN_KAFKA_BROKERS", ""))
		}

		if len(brokers) == 0 {
			r.logger.Warn("Kafka channel missing brokers, skipping",
				slog.String("channel", name))

			return nil
		}

		topic := channel.Topic
		if topic == "" {
			topic = config.GetEnvStr("DATAWARDEN_KAFKA_TOPIC", DefaultKafkaTopic)
		}

		return NewKafkaSink(brokers, topic)

	default:
		r.logger.Warn("Unknown alert channel type, skipping",
			slog.String("channel", name),
			slog.String("type", channel.Type))

		return nil
	}
}

// suppressed reports whether the rule's criticality filter excludes the
// dataset. An empty filter admits everything.
func suppressed(required []string, criticality verdict.Criticality) bool {
	if len(required) == 0 {
		return false
	}

	for _, want := range required {
		if strings.EqualFold(want, criticality.String()) {
			return false
		}
	}

	return true
}

// reasonFor picks the leading violation message for one-line displays.
func reasonFor(report *verdict.Report) string {
	if len(report.CriticalErrors) > 0 {
		return report.CriticalErrors[0]
	}

	if len(report.Warnings) > 0 {
		return report.Warnings[0]
	}

	return string(report.Status)
}
