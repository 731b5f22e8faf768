// Package telemetry provides Sentry-based distributed tracing utilities.
package telemetry

import (
	"context"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/getsentry/sentry-go"
)

const (
	serviceName = "supportdesk"
)

// Config holds the Sentry settings. An empty DSN disables reporting.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function for
// shutdown. Init failures are logged and never fatal.
func Init(cfg Config, log *logger.Logger) (func(), error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.DSN == "" {
		return func() {}, nil
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler: sentry.TracesSampler(func(ctx sentry.SamplingContext) float64 {
			return sampleRate(ctx.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		log.Warn("sentry init failed, continuing without tracing", "error", err)
		return func() {}, nil
	}

	log.Info("sentry tracing initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// unsampledPaths are polled by load balancers and the Meta webhook verifier.
var unsampledPaths = []string{"GET /health", "GET /webhook"}

func sampleRate(span *sentry.Span, rate float64) float64 {
	for _, name := range unsampledPaths {
		if span.Name == name {
			return 0
		}
	}
	var root sentry.SpanID
	if span.ParentSpanID != root {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// SpanAttributes contains common attributes for service spans.
type SpanAttributes struct {
	Owner      string
	CampaignID string
	Source     string
	Operation  string
	Count      int
}

// Span wraps sentry.Span. A zero Span is a valid no-op.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError sets the span status from the error's domain code. Only failures
// on our side (storage, provider, internal) are captured as Sentry events;
// caller mistakes such as validation or not-found only mark the span.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	code := domain.CodeOf(err)
	s.inner.Status = spanStatus(code)
	s.inner.SetTag("error_code", code)
	if !Reportable(code) {
		return
	}
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

func spanStatus(code string) sentry.SpanStatus {
	switch code {
	case domain.ErrCodeValidation, domain.ErrCodeExtraction:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeUnauthorized:
		return sentry.SpanStatusUnauthenticated
	case domain.ErrCodeInvalidOperation:
		return sentry.SpanStatusFailedPrecondition
	case domain.ErrCodeEmbedding, domain.ErrCodeProviderSend, domain.ErrCodeExternalSource:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}

// Reportable reports whether errors with this code are worth a Sentry event.
func Reportable(code string) bool {
	switch code {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeUnauthorized,
		domain.ErrCodeInvalidOperation, domain.ErrCodeExtraction:
		return false
	}
	return true
}

// setAttributes sets common attributes on a span.
func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if span == nil {
		return
	}

	if attrs.Owner != "" {
		span.SetTag("owner", attrs.Owner)
	}
	if attrs.CampaignID != "" {
		span.SetTag("campaign_id", attrs.CampaignID)
	}
	if attrs.Source != "" {
		span.SetTag("source", attrs.Source)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
	if attrs.Count > 0 {
		span.SetData("count", attrs.Count)
	}
}

// StartSpan opens a child of the span in ctx, or a new transaction when ctx
// carries none (CLI commands and the campaign worker).
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	setAttributes(span, attrs)

	return span.Context(), &Span{inner: span}
}

// CaptureError reports err unless its domain code marks it as a caller error.
func CaptureError(ctx context.Context, err error) {
	if err == nil || !Reportable(domain.CodeOf(err)) {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
}

// AddBreadcrumb records a step on the request's hub, or the global hub outside
// a request.
func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
	} else {
		sentry.AddBreadcrumb(breadcrumb)
	}
}
