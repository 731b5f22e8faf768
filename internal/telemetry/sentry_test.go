package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_NoDSN(t *testing.T) {
	flush, err := Init(Config{}, nil)

	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}

func TestSpanStatus(t *testing.T) {
	tests := map[string]sentry.SpanStatus{
		domain.ErrCodeValidation:     sentry.SpanStatusInvalidArgument,
		domain.ErrCodeExtraction:     sentry.SpanStatusInvalidArgument,
		domain.ErrCodeNotFound:       sentry.SpanStatusNotFound,
		domain.ErrCodeUnauthorized:   sentry.SpanStatusUnauthenticated,
		domain.ErrCodeProviderSend:   sentry.SpanStatusUnavailable,
		domain.ErrCodeStorage:        sentry.SpanStatusInternalError,
		domain.ErrCodeInternalError:  sentry.SpanStatusInternalError,
		domain.ErrCodeExternalSource: sentry.SpanStatusUnavailable,
	}
	for code, want := range tests {
		assert.Equal(t, want, spanStatus(code), code)
	}
}

func TestReportable(t *testing.T) {
	assert.False(t, Reportable(domain.ErrCodeValidation))
	assert.False(t, Reportable(domain.ErrCodeNotFound))
	assert.True(t, Reportable(domain.ErrCodeStorage))
	assert.True(t, Reportable(domain.ErrCodeProviderSend))
	assert.True(t, Reportable(domain.CodeOf(errors.New("plain"))))
}

func TestStartSpan_WithoutClient(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "Test.Op", SpanAttributes{Owner: "acme", Count: 3})
	defer span.End()

	assert.NotNil(t, ctx)
	span.SetError(domain.ValidationError("bad"))
	assert.Equal(t, sentry.SpanStatusInvalidArgument, span.inner.Status)
}

func TestSpan_ZeroValue(t *testing.T) {
	var span Span
	span.SetError(errors.New("boom"))
	span.End()
}

func TestSampleRate(t *testing.T) {
	health := &sentry.Span{Name: "GET /health"}
	assert.Zero(t, sampleRate(health, 1))

	root := &sentry.Span{Name: "POST /campaigns/send"}
	assert.Equal(t, 0.25, sampleRate(root, 0.25))
}
