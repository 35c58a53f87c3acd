package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func enabled(t *testing.T) {
	t.Helper()
	Init(testLogger())
	EnableMetrics(true)
	t.Cleanup(func() { EnableMetrics(false) })
}

func TestRecordersWhenDisabled(t *testing.T) {
	EnableMetrics(false)
	assert.False(t, IsMetricsEnabled())

	assert.NotPanics(t, func() {
		RecordDiarizationFrame(true)
		ObserveDiarizationLatency(time.Millisecond)
		RecordSpeakerDecision("stay")
		RecordSpeakerCreated()
		RecordSpeakerMerge()
		RecordStreamBytes(10)
		StartStreamSession()()
		RecordAMQPPublish("diarization", "success")
		SetAMQPConnectionStatus(true)
	})

	mux := http.NewServeMux()
	RegisterHandler(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiarizationCounters(t *testing.T) {
	enabled(t)

	voiced := testutil.ToFloat64(DiarizationFrames.WithLabelValues("true"))
	silent := testutil.ToFloat64(DiarizationFrames.WithLabelValues("false"))
	created := testutil.ToFloat64(SpeakersCreated)
	merges := testutil.ToFloat64(SpeakerMerges)
	stays := testutil.ToFloat64(SpeakerDecisions.WithLabelValues("stay"))

	RecordDiarizationFrame(true)
	RecordDiarizationFrame(true)
	RecordDiarizationFrame(false)
	RecordSpeakerDecision("stay")
	RecordSpeakerCreated()
	RecordSpeakerMerge()

	assert.Equal(t, voiced+2, testutil.ToFloat64(DiarizationFrames.WithLabelValues("true")))
	assert.Equal(t, silent+1, testutil.ToFloat64(DiarizationFrames.WithLabelValues("false")))
	assert.Equal(t, stays+1, testutil.ToFloat64(SpeakerDecisions.WithLabelValues("stay")))
	assert.Equal(t, created+1, testutil.ToFloat64(SpeakersCreated))
	assert.Equal(t, merges+1, testutil.ToFloat64(SpeakerMerges))
}

func TestStreamSessionGauge(t *testing.T) {
	enabled(t)

	before := testutil.ToFloat64(StreamSessionsActive)
	done := StartStreamSession()
	assert.Equal(t, before+1, testutil.ToFloat64(StreamSessionsActive))
	done()
	assert.Equal(t, before, testutil.ToFloat64(StreamSessionsActive))

	bytes := testutil.ToFloat64(StreamBytesReceived)
	RecordStreamBytes(4096)
	assert.Equal(t, bytes+4096, testutil.ToFloat64(StreamBytesReceived))
}

func TestAMQPMetrics(t *testing.T) {
	enabled(t)

	SetAMQPConnectionStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(AMQPConnectionStatus))
	SetAMQPConnectionStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(AMQPConnectionStatus))

	before := testutil.ToFloat64(AMQPPublishedMessages.WithLabelValues("diarization", "error"))
	RecordAMQPPublish("diarization", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(AMQPPublishedMessages.WithLabelValues("diarization", "error")))
}

func TestRegisterHandler(t *testing.T) {
	enabled(t)
	RecordDiarizationFrame(true)

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsPath(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "diarizer_frames_total")
	assert.Contains(t, rec.Body.String(), "diarizer_speakers_created_total")
}

func TestSetMetricsPath(t *testing.T) {
	original := MetricsPath()
	defer SetMetricsPath(original)

	SetMetricsPath("")
	assert.Equal(t, original, MetricsPath())
	SetMetricsPath("/internal/metrics")
	assert.Equal(t, "/internal/metrics", MetricsPath())
}

func TestStartMetricsDisabled(t *testing.T) {
	StartMetrics(context.Background(), testLogger(), false)
	assert.False(t, IsMetricsEnabled())
}
