package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/lingoxa/internal/app"
	"github.com/MrWong99/lingoxa/internal/config"
	"github.com/MrWong99/lingoxa/internal/learner"
	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/internal/resilience"
	"github.com/MrWong99/lingoxa/pkg/provider/llm"
	llmmock "github.com/MrWong99/lingoxa/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/lingoxa/pkg/provider/tts/mock"
	"github.com/MrWong99/lingoxa/pkg/types"
)

const tutorReply = "Great! You are going to the kitchen for coffee."

// testConfig returns a minimal in-memory config.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Tutor:  config.TutorConfig{VoiceID: "Rachel"},
		Learners: config.LearnersConfig{
			DefaultLevel: types.LevelA2,
		},
	}
}

// tutorModel returns a configured model that always answers reply.
func tutorModel(reply string) *llmmock.Provider {
	return &llmmock.Provider{
		IsConfigured:     true,
		CompleteResponse: &llm.CompletionResponse{Content: reply},
	}
}

// testProviders returns one model and a primary plus backup TTS backend.
func testProviders() (*app.Providers, *llmmock.Provider, *ttsmock.Provider, *ttsmock.Provider) {
	model := tutorModel(tutorReply)
	primary := &ttsmock.Provider{Audio: []byte("RIFF-primary")}
	backup := &ttsmock.Provider{Audio: []byte("RIFF-backup")}
	return &app.Providers{
		Models: []app.Model{{ID: "primary", Provider: model}},
		TTS: []app.Voice{
			{Name: "primary-tts", Provider: primary},
			{Name: "backup-tts", Provider: backup},
		},
	}, model, primary, backup
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// activeSessions reads the current value of the active session gauge.
func activeSessions(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "lingoxa.active_sessions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("active_sessions data = %T", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

// failingLedger is a learner store whose usage writes always fail.
type failingLedger struct {
	*learner.MemStore
}

func (failingLedger) RecordUsage(context.Context, learner.UsageRecord) error {
	return errors.New("ledger offline")
}

// brokenProfiles fails every profile lookup.
type brokenProfiles struct {
	*learner.MemStore
}

func (brokenProfiles) Profile(context.Context, string) (*types.LearnerProfile, error) {
	return nil, errors.New("connection refused")
}

// newRouter registers models under "primary", "m1", "m2", ...
func newRouter(t *testing.T, models ...*llmmock.Provider) *resilience.Router {
	t.Helper()
	r := resilience.NewRouter(resilience.RouterConfig{})
	for i, m := range models {
		id := "primary"
		if i > 0 {
			id = fmt.Sprintf("m%d", i)
		}
		if err := r.Register(id, m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}
