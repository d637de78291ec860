package tracer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"wayfinder/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	cfg := config.TracerConfig{Enabled: false}
	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	tp := otel.GetTracerProvider()
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", tp)
	}
}

func TestSetupNoop(t *testing.T) {
	cfg := config.TracerConfig{Enabled: true, Exporter: "noop"}
	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())
}

func TestSetupStdout(t *testing.T) {
	cfg := config.TracerConfig{Enabled: true, Exporter: "stdout"}
	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())
}

func TestSetupEmptyExporter(t *testing.T) {
	cfg := config.TracerConfig{Enabled: true, Exporter: ""}
	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	tp := otel.GetTracerProvider()
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider for empty exporter, got %T", tp)
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	cfg := config.TracerConfig{Enabled: true, Exporter: "invalid"}
	_, err := Setup(context.Background(), cfg)
	if err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestStartSpanAndHelpers(t *testing.T) {
	// Use noop provider for testing
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "test-span")
	if ctx == nil {
		t.Error("context should not be nil")
	}

	// These should not panic
	SetOK(span)
	RecordError(span, errors.New("test error"))
	span.End()
}

func TestAttrHelpers(t *testing.T) {
	s := StringAttr("workflow", "loop")
	if string(s.Key) != "workflow" {
		t.Errorf("StringAttr key = %q, want %q", s.Key, "workflow")
	}

	i := IntAttr("iteration", 3)
	if i.Value.AsInt64() != 3 {
		t.Errorf("IntAttr value = %d, want 3", i.Value.AsInt64())
	}

	f := FloatAttr("proximity", 0.25)
	if f.Value.AsFloat64() != 0.25 {
		t.Errorf("FloatAttr value = %v, want 0.25", f.Value.AsFloat64())
	}

	b := BoolAttr("approved", true)
	if !b.Value.AsBool() {
		t.Error("BoolAttr value = false, want true")
	}
}

func TestFinish(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	_, span := StartSpan(context.Background(), "action.execute")
	Finish(span, nil)

	_, span = StartSpan(context.Background(), "action.execute")
	Finish(span, errors.New("dispatch failed"))
}

func TestSetupFileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "file", Path: path})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "workflow.loop")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	if !strings.Contains(string(data), "workflow.loop") {
		t.Errorf("span file missing span name: %s", data)
	}
}

func TestSetupFileExporterNeedsPath(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "file"}); err == nil {
		t.Fatal("expected error for file exporter without path")
	}
}
