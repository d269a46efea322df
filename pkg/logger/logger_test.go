package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogUsesContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core).Sugar().With("request_id", "r-1"))

	Log(ctx).Infof("hello %s", "ann")

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "hello ann" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].ContextMap()["request_id"] != "r-1" {
		t.Fatalf("expected request id field, got %v", entries[0].ContextMap())
	}
}

func TestLogFallsBackToGlobal(t *testing.T) {
	l := Run("warn")
	if Log(context.Background()) != l {
		t.Fatalf("expected global logger without context logger")
	}
	if l.Desugar().Core().Enabled(zap.InfoLevel) {
		t.Fatalf("expected info disabled at warn level")
	}
	if Run("bogus").Desugar().Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected unknown level to fall back to info")
	}
}
