package services_test

import (
	"context"
	"testing"

	"splicer/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithOperation(ctx, "merge")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %q ok=%v", id, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "merge" {
		t.Fatalf("unexpected operation: %q ok=%v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %q ok=%v", rid, ok)
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "")
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected empty job id to be ignored")
	}
	if _, ok := services.OperationFromContext(context.Background()); ok {
		t.Fatal("expected missing operation")
	}
}
