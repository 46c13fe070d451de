package services_test

import (
	"errors"
	"strings"
	"testing"

	"splicer/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrSpawn, "ffmpeg", "start", "exec failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrSpawn) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ffmpeg", "start", "exec failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToExternalTool(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrAlreadyRunning, "jobs", "start", "", nil), "already_running"},
		{services.Wrap(services.ErrSpawn, "ffmpeg", "start", "", nil), "spawn"},
		{services.Wrap(services.ErrProbe, "ffprobe", "inspect", "", nil), "probe"},
		{services.Wrap(services.ErrIO, "concat", "write", "", nil), "io"},
		{services.Wrap(services.ErrDeletionExhausted, "deletion", "remove", "", nil), "deletion_exhausted"},
		{services.Wrap(services.ErrValidation, "jobs", "start", "", nil), "validation"},
		{services.Wrap(services.ErrUnavailable, "daemon", "start merge", "", nil), "unavailable"},
		{errors.New("plain"), "external_tool"},
	}
	for _, tt := range tests {
		if got := services.Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
