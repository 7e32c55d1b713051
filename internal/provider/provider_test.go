package provider

import (
	"testing"

	"github.com/MEKXH/cherub/internal/config"
)

func TestNewChatModel_NoProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := NewChatModel(nil, cfg)
	if err == nil {
		t.Error("expected error when no provider configured")
	}
}

func TestToFloat32Ptr(t *testing.T) {
	got := toFloat32Ptr(0.7)
	if got == nil {
		t.Fatal("expected non-nil pointer")
	}
	if *got != float32(0.7) {
		t.Fatalf("expected 0.7, got %f", *got)
	}
}

func TestToIntPtr(t *testing.T) {
	got := toIntPtr(8192)
	if got == nil {
		t.Fatal("expected non-nil pointer")
	}
	if *got != 8192 {
		t.Fatalf("expected 8192, got %d", *got)
	}
}
