package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected req_ prefix, got %q", id)
	}
	if len(id) != len("req_")+36 {
		t.Fatalf("unexpected id length %d", len(id))
	}
	if NewID("req") == id {
		t.Fatal("expected unique ids")
	}
	if strings.Contains(NewID(""), "_") {
		t.Fatal("expected bare uuid without prefix")
	}
}
