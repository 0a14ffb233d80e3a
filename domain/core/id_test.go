package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	emptyID := ID("")
	if !emptyID.IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}

	nonEmptyID := ID("not-empty")
	if nonEmptyID.IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

// TestRunIDOrdering tests that run IDs are time ordered (UUID v7)
func TestRunIDOrdering(t *testing.T) {
	first := NewRunID()
	second := NewRunID()

	if first.IsEmpty() || second.IsEmpty() {
		t.Fatal("Expected non-empty run IDs")
	}
	if first.String() >= second.String() {
		t.Errorf("Expected %s to sort before %s", first, second)
	}
}

func TestParseRunID(t *testing.T) {
	if _, err := ParseRunID("   "); err == nil {
		t.Error("Expected error for blank run ID")
	}

	id, err := ParseRunID("run-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id.String() != "run-1" {
		t.Errorf("Expected 'run-1', got '%s'", id)
	}
}
