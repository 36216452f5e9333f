package id

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	jobID := New()

	if !strings.HasPrefix(jobID, "job_") {
		t.Errorf("expected ID to start with 'job_', got %s", jobID)
	}

	if New() == jobID {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestNew_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		jobID := New()
		if seen[jobID] {
			t.Errorf("duplicate ID generated: %s", jobID)
		}
		seen[jobID] = true
	}
}
