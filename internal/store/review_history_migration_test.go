package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReviewHistoryMigrationUsesBlockingTriggers(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(testMigrationsDir, "0002_review_history_guard.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"review_history_guard",
		"comment_history_guard",
		"RAISE EXCEPTION",
		"ERRCODE = '55000'",
		"CREATE TRIGGER trg_scrub_reviews_guard",
		"CREATE TRIGGER trg_committee_reviews_guard",
		"CREATE TRIGGER trg_comments_guard",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail guard, found silent DO INSTEAD NOTHING rule")
	}
}
