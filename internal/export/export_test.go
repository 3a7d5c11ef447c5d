package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"intake/api/internal/workflow"
)

func sampleDossier() Dossier {
	budget := 25000.0
	submitted := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	return Dossier{
		RequestID:        "req_1",
		ProjectTitle:     "Billing <Revamp>",
		Status:           "scrub_questions",
		RequestorName:    "Alice",
		RequestorEmail:   "alice@example.com",
		PriorityLevel:    "high",
		EstimatedBudget:  &budget,
		DateOfSubmission: &submitted,
		Sections: []Section{{
			Title: "Project specifications",
			Rows:  []Row{{Label: "Description", Value: "Replace invoicing"}, {Label: "Risks"}},
		}},
		Gates: []GateSection{
			{
				Title: "Scrub review",
				Groups: []workflow.ConversationGroup{{
					ReviewerID:     "usr_sam",
					ReviewerName:   "Sam",
					LatestDecision: workflow.DecisionNeedInfo,
					Entries: []workflow.ConversationEntry{
						{Kind: workflow.EntryReview, Author: "Sam", Message: "What is the budget ceiling?", Decision: workflow.DecisionNeedInfo, CreatedAt: submitted.Add(time.Hour)},
						{Kind: workflow.EntryReply, Author: "Alice", Message: "Thirty thousand", CreatedAt: submitted.Add(2 * time.Hour)},
					},
				}},
			},
			{Title: "Committee review"},
		},
		Attachments: []string{"plan.pdf"},
		GeneratedAt: submitted.Add(3 * time.Hour),
	}
}

func TestRenderDossierHTML(t *testing.T) {
	html, err := RenderDossierHTML(sampleDossier())
	if err != nil {
		t.Fatalf("RenderDossierHTML() error = %v", err)
	}
	for _, want := range []string{
		"Billing &lt;Revamp&gt;",
		"25000.00",
		"Feb 3, 2026",
		"What is the budget ceiling?",
		"Thirty thousand",
		`class="entry reply"`,
		"No reviews yet.",
		"plan.pdf",
		"Replace invoicing",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered dossier to contain %q", want)
		}
	}
	if strings.Contains(html, "Billing <Revamp>") {
		t.Error("expected title to be escaped")
	}
}

func TestExportHTML(t *testing.T) {
	result, err := NewService("").Export(context.Background(), sampleDossier(), FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Filename != "Billing-Revamp.html" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if !strings.HasPrefix(result.MimeType, "text/html") || len(result.Data) == 0 {
		t.Fatalf("unexpected result: %s %d bytes", result.MimeType, len(result.Data))
	}
}

func TestExportPDFWithoutChrome(t *testing.T) {
	_, err := NewService("/nonexistent/chrome-binary").Export(context.Background(), sampleDossier(), FormatPDF)
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("expected ErrPDFDependencyMissing, got %v", err)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, err := NewService("").Export(context.Background(), sampleDossier(), Format("docx"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat(""); !ok || f != FormatHTML {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, ok)
	}
	if f, ok := ParseFormat("pdf"); !ok || f != FormatPDF {
		t.Fatalf("ParseFormat(pdf) = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("docx"); ok {
		t.Fatal("expected docx to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"Title/With:Special*Chars", "TitleWithSpecialChars"},
		{"", "request"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b<"); got != "a%20b%3C" {
		t.Fatalf("percentEncodeForDataURL() = %q", got)
	}
}
