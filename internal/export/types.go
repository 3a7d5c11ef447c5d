// Package export renders an intake request dossier as HTML or PDF.
package export

import (
	"errors"
	"time"

	"intake/api/internal/workflow"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, true
	case FormatPDF:
		return FormatPDF, true
	default:
		return "", false
	}
}

// Dossier is everything printed for one request.
type Dossier struct {
	RequestID               string
	ProjectTitle            string
	Status                  string
	RequestorName           string
	RequestorEmail          string
	Department              string
	Domain                  string
	TypeOfRequest           string
	PriorityLevel           string
	EstimatedBudget         *float64
	DateOfSubmission        *time.Time
	EstimatedCompletionDate *time.Time
	Sections                []Section
	Gates                   []GateSection
	Attachments             []string
	GeneratedAt             time.Time
}

// Section is a titled list of label/value rows.
type Section struct {
	Title string
	Rows  []Row
}

type Row struct {
	Label string
	Value string
}

// GateSection holds the conversation threads of one review gate.
type GateSection struct {
	Title  string
	Groups []workflow.ConversationGroup
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates no headless Chrome binary was found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("export format not supported")
)
