package store

import (
	"time"

	"intake/api/internal/workflow"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	Department   string
	Phone        string
	CreatedAt    time.Time
}

type RequestorInfo struct {
	Department   string `json:"department"`
	Phone        string `json:"phone"`
	ManagerName  string `json:"manager_name"`
	BusinessUnit string `json:"business_unit"`
	CostCenter   string `json:"cost_center"`
}

type ProjectSpecs struct {
	Description           string `json:"description"`
	BusinessJustification string `json:"business_justification"`
	ExpectedOutcomes      string `json:"expected_outcomes"`
	TechnicalRequirements string `json:"technical_requirements"`
	Dependencies          string `json:"dependencies"`
	Risks                 string `json:"risks"`
}

// RequestRecord is the full intake request row with its owner and nested
// sections. RequestorInfo and ProjectSpecs are nil when never saved.
type RequestRecord struct {
	ID                      string
	RequestorID             string
	RequestorName           string
	RequestorEmail          string
	RequestorDepartment     string
	ProjectTitle            string
	Domain                  string
	EstimatedBudget         *float64
	TypeOfRequest           string
	PriorityLevel           string
	Status                  workflow.Status
	DateOfSubmission        *time.Time
	EstimatedCompletionDate *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
	RequestorInfo           *RequestorInfo
	ProjectSpecs            *ProjectSpecs
}

type RequestFilter struct {
	RequestorID string
	Status      workflow.Status
}

type Attachment struct {
	ID           string
	RequestID    string
	OriginalName string
	Filename     string
	Filepath     string
	Mimetype     string
	Size         int64
	UploadedBy   string
	CreatedAt    time.Time
}

// CommentView is a comment with its author's display fields.
type CommentView struct {
	workflow.Comment
	UserRole string
}
