package app

import (
	"time"

	"intake/api/internal/export"
)

func dossier(detail RequestDetail, now time.Time) export.Dossier {
	d := export.Dossier{
		RequestID:               detail.ID,
		ProjectTitle:            detail.ProjectTitle,
		Status:                  string(detail.Status),
		RequestorName:           detail.Requestor.FullName,
		RequestorEmail:          detail.Requestor.Email,
		Department:              detail.Requestor.Department,
		Domain:                  detail.Domain,
		TypeOfRequest:           detail.TypeOfRequest,
		PriorityLevel:           detail.PriorityLevel,
		EstimatedBudget:         detail.EstimatedBudget,
		DateOfSubmission:        detail.DateOfSubmission,
		EstimatedCompletionDate: detail.EstimatedCompletionDate,
		GeneratedAt:             now,
	}

	if info := detail.RequestorInfo; info != nil {
		d.Sections = append(d.Sections, export.Section{
			Title: "Requestor Information",
			Rows: compactRows([]export.Row{
				{Label: "Department", Value: info.Department},
				{Label: "Phone", Value: info.Phone},
				{Label: "Manager", Value: info.ManagerName},
				{Label: "Business Unit", Value: info.BusinessUnit},
				{Label: "Cost Center", Value: info.CostCenter},
			}),
		})
	}
	if specs := detail.ProjectSpecs; specs != nil {
		d.Sections = append(d.Sections, export.Section{
			Title: "Project Specifications",
			Rows: compactRows([]export.Row{
				{Label: "Description", Value: specs.Description},
				{Label: "Business Justification", Value: specs.BusinessJustification},
				{Label: "Expected Outcomes", Value: specs.ExpectedOutcomes},
				{Label: "Technical Requirements", Value: specs.TechnicalRequirements},
				{Label: "Dependencies", Value: specs.Dependencies},
				{Label: "Risks", Value: specs.Risks},
			}),
		})
	}

	d.Gates = []export.GateSection{
		{Title: "Scrub Team Review", Groups: detail.ScrubConversations},
		{Title: "Committee Review", Groups: detail.CommitteeConversations},
	}
	for _, item := range detail.Attachments {
		d.Attachments = append(d.Attachments, item.OriginalName)
	}
	return d
}

func compactRows(rows []export.Row) []export.Row {
	kept := rows[:0]
	for _, row := range rows {
		if row.Value != "" {
			kept = append(kept, row)
		}
	}
	return kept
}
