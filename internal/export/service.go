package export

import (
	"context"
	"fmt"
)

// Service renders dossiers. chromePath overrides Chrome discovery for PDF.
type Service struct {
	chromePath string
}

func NewService(chromePath string) *Service {
	return &Service{chromePath: chromePath}
}

// Export generates a dossier in the requested format.
func (s *Service) Export(ctx context.Context, d Dossier, format Format) (*Result, error) {
	html, err := RenderDossierHTML(d)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(d.ProjectTitle) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, s.chromePath, html, d.ProjectTitle)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
