package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var dossierTemplate = template.Must(template.New("dossier.html").Funcs(template.FuncMap{
	"formatDate": func(t *time.Time, layout string) string {
		if t == nil {
			return "-"
		}
		return t.Format(layout)
	},
	"formatTime": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04")
	},
	"money": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f", *v)
	},
}).ParseFS(templateFS, "templates/dossier.html"))

// RenderDossierHTML renders the dossier template.
func RenderDossierHTML(d Dossier) (string, error) {
	var buf bytes.Buffer
	if err := dossierTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
