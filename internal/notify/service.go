// Package notify mails requestors when their intake request changes status.
package notify

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"strings"

	mail "github.com/go-mail/mail/v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// SkipTLSVerify is for local SMTP relays with self-signed certificates.
	SkipTLSVerify bool
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Service sends transition notices over SMTP.
type Service struct {
	config Config
	sender sender
}

func NewService(config Config) *Service {
	if config.Port == 0 {
		config.Port = 587
	}
	d := mail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         config.Host,
		InsecureSkipVerify: config.SkipTLSVerify,
	}
	return &Service{config: config, sender: d}
}

// IsConfigured returns true if SMTP host and sender are set.
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.From != ""
}

// TransitionNotice describes a status change to report to a requestor.
type TransitionNotice struct {
	To            string
	RequestorName string
	RequestID     string
	ProjectTitle  string
	FromStatus    string
	ToStatus      string
	Decision      string
	ReviewerName  string
	Remarks       string
}

// NotifyTransition mails the requestor. It is a no-op when SMTP is not
// configured or the request has no known address.
func (s *Service) NotifyTransition(n TransitionNotice) error {
	if !s.IsConfigured() || strings.TrimSpace(n.To) == "" {
		return nil
	}
	m, err := s.buildMessage(n)
	if err != nil {
		return err
	}
	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send transition notice: %w", err)
	}
	return nil
}

func (s *Service) buildMessage(n TransitionNotice) (*mail.Message, error) {
	htmlBody, err := renderTemplate(transitionTemplate, n)
	if err != nil {
		return nil, fmt.Errorf("render transition template: %w", err)
	}

	m := mail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", Subject(n))
	m.SetBody("text/plain", plainBody(n))
	m.AddAlternative("text/html", htmlBody)
	return m, nil
}

func Subject(n TransitionNotice) string {
	return fmt.Sprintf("[Intake] %s is now %s", n.ProjectTitle, StatusLabel(n.ToStatus))
}

// StatusLabel turns a status key such as "scrub_questions" into "Scrub Questions".
func StatusLabel(status string) string {
	parts := strings.Split(status, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func plainBody(n TransitionNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", n.RequestorName)
	fmt.Fprintf(&b, "Your request %q moved from %s to %s.\n", n.ProjectTitle, StatusLabel(n.FromStatus), StatusLabel(n.ToStatus))
	if n.Decision == "need_info" && n.Remarks != "" {
		fmt.Fprintf(&b, "\n%s asked:\n%s\n", n.ReviewerName, n.Remarks)
	}
	return b.String()
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Funcs(template.FuncMap{"label": StatusLabel}).Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const transitionTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ProjectTitle}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .status { display: inline-block; padding: 4px 10px; background: #e8f0fe; border-radius: 4px; }
        .remarks { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; white-space: pre-wrap; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Intake</h1>
    </div>

    <p>Hi {{.RequestorName}},</p>

    <p>Your request <strong>{{.ProjectTitle}}</strong> moved from {{label .FromStatus}} to <span class="status">{{label .ToStatus}}</span>.</p>
    {{if and (eq .Decision "need_info") .Remarks}}
    <p>{{.ReviewerName}} asked:</p>
    <div class="remarks">{{.Remarks}}</div>
    <p>Reply from the request page to continue the review.</p>
    {{end}}
</body>
</html>`
