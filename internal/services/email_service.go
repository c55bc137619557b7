package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

type EmailService interface {
	SendStatusChangedEmail(email string, lead *models.Leads, rec workflow.Transition) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailService) SendStatusChangedEmail(email string, lead *models.Leads, rec workflow.Transition) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", fmt.Sprintf("Lead #%d moved to %s", lead.ID, rec.To))
	m.SetBody("text/html", statusChangedBody(lead, rec))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send status email: %w", err)
	}
	return nil
}

func statusChangedBody(lead *models.Leads, rec workflow.Transition) string {
	from := "-"
	if rec.From != nil {
		from = rec.From.String()
	}
	by := "automatically"
	if trigger, ok := rec.Metadata["trigger"].(string); ok && rec.Automated {
		by = "automatically (" + trigger + ")"
	} else if rec.ChangedBy != nil {
		by = fmt.Sprintf("by user #%d", *rec.ChangedBy)
	}
	return fmt.Sprintf(`
		<h3>%s</h3>
		<p>Status changed %s: <strong>%s</strong> → <strong>%s</strong></p>
		<p>%s</p>
	`, html.EscapeString(lead.Title), by, from, rec.To, html.EscapeString(lead.Address))
}
