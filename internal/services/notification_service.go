package services

import (
	"context"
	"errors"
	"fmt"

	"roofcrm/internal/repositories"
	"roofcrm/internal/workflow"
)

// StatusNotifier tells the lead owner about status changes they did not make
// themselves, by email and, when linked, Telegram.
type StatusNotifier struct {
	Leads repositories.LeadRepository
	Users repositories.UserRepository
	Email EmailService
	TG    *TelegramService
}

func NewStatusNotifier(leads repositories.LeadRepository, users repositories.UserRepository, email EmailService, tg *TelegramService) *StatusNotifier {
	return &StatusNotifier{Leads: leads, Users: users, Email: email, TG: tg}
}

func (n *StatusNotifier) StatusChanged(ctx context.Context, rec workflow.Transition) error {
	lead, err := n.Leads.GetByID(ctx, rec.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %d: %w", rec.LeadID, err)
	}
	if rec.ChangedBy != nil && *rec.ChangedBy == lead.OwnerID {
		return nil
	}
	owner, err := n.Users.GetByID(ctx, lead.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner %d: %w", lead.OwnerID, err)
	}

	var errs []error
	if n.Email != nil && owner.Email != "" {
		if err := n.Email.SendStatusChangedEmail(owner.Email, lead, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if n.TG != nil && owner.NotifyTelegram && owner.TelegramChatID != 0 {
		if err := n.TG.SendStatusChanged(owner.TelegramChatID, lead, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
