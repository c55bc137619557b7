package services

import (
	"fmt"
	"html"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

// TelegramSender is the part of *tgbotapi.BotAPI the CRM uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramService struct {
	bot TelegramSender
}

// NewTelegramService connects to the bot API. An empty token disables Telegram.
func NewTelegramService(botToken string) (*TelegramService, error) {
	if botToken == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramService{bot: bot}, nil
}

func NewTelegramServiceWithSender(sender TelegramSender) *TelegramService {
	return &TelegramService{bot: sender}
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.bot == nil || chatID == 0 {
		log.Printf("[tg][skip] bot or chatID empty (chatID=%d)", chatID)
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func (t *TelegramService) SendStatusChanged(chatID int64, lead *models.Leads, rec workflow.Transition) error {
	text := fmt.Sprintf("<b>%s</b>\n%s",
		html.EscapeString(lead.Title), rec.To)
	if trigger, ok := rec.Metadata["trigger"].(string); ok {
		text += fmt.Sprintf("\n<i>%s</i>", html.EscapeString(trigger))
	}
	return t.SendMessage(chatID, text)
}
