package models

// User is the subset of the account record the CRM needs to reach a lead owner.
type User struct {
	ID             int    `json:"id"`
	Email          string `json:"email"`
	RoleID         int    `json:"role_id"`
	TelegramChatID int64  `json:"-"`
	NotifyTelegram bool   `json:"-"`
}
