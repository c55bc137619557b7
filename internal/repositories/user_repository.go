package repositories

import (
	"context"
	"database/sql"
	"errors"

	"roofcrm/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads contact details of CRM users. Accounts themselves are
// managed by the authentication service.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	const q = `
		SELECT id, email, role_id,
		       COALESCE(telegram_chat_id, 0), COALESCE(notify_tasks_telegram, FALSE)
		FROM users
		WHERE id = $1
	`
	u := &models.User{}
	err := r.DB.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Email, &u.RoleID, &u.TelegramChatID, &u.NotifyTelegram)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
