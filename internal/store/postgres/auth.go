package postgres

import (
	"context"
	"errors"
	"time"

	"campusq/internal/models"
	"campusq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 8 * time.Hour

func (s *Store) Login(ctx context.Context, username, password string) (models.User, store.Session, error) {
	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, username, role, password_hash, created_at
		FROM users
		WHERE lower(username) = lower($1) AND active = TRUE
	`, username)
	if err := row.Scan(&user.UserID, &user.Username, &user.Role, &passwordHash, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.Session{}, store.ErrInvalidCredentials
		}
		return models.User{}, store.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.User{}, store.Session{}, store.ErrInvalidCredentials
	}

	session := store.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		ExpiresAt: time.Now().UTC().Add(sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return models.User{}, store.Session{}, err
	}
	return user, session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, models.User, error) {
	var session store.Session
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.username, u.role, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.UserID, &user.Username, &user.Role, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return store.Session{}, models.User{}, err
	}
	return session, user, nil
}

// CreateUser exists for provisioning and tests; the portal has no self-signup.
func (s *Store) CreateUser(ctx context.Context, username, password, role string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	if role == "" {
		role = models.RoleStaff
	}
	user := models.User{
		UserID:   uuid.NewString(),
		Username: username,
		Role:     role,
		Created:  time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
	`, user.UserID, user.Username, string(hash), user.Role, user.Created)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
