package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mzhao28/medichat/internal/common"
)

var (
	// ErrDuplicateUsername is returned by CreateUser when the username is taken.
	ErrDuplicateUsername = errors.New("auth: username already exists")

	// ErrInvalidCredentials covers both unknown username and wrong password;
	// callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidSession covers unknown and expired session tokens alike.
	ErrInvalidSession = errors.New("auth: invalid session")
)

const DefaultSessionDuration = time.Hour

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) CreateUser(ctx context.Context, username, password string) (uint64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("username = ?", username).
		Count(&existing).Error; err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, ErrDuplicateUsername
	}

	// the unique index backs the check above against races
	user := User{Username: username, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrDuplicateUsername
		}
		return 0, err
	}
	return user.ID, nil
}

func (s *Service) VerifyUser(ctx context.Context, username, password string) (uint64, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return 0, ErrInvalidCredentials
	}
	return user.ID, nil
}

// CreateSession issues an opaque token valid for duration. A non-positive
// duration falls back to DefaultSessionDuration.
func (s *Service) CreateSession(ctx context.Context, userID uint64, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	token, err := common.NewSessionToken(16)
	if err != nil {
		return "", err
	}

	sess := Session{
		SessionID: token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(duration),
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return "", err
	}
	return token, nil
}

// ValidateSession returns the owning user id if the token exists and its
// expiry is still in the future. Validation never extends the expiry.
func (s *Service) ValidateSession(ctx context.Context, token string) (uint64, error) {
	var sess Session
	err := s.db.WithContext(ctx).Where("session_id = ?", token).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidSession
		}
		return 0, err
	}
	if !time.Now().Before(sess.ExpiresAt) {
		return 0, ErrInvalidSession
	}
	return sess.UserID, nil
}
