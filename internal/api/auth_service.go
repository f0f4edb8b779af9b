package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ksred/plansmart/internal/config"
	"github.com/ksred/plansmart/internal/database"
	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

var (
	errInvalidCredentials = fmt.Errorf("%w: invalid credentials", utils.ErrUnauthorized)
	errInvalidAPIKey      = fmt.Errorf("%w: invalid API key", utils.ErrUnauthorized)
	errAPIKeyExpired      = fmt.Errorf("%w: API key expired", utils.ErrUnauthorized)
	errInvalidToken       = fmt.Errorf("%w: invalid token", utils.ErrUnauthorized)
)

type AuthService struct {
	db     *database.Database
	jwt    config.JWT
	logger zerolog.Logger
	now    func() time.Time
}

func NewAuthService(db *database.Database, jwtConfig config.JWT, logger zerolog.Logger) *AuthService {
	return &AuthService{
		db:     db,
		jwt:    jwtConfig,
		logger: logger.With().Str("service", "auth").Logger(),
		now:    time.Now,
	}
}

// RegisterUser creates a user with a bcrypt hashed password
func (s *AuthService) RegisterUser(username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, utils.RequiredFieldError("username")
	}
	if password == "" {
		return nil, utils.RequiredFieldError("password")
	}
	if len(username) < minUsernameLength {
		return nil, utils.InvalidFieldError("username", fmt.Sprintf("must be at least %d characters long", minUsernameLength))
	}
	if len(password) < minPasswordLength {
		return nil, utils.InvalidFieldError("password", fmt.Sprintf("must be at least %d characters long", minPasswordLength))
	}

	var existing int64
	if err := s.db.DB().Model(&models.User{}).Where("LOWER(username) = LOWER(?)", username).Count(&existing).Error; err != nil {
		return nil, utils.WrapDatabaseError("check username", err)
	}
	if existing > 0 {
		return nil, utils.WrapConflictError("user", "username", username)
	}

	return s.createUser(username, password, false)
}

// CreateGuest creates a throwaway guest account
func (s *AuthService) CreateGuest() (*models.User, error) {
	return s.createUser("guest-"+uuid.NewString(), uuid.NewString(), true)
}

func (s *AuthService) createUser(username, password string, guest bool) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Password: string(hashed),
		IsGuest:  guest,
	}
	if err := s.db.DB().Create(user).Error; err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, utils.WrapConflictError("user", "username", username)
		}
		return nil, utils.WrapDatabaseError("create user", err)
	}
	return user, nil
}

func (s *AuthService) AuthenticateUser(username, password string) (*models.User, error) {
	var user models.User
	err := s.db.DB().Where("username = ? AND is_guest = ?", strings.TrimSpace(username), false).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, utils.WrapDatabaseError("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &user, nil
}

// GenerateToken signs an HS256 session token for user
func (s *AuthService) GenerateToken(user *models.User) (string, time.Time, error) {
	expiresAt := s.now().Add(s.jwt.Expiry)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      expiresAt.Unix(),
	})

	signed, err := token.SignedString([]byte(s.jwt.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// UserFromToken validates a session token and loads its user
func (s *AuthService) UserFromToken(tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.jwt.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, errInvalidToken
	}

	var user models.User
	if err := s.db.DB().First(&user, uint(userID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user not found", utils.ErrUnauthorized)
		}
		return nil, utils.WrapDatabaseError("load token user", err)
	}
	return &user, nil
}

func (s *AuthService) GenerateAPIKey(userID uint, name string, expiresAt *time.Time) (*models.APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, utils.RequiredFieldError("name")
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, err
	}

	apiKey := &models.APIKey{
		UserID:    userID,
		Key:       hex.EncodeToString(keyBytes),
		Name:      strings.TrimSpace(name),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	apiKey.SetPermissions(models.DefaultAPIKeyPermissions)

	if err := s.db.DB().Create(apiKey).Error; err != nil {
		return nil, utils.WrapDatabaseError("create API key", err)
	}
	return apiKey, nil
}

func (s *AuthService) ValidateAPIKey(key string) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := s.db.DB().Where("key = ? AND is_active = ?", key, true).First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidAPIKey
		}
		return nil, utils.WrapDatabaseError("find API key", err)
	}

	if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(s.now()) {
		return nil, errAPIKeyExpired
	}

	if err := s.db.DB().First(&apiKey.User, apiKey.UserID).Error; err != nil {
		return nil, utils.WrapDatabaseError("load API key user", err)
	}

	now := s.now().UTC()
	apiKey.LastUsedAt = &now
	if err := s.db.DB().Model(&apiKey).Update("last_used_at", now).Error; err != nil {
		s.logger.Warn().Err(err).Uint("api_key_id", apiKey.ID).Msg("Failed to record API key use")
	}

	return &apiKey, nil
}

func (s *AuthService) ListUserAPIKeys(userID uint) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := s.db.DB().Where("user_id = ?", userID).Order("created_at DESC").Find(&keys).Error
	if err != nil {
		return nil, utils.WrapDatabaseError("list API keys", err)
	}
	return keys, nil
}

// DeleteAPIKey removes one of the user's keys and returns it
func (s *AuthService) DeleteAPIKey(userID, keyID uint) (*models.APIKey, error) {
	var key models.APIKey
	if err := s.db.DB().Where("id = ? AND user_id = ?", keyID, userID).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.WrapNotFoundError("API key", strconv.FormatUint(uint64(keyID), 10))
		}
		return nil, utils.WrapDatabaseError("find API key", err)
	}

	if err := s.db.DB().Delete(&key).Error; err != nil {
		return nil, utils.WrapDatabaseError("delete API key", err)
	}
	return &key, nil
}
