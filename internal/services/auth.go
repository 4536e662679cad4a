package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/config"
	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/internal/utils"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg, now: time.Now}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
	Role     string `json:"role"` // freelancer (default) or client
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	AccessToken     string       `json:"token"`
	AccessExpireAt  time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user"`
}

// Register creates a freelancer or client account and signs it in.
func (s *AuthService) Register(req *RegisterRequest, clientIP, userAgent string) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, response.NewValidation("invalid email address")
	}
	if len(req.Password) < 6 {
		return nil, response.NewValidation("password must be at least 6 characters")
	}
	role := req.Role
	if role == "" {
		role = models.RoleFreelancer
	}
	if role != models.RoleFreelancer && role != models.RoleClient {
		return nil, response.NewValidation("role must be freelancer or client")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, response.NewConflict("email already registered")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user := models.User{
		Email:    email,
		Name:     name,
		Password: hashed,
		Role:     role,
		IsActive: true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	logger.Info().Str("user_id", user.ID).Str("role", role).Msg("[Auth] user registered")
	return s.issue(&user, clientIP, userAgent)
}

// Login authenticates a user and returns an access token plus a refresh token
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid email or password")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewForbidden("user is disabled")
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, response.NewUnauthorized("invalid email or password")
	}

	result, err := s.issue(&user, clientIP, userAgent)
	if err != nil {
		return nil, err
	}
	now := s.now()
	s.db.Model(&user).Update("last_login", now)
	user.LastLogin = &now
	return result, nil
}

func (s *AuthService) issue(user *models.User, clientIP, userAgent string) (*LoginResult, error) {
	now := s.now()
	access, err := s.accessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, hash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	record := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   hash,
		ExpiresAt:   now.Add(s.refreshTTL()),
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:     access,
		AccessExpireAt:  now.Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
		User:            user,
	}, nil
}

func (s *AuthService) accessToken(user *models.User) (string, error) {
	custom := map[string]interface{}{"role": user.Role}
	if user.Role == models.RoleAdmin {
		custom["admin"] = true
	}
	return utils.GenerateToken(user.ID, user.Email, custom, s.jwtConfig.ExpireHour)
}

func (s *AuthService) refreshTTL() time.Duration {
	hours := s.jwtConfig.RefreshExpireHour
	if hours <= 0 {
		hours = 720
	}
	return time.Duration(hours) * time.Hour
}

// Refresh rotates a refresh token: the presented one is revoked and points
// at its replacement.
func (s *AuthService) Refresh(refreshToken, clientIP, userAgent string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, response.NewValidation("refresh token required")
	}

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	now := s.now()
	if stored.RevokedAt != nil {
		return nil, response.NewUnauthorized("refresh token revoked")
	}
	if now.After(stored.ExpiresAt) {
		return nil, response.NewUnauthorized("refresh token expired")
	}

	user := loadUser(s.db, stored.UserID)
	if user == nil {
		return nil, response.NewUnauthorized("user not found")
	}
	if !user.IsActive {
		return nil, response.NewForbidden("user is disabled")
	}

	access, err := s.accessToken(user)
	if err != nil {
		return nil, err
	}
	newToken, newHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	replacement := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   newHash,
		ExpiresAt:   now.Add(s.refreshTTL()),
		CreatedByIP: clientIP,
		UserAgent:   userAgent,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&replacement).Error; err != nil {
			return err
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": replacement.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewUnauthorized("refresh token revoked")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:     access,
		AccessExpireAt:  now.Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
		RefreshToken:    newToken,
		RefreshExpireAt: replacement.ExpiresAt,
		User:            user,
	}, nil
}

func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", s.now()).Error
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	token, err = utils.RandomToken(32)
	if err != nil {
		return "", "", err
	}
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) GetUser(id string) (*models.User, error) {
	user := loadUser(s.db, id)
	if user == nil {
		return nil, response.NewNotFound("user not found")
	}
	return user, nil
}

// ResolveRole returns the effective role for a request. A trusted admin
// claim wins; anything else comes from the stored user record.
func (s *AuthService) ResolveRole(userID string, claims *utils.Claims) (string, error) {
	if claims != nil && claims.IsAdminClaim() {
		return models.RoleAdmin, nil
	}
	user := loadUser(s.db, userID)
	if user == nil {
		return "", response.NewUnauthorized("user not found")
	}
	if !user.IsActive {
		return "", response.NewForbidden("user is disabled")
	}
	return user.Role, nil
}

// CreateAdminIfNotExists seeds the configured admin account.
func (s *AuthService) CreateAdminIfNotExists(cfg config.AdminConfig) error {
	if cfg.Password == "" || cfg.Email == "" {
		return nil
	}
	var count int64
	s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:    strings.ToLower(cfg.Email),
		Name:     "Administrator",
		Password: hashed,
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Info().Str("email", admin.Email).Msg("[Auth] admin account created")
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword also revokes every outstanding refresh token of the user.
func (s *AuthService) ChangePassword(userID string, req *ChangePasswordRequest) error {
	user := loadUser(s.db, userID)
	if user == nil {
		return response.NewNotFound("user not found")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return response.NewValidation("incorrect old password")
	}
	if len(req.NewPassword) < 6 {
		return response.NewValidation("password must be at least 6 characters")
	}
	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("password", hashed).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Update("revoked_at", s.now()).Error
	})
}
