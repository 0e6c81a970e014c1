package auth

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"ecofusion-backend/internal/constants"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

// SessionUserShape is what /me returns and what the session stores.
type SessionUserShape struct {
	UserID        string `json:"user_id"`
	Fullname      string `json:"fullname"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	WalletAccount string `json:"wallet_account"`
}

// UserFinder abstracts login lookup so handlers can be tested without a database.
type UserFinder interface {
	FindByEmailAndPassword(ctx context.Context, email, password string) (*domain.User, error)
}

type Service struct {
	DB *gorm.DB
}

type RegisterInput struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	Fullname      string `json:"fullname"`
	WalletAccount string `json:"wallet_account"`
}

// Register creates a user bound to one wallet account. New users never get the admin role here;
// admins are promoted by the operator CLI.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	const op = "auth.register"
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if !validation.IsValidEmail(email) {
		return nil, apperr.Validation(op, "Invalid email format")
	}
	if !validation.IsValidPassword(in.Password) {
		return nil, apperr.Validation(op, "Password needs at least 8 characters with a letter, a digit and a symbol")
	}
	fullname := strings.TrimSpace(in.Fullname)
	if !validation.IsValidFullname(fullname) {
		return nil, apperr.Validation(op, "Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	}
	account, ok := validation.NormalizeAccount(in.WalletAccount)
	if !ok {
		return nil, apperr.Validation(op, "Invalid wallet account")
	}

	var existing domain.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, apperr.Validation(op, "Email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(op, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	u := &domain.User{
		Email:         email,
		PasswordHash:  string(hash),
		Fullname:      titleCase(fullname),
		Role:          constants.User,
		WalletAccount: account,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, apperr.Internal(op, err)
	}
	return u, nil
}

// SetRole changes a user's role. Used by the operator CLI.
func (s *Service) SetRole(ctx context.Context, email, role string) (*domain.User, error) {
	const op = "auth.set_role"
	if !constants.IsValidRole(role) {
		return nil, apperr.Validation(op, "unknown role "+role)
	}
	res := s.DB.WithContext(ctx).Model(&domain.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Update("role", role)
	if res.Error != nil {
		return nil, apperr.Internal(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound(op, "user not found")
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, apperr.Internal(op, err)
	}
	return &u, nil
}

func (s *Service) FindByEmailAndPassword(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, ErrEmailPasswordRequired
	}
	var u domain.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidEmail
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrIncorrectPassword
	}
	return &u, nil
}

// VerifyUser validates the session user and returns the /me shape.
func VerifyUser(sessionUser interface{}) (*SessionUserShape, error) {
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, ErrNotAuthenticated
	}
	userID, _ := m["user_id"].(string)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	return &SessionUserShape{
		UserID:        userID,
		Fullname:      str(m["fullname"]),
		Email:         str(m["email"]),
		Role:          str(m["role"]),
		WalletAccount: str(m["wallet_account"]),
	}, nil
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func titleCase(s string) string {
	var b strings.Builder
	capitalize := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !capitalize {
				b.WriteRune(' ')
				capitalize = true
			}
			continue
		}
		if capitalize {
			r = unicode.ToUpper(r)
			capitalize = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
