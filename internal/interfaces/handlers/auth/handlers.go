package auth

import (
	"context"
	"errors"

	authsvc "ecofusion-backend/internal/application/auth"
	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/middleware"
	"ecofusion-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// Registrar creates accounts; *authsvc.Service implements it.
type Registrar interface {
	Register(ctx context.Context, in authsvc.RegisterInput) (*domain.User, error)
}

type Handlers struct {
	UserFinder authsvc.UserFinder
	Registrar  Registrar
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register POST /api/v1/auth/register. The new user is logged in straight away.
func (h *Handlers) Register(c *fiber.Ctx) error {
	if h.Registrar == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	user, err := h.Registrar.Register(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Registration successful", fiber.Map{"user": sessionShape(user)}, nil)
}

// Login POST /api/v1/auth/login
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(c.UserContext(), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, authsvc.ErrEmailPasswordRequired):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
		return response.Error(c, err.Error(), fiber.StatusUnauthorized, nil)
	default:
		log.Error().Err(err).Msg("login lookup failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Login successful", fiber.Map{"user": sessionShape(user)}, nil)
}

// startSession rotates the session id, stores the user in it and tracks it under the user's
// session set so every session of a user can be revoked together.
func (h *Handlers) startSession(c *fiber.Ctx, user *domain.User) error {
	sessionID := middleware.RegenerateSessionID(c)
	shape := sessionShape(user)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:        shape.UserID,
		Fullname:      shape.Fullname,
		Email:         shape.Email,
		Role:          shape.Role,
		WalletAccount: shape.WalletAccount,
	})
	if err := h.Rdb.SAdd(c.UserContext(), userSessionsPrefix+shape.UserID, sessionID).Err(); err != nil {
		log.Error().Err(err).Str("user_id", shape.UserID).Msg("failed to track session")
		return err
	}
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)
	return nil
}

func sessionShape(u *domain.User) authsvc.SessionUserShape {
	return authsvc.SessionUserShape{
		UserID:        u.UserID.String(),
		Fullname:      u.Fullname,
		Email:         u.Email,
		Role:          u.Role,
		WalletAccount: u.WalletAccount,
	}
}

// Me GET /api/v1/auth/me
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionUser := middleware.GetUser(c)
	user, err := authsvc.VerifyUser(sessionUser)
	if err != nil {
		log.Debug().Str("path", c.Path()).
			Bool("session_id_present", middleware.GetSessionID(c) != "").
			Bool("session_user_nil", sessionUser == nil).
			Msg("auth/me: not authenticated")
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

// Logout DELETE /api/v1/auth/logout
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := c.UserContext()

	if sessionID != "" {
		if m, ok := middleware.GetUser(c).(map[string]interface{}); ok {
			if userID, _ := m["user_id"].(string); userID != "" {
				_ = h.Rdb.SRem(ctx, userSessionsPrefix+userID, sessionID).Err()
			}
		}
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}
	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}
