package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves signup and login, the only endpoints outside the Auth
// middleware: they are what produces a token in the first place.
type AuthHandler struct {
	users     repository.UserRepository
	tenants   repository.TenantRepository
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthHandler(store repository.Store, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:     store.Users,
		tenants:   store.Tenants,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// signupRequest is the body of POST /v1/auth/signup.
//
// Why can signup create a tenant?
//   - Someone has to be first in a workspace. Giving tenant_name creates the
//     workspace and its first user in one call.
//   - Everyone after that passes tenant_id. Knowing the id is the invite.
type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
	// Exactly one of TenantName (start a new workspace) and TenantID (join
	// an existing one) is expected.
	TenantName string     `json:"tenant_name" binding:"max=100"`
	TenantID   *uuid.UUID `json:"tenant_id"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Signup handles POST /v1/auth/signup. It creates the user in a new tenant,
// or in an existing one when tenant_id is given, and returns a token.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tenantName := strings.TrimSpace(req.TenantName)
	if (req.TenantID == nil) == (tenantName == "") {
		badRequest(c, "exactly one of tenant_name and tenant_id is required")
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		writeError(c, h.logger, "signup failed", apperr.Persistence("check user", err))
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	// bcrypt salts every hash, so equal passwords never share one.
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(c, h.logger, "signup failed", err)
		return
	}

	tenant, err := h.tenant(ctx, req.TenantID, tenantName)
	if err != nil {
		writeError(c, h.logger, "signup failed", err)
		return
	}

	user, err := h.users.Create(ctx, tenant.ID, email, strings.TrimSpace(req.DisplayName), string(hash))
	if err != nil {
		// Lost a race with a concurrent signup for the same email.
		if errors.Is(err, apperr.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		writeError(c, h.logger, "signup failed", apperr.Persistence("create user", err))
		return
	}

	token, err := auth.GenerateToken(user.ID, tenant.ID, user.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		writeError(c, h.logger, "signup failed", err)
		return
	}

	h.logger.Info("user signed up",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
	)
	c.JSON(http.StatusCreated, authResponse{Token: token})
}

func (h *AuthHandler) tenant(ctx context.Context, id *uuid.UUID, name string) (*models.Tenant, error) {
	if id == nil {
		t, err := h.tenants.Create(ctx, name)
		return t, apperr.Persistence("create tenant", err)
	}
	t, err := h.tenants.GetByID(ctx, *id)
	if err != nil {
		return nil, apperr.Persistence("get tenant", err)
	}
	if t == nil {
		return nil, apperr.NotFound("tenant")
	}
	return t, nil
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		writeError(c, h.logger, "login failed", apperr.Persistence("find user", err))
		return
	}

	// One message for both cases so the response does not reveal which
	// emails are registered.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.TenantID, user.Email, h.jwtSecret, h.tokenTTL)
	if err != nil {
		writeError(c, h.logger, "login failed", err)
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token})
}
