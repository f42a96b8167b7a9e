package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"yls-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// AdminAuthHandler authenticates operators: password + TOTP in exchange
// for a short-lived JWT used by the admin endpoints.
type AdminAuthHandler struct {
	password   string
	totpSecret string
	jwtSecret  []byte
	tokenTTL   time.Duration
}

// AdminLoginRequest admin login body
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login result
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminClaims JWT claims issued on successful login
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewAdminAuthHandler(cfg config.AdminConfig) *AdminAuthHandler {
	if cfg.Password == "" || cfg.TOTPSecret == "" {
		logrus.Warn("⚠️ [Admin] ADMIN_PASSWORD or ADMIN_TOTP_SECRET not set, admin login disabled")
	}
	if cfg.JWTSecret == "" {
		logrus.Warn("⚠️ [Admin] ADMIN_JWT_SECRET not set, admin login disabled")
	}
	return &AdminAuthHandler{
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		jwtSecret:  []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
	}
}

// Login handles POST /api/admin/auth/login
func (h *AdminAuthHandler) Login(c *gin.Context) {
	if h.password == "" || h.totpSecret == "" || len(h.jwtSecret) == 0 {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Admin authentication is not configured",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	// Generic message for both password and TOTP failures
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		logrus.WithField("ip", c.ClientIP()).Warn("⚠️ [Admin] Login failed: wrong password")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		logrus.WithField("ip", c.ClientIP()).Warn("⚠️ [Admin] Login failed: invalid TOTP code")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "yls-backend",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to issue token",
		})
		return
	}

	logrus.WithField("ip", c.ClientIP()).Info("✅ [Admin] Login successful")
	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// ValidateToken parses and verifies an admin JWT
func (h *AdminAuthHandler) ValidateToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
