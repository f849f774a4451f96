package fakeapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tradesense/tradesense-go/api"
	"github.com/tradesense/tradesense-go/apierror"
)

func (s *Server) routes(e *echo.Echo) {
	e.GET("/health", s.health)

	authGroup := e.Group("/api/v1/auth")
	authGroup.POST("/register", s.register)
	authGroup.POST("/login", s.login)
	authGroup.POST("/refresh", s.refreshTokens)
	authGroup.POST("/forgot-password", s.acknowledge("If the email exists, a reset link has been sent"))
	authGroup.POST("/reset-password", s.resetPassword)
	authGroup.POST("/verify-email", s.acknowledge("Email verified successfully"))
	authGroup.POST("/resend-verification", s.acknowledge("Verification email sent"))
	authGroup.POST("/logout", s.logout, s.requireAuth)
	authGroup.GET("/me", s.me, s.requireAuth)

	users := e.Group("/api/v1/users", s.requireAuth)
	users.GET("/me", s.me)
	users.PUT("/me", s.updateProfile)
	users.DELETE("/me", s.deleteAccount)
	users.POST("/change-password", s.changePassword)

	accounts := e.Group("/api/v1/accounts", s.requireAuth)
	accounts.GET("", s.listAccounts)
	accounts.POST("", s.createAccount)
	accounts.GET("/:id", s.getAccount)
	accounts.PUT("/:id", s.updateAccount)
	accounts.DELETE("/:id", s.deleteTradingAccount)

	trades := e.Group("/api/v1/trades", s.requireAuth)
	trades.GET("", s.listTrades)
	trades.POST("", s.createTrade)
	trades.GET("/:id", s.getTrade)
	trades.PUT("/:id", s.updateTrade)
	trades.POST("/:id/close", s.closeTrade)

	challenges := e.Group("/api/v1/challenges", s.requireAuth)
	challenges.GET("", s.listChallenges)
	challenges.GET("/:id", s.getChallenge)
	challenges.POST("/:id/enroll", s.enroll)

	leaderboard := e.Group("/api/v1/leaderboard", s.requireAuth)
	leaderboard.GET("", s.globalLeaderboard)
	leaderboard.GET("/challenge/:id", s.challengeLeaderboard)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, api.HealthStatus{
		Status:   "healthy",
		Version:  "fake",
		Services: map[string]string{"database": "healthy", "cache": "healthy"},
	})
}

type sessionData struct {
	User         api.User `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
}

func (s *Server) register(c echo.Context) error {
	var req api.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := s.users[key]; exists {
		fields := apierror.FieldErrors{}
		fields.Add("email", "Email already registered")
		return c.JSON(http.StatusBadRequest, validationFailure(fields))
	}
	now := time.Now().UTC()
	u := &user{
		User: api.User{
			ID:        uuid.NewString(),
			Username:  req.Username,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      "trader",
			IsActive:  true,
			CreatedAt: &now,
		},
		password: req.Password,
	}
	s.users[key] = u
	accessToken, refreshToken := s.issue(u.ID)
	return c.JSON(http.StatusCreated, success("Registration successful", sessionData{
		User: u.User, AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "Bearer",
	}))
}

func (s *Server) login(c echo.Context) error {
	var req api.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(req.Email)]
	if !ok || u.password != req.Password {
		return c.JSON(http.StatusUnauthorized, failure("AuthenticationError", "Invalid email or password"))
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, failure("AuthenticationError", "Account is deactivated"))
	}
	last := time.Now().UTC().Format(time.RFC3339)
	u.LastLogin = &last
	accessToken, refreshToken := s.issue(u.ID)
	return c.JSON(http.StatusOK, success("Login successful", sessionData{
		User: u.User, AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "Bearer",
	}))
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshTokens rotates the pair; the presented refresh token is spent
func (s *Server) refreshTokens(c echo.Context) error {
	s.refreshCount.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	if s.failRefreshes.Load() {
		return c.JSON(http.StatusInternalServerError, failure("ServerError", "An error occurred during token refresh"))
	}

	var body refreshBody
	_ = c.Bind(&body)
	token := body.RefreshToken
	if token == "" {
		token = bearer(c.Request().Header.Get(echo.HeaderAuthorization))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[token]
	if !ok {
		return c.JSON(http.StatusUnauthorized, failure("AuthenticationError", "Invalid refresh token"))
	}
	delete(s.refresh, token)
	accessToken, refreshToken := s.issue(userID)
	return c.JSON(http.StatusOK, success("Token refreshed successfully", map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	}))
}

func (s *Server) acknowledge(message string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body struct {
			Email string `json:"email"`
			Token string `json:"token"`
		}
		if err := c.Bind(&body); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, success(message, nil))
	}
}

func (s *Server) resetPassword(c echo.Context) error {
	var req api.ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if !strings.HasPrefix(req.Token, "reset-") {
		return c.JSON(http.StatusBadRequest, failure("ValidationError", "Invalid or expired reset token"))
	}
	return c.JSON(http.StatusOK, success("Password reset successful", nil))
}

func (s *Server) logout(c echo.Context) error {
	token := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
	s.mu.Lock()
	delete(s.access, token)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, success("Logout successful", nil))
}

// userByID finds a user; callers hold mu
func (s *Server) userByID(id string) *user {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Server) me(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByID(currentUserID(c))
	if u == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	return c.JSON(http.StatusOK, success("", map[string]any{"user": u.User}))
}

func (s *Server) updateProfile(c echo.Context) error {
	var req api.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByID(currentUserID(c))
	if u == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if req.FirstName != "" {
		u.FirstName = req.FirstName
	}
	if req.LastName != "" {
		u.LastName = req.LastName
	}
	return c.JSON(http.StatusOK, success("Profile updated successfully", map[string]any{"user": u.User}))
}

func (s *Server) changePassword(c echo.Context) error {
	var req api.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByID(currentUserID(c))
	if u == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if u.password != req.CurrentPassword {
		fields := apierror.FieldErrors{}
		fields.Add("current_password", "Current password is incorrect")
		return c.JSON(http.StatusBadRequest, validationFailure(fields))
	}
	u.password = req.NewPassword
	return c.JSON(http.StatusOK, success("Password changed successfully", nil))
}

func (s *Server) deleteAccount(c echo.Context) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByID(currentUserID(c))
	if u == nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if u.password != req.Password {
		return c.JSON(http.StatusBadRequest, failure("ValidationError", "Password is incorrect"))
	}
	delete(s.users, strings.ToLower(u.Email))
	for token, id := range s.access {
		if id == u.ID {
			delete(s.access, token)
		}
	}
	return c.JSON(http.StatusOK, success("Account deleted successfully", nil))
}
