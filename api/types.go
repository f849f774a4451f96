package api

import "time"

// User is the public profile of an account holder
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	LastLogin  *string    `json:"last_login,omitempty"`
}

// Session is returned by login and registration
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RegisterRequest creates a new account
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=80"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

// LoginRequest signs in with email and password
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResetPasswordRequest sets a new password using an emailed token
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// UpdateProfileRequest changes profile fields; empty fields are left as is
type UpdateProfileRequest struct {
	FirstName   string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName    string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,max=20"`
}

// ChangePasswordRequest replaces the current password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// HealthStatus is the body of the health endpoint
type HealthStatus struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services,omitempty"`
}

// TradingAccount is a funded or challenge account
type TradingAccount struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Currency  string     `json:"currency"`
	Balance   float64    `json:"balance"`
	Equity    float64    `json:"equity"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// TradingAccountInput creates or updates a trading account
type TradingAccountInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Type     string `json:"type" validate:"required,oneof=demo challenge funded"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// Trade is one position on a trading account
type Trade struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	StopLoss   *float64   `json:"stop_loss,omitempty"`
	TakeProfit *float64   `json:"take_profit,omitempty"`
	Status     string     `json:"status"`
	PnL        float64    `json:"pnl"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// TradeInput opens a trade
type TradeInput struct {
	AccountID  string   `json:"account_id" validate:"required"`
	Symbol     string   `json:"symbol" validate:"required"`
	Side       string   `json:"side" validate:"required,oneof=buy sell"`
	Quantity   float64  `json:"quantity" validate:"gt=0"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// TradeUpdate moves the protective levels of an open trade
type TradeUpdate struct {
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// Challenge is an evaluation program a trader can enroll in
type Challenge struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	AccountSize    float64 `json:"account_size"`
	ProfitTarget   float64 `json:"profit_target"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	DurationDays   int     `json:"duration_days"`
	Price          float64 `json:"price"`
	Status         string  `json:"status"`
	EnrolledUserID string  `json:"enrolled_user_id,omitempty"`
}

// LeaderboardEntry ranks one trader
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	ChallengeID string  `json:"challenge_id,omitempty"`
	ProfitPct   float64 `json:"profit_pct"`
	Trades      int     `json:"trades"`
}
