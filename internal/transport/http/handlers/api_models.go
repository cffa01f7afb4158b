package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/campuslink/campus-iam/internal/usecase"
)

// ErrorResponse represents a generic error payload with the request ID for
// debugging.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response with the request ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	requestID, _ := c.Get("request_id")
	requestIDStr, _ := requestID.(string)

	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestIDStr,
	}
}

// UserSummary describes the account slice returned after verification.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func newUserSummary(user usecase.AccountSummary) UserSummary {
	return UserSummary{
		ID:       user.UserID,
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
	}
}

// LoginOTPRequest defines the payload for the first login phase.
type LoginOTPRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// OTPVerifyRequest defines the payload for both verification endpoints.
type OTPVerifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// OTPResendRequest defines the payload for both resend endpoints.
type OTPResendRequest struct {
	Email string `json:"email" binding:"required"`
}

// ChallengeResponse reports an issued one-time code challenge.
type ChallengeResponse struct {
	Email     string `json:"email"`
	ExpiresIn int    `json:"expires_in"`
}

// SessionResponse describes a successful verification.
type SessionResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int         `json:"expires_in"`
	User      UserSummary `json:"user"`
}

// RegisterRequest is the full candidate record for the registration flow.
type RegisterRequest struct {
	Username      string `json:"username" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	ContactNumber string `json:"contact_number"`
	Role          string `json:"role" binding:"required"`
	RollNumber    string `json:"roll_number"`
	YearOfStudy   int    `json:"year_of_study"`
	Division      string `json:"division"`
	Department    string `json:"department"`
	Designation   string `json:"designation"`
}
