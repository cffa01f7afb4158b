package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/campus-iam/internal/usecase"
)

// AuthHandler exposes the two-phase login endpoints.
type AuthHandler struct {
	login    *usecase.LoginService
	tokenTTL int
}

// NewAuthHandler constructs AuthHandler. tokenTTLSeconds is echoed in
// successful verification responses.
func NewAuthHandler(login *usecase.LoginService, tokenTTLSeconds int) *AuthHandler {
	return &AuthHandler{login: login, tokenTTL: tokenTTLSeconds}
}

// RegisterRoutes binds the login routes, applying optional middleware ahead
// of the handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requestMW, verifyMW, resendMW []gin.HandlerFunc) {
	r.POST("/login/otp", chain(requestMW, h.requestOTP)...)
	r.POST("/login/verify", chain(verifyMW, h.verifyOTP)...)
	r.POST("/login/resend", chain(resendMW, h.resendOTP)...)
}

// chain copies the middleware slice before appending so callers can reuse it
// across routes.
func chain(mw []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := append([]gin.HandlerFunc{}, mw...)
	return append(out, handler)
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrNoPendingChallenge, Status: http.StatusNotFound, Message: "no pending verification code"},
	{Err: usecase.ErrInvalidOTP, Status: http.StatusUnauthorized, Message: "invalid verification code"},
	{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many attempts, request a new code"},
}

func (h *AuthHandler) requestOTP(c *gin.Context) {
	var req LoginOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.login.RequestOTP(c.Request.Context(), usecase.LoginRequestInput{
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "failed to process login request")
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{
		Email:     result.Email,
		ExpiresIn: result.ExpiresIn,
	})
}

func (h *AuthHandler) verifyOTP(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	result, err := h.login.VerifyOTP(c.Request.Context(), usecase.LoginVerifyInput{
		Email:    req.Email,
		Code:     req.Code,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "failed to verify code")
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresIn: h.tokenTTL,
		User:      newUserSummary(result.User),
	})
}

func (h *AuthHandler) resendOTP(c *gin.Context) {
	var req OTPResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	result, err := h.login.ResendOTP(c.Request.Context(), usecase.LoginResendInput{
		Email:    req.Email,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "failed to resend code")
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{
		Email:     result.Email,
		ExpiresIn: result.ExpiresIn,
	})
}
