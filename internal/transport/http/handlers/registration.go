package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/campus-iam/internal/usecase"
)

// RegistrationHandler exposes the two-phase registration endpoints.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	tokenTTL     int
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService, tokenTTLSeconds int) *RegistrationHandler {
	return &RegistrationHandler{registration: registration, tokenTTL: tokenTTLSeconds}
}

// RegisterRoutes binds the registration routes, applying optional middleware
// ahead of the handlers.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup, requestMW, verifyMW, resendMW []gin.HandlerFunc) {
	r.POST("/register", chain(requestMW, h.request)...)
	r.POST("/register/verify", chain(verifyMW, h.verify)...)
	r.POST("/register/resend", chain(resendMW, h.resend)...)
}

var registrationErrorCases = []ErrorCase{
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
	{Err: usecase.ErrDivisionNotFound, Status: http.StatusUnprocessableEntity, Message: "unknown division for department"},
	{Err: usecase.ErrNoPendingChallenge, Status: http.StatusNotFound, Message: "no pending verification code"},
	{Err: usecase.ErrInvalidOTP, Status: http.StatusUnauthorized, Message: "invalid verification code"},
	{Err: usecase.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many attempts, register again"},
}

func (h *RegistrationHandler) request(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Request(c.Request.Context(), usecase.RegistrationInput{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		ContactNumber: req.ContactNumber,
		Role:          req.Role,
		RollNumber:    req.RollNumber,
		YearOfStudy:   req.YearOfStudy,
		Division:      req.Division,
		Department:    req.Department,
		Designation:   req.Designation,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases, http.StatusInternalServerError, "failed to process registration")
		return
	}

	c.JSON(http.StatusAccepted, ChallengeResponse{
		Email:     result.Email,
		ExpiresIn: result.ExpiresIn,
	})
}

func (h *RegistrationHandler) verify(c *gin.Context) {
	var req OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	result, err := h.registration.Verify(c.Request.Context(), usecase.RegistrationVerifyInput{
		Email:    req.Email,
		Code:     req.Code,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases, http.StatusInternalServerError, "failed to complete registration")
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresIn: h.tokenTTL,
		User:      newUserSummary(result.User),
	})
}

func (h *RegistrationHandler) resend(c *gin.Context) {
	var req OTPResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	result, err := h.registration.Resend(c.Request.Context(), usecase.RegistrationResendInput{
		Email:    req.Email,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases, http.StatusInternalServerError, "failed to resend code")
		return
	}

	c.JSON(http.StatusOK, ChallengeResponse{
		Email:     result.Email,
		ExpiresIn: result.ExpiresIn,
	})
}
