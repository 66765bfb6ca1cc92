package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/dto"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// statusFor 把 domain 錯誤對應到 HTTP 狀態碼
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPageOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLedgerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(code, dto.ErrorResponse{Status: http.StatusText(code)})
		return
	}

	resp := dto.ErrorResponse{Status: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Details = []dto.FieldError{{Field: verr.Field, Message: verr.Reason, Type: "invalid"}}
	}
	c.JSON(code, resp)
}

func respondValidation(c *gin.Context, errs []dto.FieldError) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Status:  "invalid request data",
		Details: errs,
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Status: message})
}
