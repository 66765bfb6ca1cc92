package rest

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter 註冊所有 REST 路由
func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(logger), Recovery(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	accounts := r.Group("/api/accounts")
	accounts.POST("", h.CreateAccount)
	accounts.GET("", h.ListAccounts)
	accounts.POST("/transfer", h.Transfer)
	accounts.GET("/:id", h.GetAccount)
	accounts.PUT("/:id", h.UpdateAccount)
	accounts.PATCH("/:id", h.UpdateAccount)
	accounts.DELETE("/:id", h.DeleteAccount)
	accounts.POST("/:id/deposit", h.Deposit)
	accounts.POST("/:id/withdraw", h.Withdraw)
	accounts.GET("/:id/transactions", h.ListTransactions)
	return r
}
