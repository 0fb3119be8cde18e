package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casino-engine/internal/middleware"
	"casino-engine/internal/services"
)

type UserHandler struct {
	gameEngine *services.GameEngine
}

func NewUserHandler(gameEngine *services.GameEngine) *UserHandler {
	return &UserHandler{gameEngine: gameEngine}
}

// GetCurrentUser returns the caller's identity and default-currency balance,
// funding a first-time wallet.
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetInt64(middleware.ContextUserID)

	balance, err := h.gameEngine.EnsureWallet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"session_id": c.GetString(middleware.ContextSessionID),
		"wallet": gin.H{
			"currency": h.gameEngine.DefaultCurrency(),
			"balance":  balance,
		},
	})
}
