package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"casino-engine/internal/middleware"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

const defaultPageSize = 50

type GameHandler struct {
	gameEngine *services.GameEngine
}

func NewGameHandler(gameEngine *services.GameEngine) *GameHandler {
	return &GameHandler{gameEngine: gameEngine}
}

func pageSize(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		return defaultPageSize
	}
	return limit
}

func (h *GameHandler) PlaceBet(c *gin.Context) {
	userID := c.GetInt64(middleware.ContextUserID)

	var req models.PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.gameEngine.PlaceBet(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"bet": models.PlaceBetResponse{
			BetID:          bet.ID,
			ServerSeedHash: bet.ServerSeedHash,
			ClientSeed:     bet.ClientSeed,
			Nonce:          bet.Nonce,
			State:          bet.State,
		},
	})
}

func (h *GameHandler) GetBet(c *gin.Context) {
	bet, err := h.gameEngine.Bet(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bet": bet})
}

func (h *GameHandler) CompleteBet(c *gin.Context) {
	ctx := c.Request.Context()

	bet, err := h.gameEngine.Bet(ctx, c.GetInt64(middleware.ContextUserID), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.gameEngine.CompleteBet(ctx, bet.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) CashOut(c *gin.Context) {
	result, err := h.gameEngine.CashOut(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) GetBetLedger(c *gin.Context) {
	entries, err := h.gameEngine.BetEntries(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *GameHandler) VerifyBet(c *gin.Context) {
	result, err := h.gameEngine.VerifyBet(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64(middleware.ContextUserID)
	currency := c.Query("currency")

	balance, err := h.gameEngine.Balance(c.Request.Context(), userID, currency)
	if err != nil {
		respondError(c, err)
		return
	}
	if currency == "" {
		currency = h.gameEngine.DefaultCurrency()
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		UserID:   userID,
		Currency: currency,
		Balance:  balance,
	})
}

func (h *GameHandler) GetBetHistory(c *gin.Context) {
	bets, err := h.gameEngine.History(c.Request.Context(), c.GetInt64(middleware.ContextUserID), pageSize(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bets":  bets,
		"count": len(bets),
	})
}

func (h *GameHandler) GetLedger(c *gin.Context) {
	entries, err := h.gameEngine.Ledger(c.Request.Context(), c.GetInt64(middleware.ContextUserID), pageSize(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// Verify recomputes an outcome from a revealed seed triple. It needs no
// account and touches no state.
func (h *GameHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.gameEngine.Verify(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// VoidBet is an operator action: it cancels an unsettled bet and refunds the
// stake.
func (h *GameHandler) VoidBet(c *gin.Context) {
	var req models.VoidBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.gameEngine.Void(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bet": bet})
}
