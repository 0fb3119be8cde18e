package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casino-engine/internal/middleware"
	"casino-engine/internal/models"
	"casino-engine/internal/seeds"
)

// SeedHandler exposes the player's seed pairs. Server seeds only leave
// through rotate and reveal.
type SeedHandler struct {
	vault *seeds.Vault
}

func NewSeedHandler(vault *seeds.Vault) *SeedHandler {
	return &SeedHandler{vault: vault}
}

func (h *SeedHandler) GetCurrent(c *gin.Context) {
	commitment, err := h.vault.Current(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Query("client_seed"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commitment.Info())
}

func (h *SeedHandler) Rotate(c *gin.Context) {
	var req models.RotateSeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	revealed, next, err := h.vault.Rotate(c.Request.Context(), c.GetInt64(middleware.ContextUserID), req.ClientSeed, req.NewClientSeed)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RotateSeedResponse{
		Revealed: revealed,
		Next:     next.Info(),
	})
}

func (h *SeedHandler) Reveal(c *gin.Context) {
	revealed, err := h.vault.Reveal(c.Request.Context(), c.GetInt64(middleware.ContextUserID), c.Query("client_seed"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revealed)
}
