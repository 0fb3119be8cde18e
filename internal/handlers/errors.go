package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"casino-engine/internal/models"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// First match wins; wrapped errors can carry more than one sentinel.
var errorMappings = []errorMapping{
	{models.ErrBetVoided, http.StatusConflict, "bet_voided"},
	{models.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{models.ErrInvalidParams, http.StatusBadRequest, "invalid_params"},
	{models.ErrBetNotFound, http.StatusNotFound, "bet_not_found"},
	{models.ErrSeedNotFound, http.StatusNotFound, "seed_not_found"},
	{models.ErrNotRotated, http.StatusConflict, "not_rotated"},
	{models.ErrExhaustedSeed, http.StatusConflict, "seed_exhausted"},
	{models.ErrSeedState, http.StatusConflict, "seed_state"},
	{models.ErrResolutionConflict, http.StatusConflict, "resolution_conflict"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrDuplicateEntry, http.StatusConflict, "duplicate_entry"},
	{models.ErrMalformedOutcome, http.StatusUnprocessableEntity, "malformed_outcome"},
	{models.ErrSettlementIO, http.StatusServiceUnavailable, "settlement_unavailable"},
}

func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{
				"error":   m.code,
				"details": err.Error(),
			})
			return
		}
	}

	log.WithError(err).WithField("path", c.FullPath()).Error("Unhandled request error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"details": err.Error(),
	})
}
