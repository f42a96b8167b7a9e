package handlers

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"yls-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminHandler exposes relayer operational state (JWT protected)
type AdminHandler struct {
	relayer *services.RelayerService
	balance func(ctx context.Context) (*big.Int, error)
}

func NewAdminHandler(relayer *services.RelayerService, balance func(ctx context.Context) (*big.Int, error)) *AdminHandler {
	return &AdminHandler{relayer: relayer, balance: balance}
}

// RelayerStatus handles GET /api/admin/relayer/status
func (h *AdminHandler) RelayerStatus(c *gin.Context) {
	status := gin.H{
		"address": h.relayer.Address().Hex(),
		"pending": h.relayer.PendingCount(),
	}

	if nonce, synced := h.relayer.CurrentNonce(); synced {
		status["nonce"] = nonce
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if balance, err := h.balance(ctx); err == nil {
		status["balance_eth"] = decimal.NewFromBigInt(balance, -18).String()
	} else {
		status["balance_error"] = err.Error()
	}

	c.JSON(http.StatusOK, status)
}
