package handlers

import (
	"net/http"

	"yls-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// SwapHandler serves swap quotes
type SwapHandler struct {
	chainData *services.ChainDataService
}

func NewSwapHandler(chainData *services.ChainDataService) *SwapHandler {
	return &SwapHandler{chainData: chainData}
}

// GetQuote handles GET /api/swap/quote?amountIn=&tokenIn=&tokenOut=
//
// A router failure does not fail the request: the response downgrades to
// the static fallback rate and is marked degraded.
func (h *SwapHandler) GetQuote(c *gin.Context) {
	amountIn := c.Query("amountIn")
	tokenIn := c.Query("tokenIn")
	tokenOut := c.Query("tokenOut")

	if amountIn == "" || tokenIn == "" || tokenOut == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters: amountIn, tokenIn, tokenOut"})
		return
	}
	if !common.IsHexAddress(tokenIn) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tokenIn address"})
		return
	}
	if !common.IsHexAddress(tokenOut) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tokenOut address"})
		return
	}

	quote, err := h.chainData.GetSwapQuote(c.Request.Context(), amountIn,
		common.HexToAddress(tokenIn), common.HexToAddress(tokenOut))
	if err != nil {
		writeChainReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}
