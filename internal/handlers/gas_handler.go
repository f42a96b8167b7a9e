package handlers

import (
	"net/http"

	"yls-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// GasHandler serves cached gas estimates
type GasHandler struct {
	chainData *services.ChainDataService
}

func NewGasHandler(chainData *services.ChainDataService) *GasHandler {
	return &GasHandler{chainData: chainData}
}

// GetEstimate handles GET /api/gas/estimate
func (h *GasHandler) GetEstimate(c *gin.Context) {
	estimate, err := h.chainData.GetGasEstimate(c.Request.Context())
	if err != nil {
		writeChainReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, estimate)
}
