package handlers

import (
	"net/http"

	"yls-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// StakingHandler serves aggregated staking reads
type StakingHandler struct {
	chainData *services.ChainDataService
}

func NewStakingHandler(chainData *services.ChainDataService) *StakingHandler {
	return &StakingHandler{chainData: chainData}
}

// GetStakingInfo handles GET /api/staking/:address
func (h *StakingHandler) GetStakingInfo(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	info, err := h.chainData.GetStakingInfo(c.Request.Context(), common.HexToAddress(address))
	if err != nil {
		writeChainReadError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}
