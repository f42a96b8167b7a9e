package handlers

import (
	"net/http"
	"time"

	"yls-backend/internal/config"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(startTime).Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

// Ping handles GET /ping
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Contracts handles GET /api/contracts: the deployed addresses the
// frontend needs to build signatures and approvals.
func Contracts(c *gin.Context) {
	cfg := config.AppConfig
	c.JSON(http.StatusOK, gin.H{
		"chainId":           cfg.Blockchain.ChainID,
		"stakingContract":   cfg.Blockchain.StakingContract,
		"swapRouter":        cfg.Blockchain.SwapRouter,
		"ylsToken":          cfg.Blockchain.YLSToken,
		"wethAddress":       cfg.Blockchain.WETHAddress,
		"tradingStrategies": cfg.Blockchain.TradingStrategies,
	})
}
