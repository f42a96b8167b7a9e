// Package handlers implements the HTTP surface of the relay backend.
package handlers

import (
	"net/http"

	"yls-backend/internal/config"
	"yls-backend/internal/services"
	"yls-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RelayHandler exposes the gasless staking pipeline
type RelayHandler struct {
	relay   *services.RelayService
	relayer *services.RelayerService
}

func NewRelayHandler(relay *services.RelayService, relayer *services.RelayerService) *RelayHandler {
	return &RelayHandler{relay: relay, relayer: relayer}
}

// RelayStake handles POST /api/relay/stake
func (h *RelayHandler) RelayStake(c *gin.Context) {
	var req types.RelayStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	record, err := h.relay.RelayStake(c.Request.Context(), &req)
	if err != nil {
		writeRelayError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.RelayStakeResponse{
		Success: true,
		TxHash:  record.TxHash,
		Message: "Stake transaction submitted",
	})
}

// GetTransaction handles GET /api/relay/tx/:hash
func (h *RelayHandler) GetTransaction(c *gin.Context) {
	hash := c.Param("hash")
	if len(hash) != 66 || hash[:2] != "0x" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction hash"})
		return
	}

	record, err := h.relayer.GetTransaction(hash)
	if err != nil {
		writeRelayError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// writeRelayError maps a pipeline error kind to its HTTP status. The
// response body is {"error": ...}; the underlying cause is added as
// "details" only outside production.
func writeRelayError(c *gin.Context, err error) {
	re, ok := err.(*services.RelayError)
	if !ok {
		re = services.NewInternalError(err)
	}

	var status int
	switch re.Kind {
	case services.ErrKindValidation, services.ErrKindExpired:
		status = http.StatusBadRequest
	case services.ErrKindAuthentication:
		status = http.StatusUnauthorized
	case services.ErrKindReplay:
		status = http.StatusConflict
	case services.ErrKindUpstream:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError || re.Kind == services.ErrKindUpstream {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("❌ [API] Request failed")
	}

	c.JSON(status, errorBody(re))
}

// writeChainReadError is the variant for the read-only chain endpoints,
// where an upstream failure is the server's problem and reported as a
// plain 500. Bad gateway is reserved for the relay pipeline.
func writeChainReadError(c *gin.Context, err error) {
	re, ok := err.(*services.RelayError)
	if ok && re.Kind == services.ErrKindUpstream {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("❌ [API] Chain read failed")
		c.JSON(http.StatusInternalServerError, errorBody(re))
		return
	}
	writeRelayError(c, err)
}

func errorBody(re *services.RelayError) gin.H {
	body := gin.H{"error": re.Message}
	if re.Err != nil && config.AppConfig != nil && config.AppConfig.IsDevelopment() {
		body["details"] = re.Err.Error()
	}
	return body
}
