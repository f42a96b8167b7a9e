package services

import (
	"context"
	"math/big"
	"time"

	"yls-backend/internal/metrics"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	monitorInterval = 60 * time.Second

	// Warn when the relayer drops below 0.05 ETH; it pays every stake's gas
	lowBalanceThresholdWei = 5e16
)

// MonitoringService periodically samples the relayer account and exports
// balance/nonce gauges. It also logs a warning when the balance runs low
// enough to threaten relay availability.
type MonitoringService struct {
	relayer *RelayerService
	stopCh  chan struct{}
}

func NewMonitoringService(relayer *RelayerService) *MonitoringService {
	return &MonitoringService{
		relayer: relayer,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the sampling loop
func (s *MonitoringService) Start() {
	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		logrus.Info("✅ [Monitor] Relayer monitoring started")

		s.sample()
		for {
			select {
			case <-ticker.C:
				s.sample()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sampling loop
func (s *MonitoringService) Stop() {
	close(s.stopCh)
}

func (s *MonitoringService) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), chainReadTimeout)
	defer cancel()

	addr := s.relayer.Address()
	balance, err := s.relayer.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ [Monitor] Failed to fetch relayer balance")
		return
	}

	balanceEth := decimal.NewFromBigInt(balance, -18)
	ethFloat, _ := balanceEth.Float64()
	metrics.RelayerBalance.WithLabelValues(addr.Hex()).Set(ethFloat)

	if nonce, synced := s.relayer.CurrentNonce(); synced {
		metrics.RelayerNonce.Set(float64(nonce))
	}

	if balance.Cmp(big.NewInt(lowBalanceThresholdWei)) < 0 {
		logrus.WithFields(logrus.Fields{
			"address": addr.Hex(),
			"balance": balanceEth.String() + " ETH",
		}).Warn("⚠️ [Monitor] Relayer balance low, top up required")
	}
}
