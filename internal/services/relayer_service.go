package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"yls-backend/internal/config"
	"yls-backend/internal/events"
	"yls-backend/internal/metrics"
	"yls-backend/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	receiptCheckInterval = 30 * time.Second
	retryBaseBackoff     = 500 * time.Millisecond
	feeBumpPercent       = 25 // applied when the node rejects the tx as underpriced
)

// ChainSubmitter is the subset of ethclient.Client the relayer needs.
type ChainSubmitter interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// RelayerService owns the relayer account. All nonce allocation and
// transaction sending happens under a single mutex so two relay requests
// can never race for the same nonce.
type RelayerService struct {
	client    ChainSubmitter
	signer    SigningStrategy
	chainData *ChainDataService
	db        *gorm.DB // nil disables persistence and the receipt checker
	publisher *events.Publisher

	chainID  *big.Int
	contract common.Address
	gasLimit uint64

	submitTimeout time.Duration
	maxRetries    int

	mu          sync.Mutex
	nonce       uint64
	nonceSynced bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRelayerService wires the submitter. The signing strategy determines
// the relayer address; the nonce is synced lazily on first submission.
func NewRelayerService(client ChainSubmitter, signer SigningStrategy, chainData *ChainDataService, db *gorm.DB, publisher *events.Publisher, cfg *config.Config) *RelayerService {
	return &RelayerService{
		client:        client,
		signer:        signer,
		chainData:     chainData,
		db:            db,
		publisher:     publisher,
		chainID:       big.NewInt(int64(cfg.Blockchain.ChainID)),
		contract:      common.HexToAddress(cfg.Blockchain.StakingContract),
		gasLimit:      cfg.Blockchain.GasLimit,
		submitTimeout: cfg.Relay.SubmitTimeout,
		maxRetries:    cfg.Relay.MaxRetries,
		stopCh:        make(chan struct{}),
	}
}

// Address returns the relayer account address
func (s *RelayerService) Address() common.Address {
	return s.signer.Address()
}

// CurrentNonce reports the locally tracked nonce (for the admin status API)
func (s *RelayerService) CurrentNonce() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce, s.nonceSynced
}

// SubmitStake wraps the authorization in a stakeFor call and submits it
// from the relayer account. It returns once the transaction is accepted
// into the mempool; confirmation is tracked asynchronously.
//
// Retry policy, applied inside the nonce critical section:
//   - transient network errors: up to maxRetries attempts, same nonce,
//     exponential backoff
//   - nonce errors ("nonce too low", "already known"): resync the nonce
//     from the node and retry once
//   - underpriced: refresh fees (at least a 25% bump) and retry once
//
// Any other error, or retry exhaustion, fails the submission. The caller's
// replay record stays consumed either way.
func (s *RelayerService) SubmitStake(ctx context.Context, auth *StakeAuthorization, txID string) (*models.RelayedTransaction, error) {
	if txID == "" {
		txID = uuid.New().String()
	}

	calldata, err := stakingABI.Pack("stakeFor", auth.User, auth.PoolID, auth.Amount, auth.Deadline, auth.Signature)
	if err != nil {
		return nil, NewInternalError(fmt.Errorf("failed to encode stakeFor call: %w", err))
	}

	record := &models.RelayedTransaction{
		ID:       txID,
		UserAddr: strings.ToLower(auth.User.Hex()),
		PoolID:   auth.PoolID.Uint64(),
		Amount:   auth.Amount.String(),
		Deadline: auth.DeadlineTime(),
		Status:   models.RelayedTransactionStatusSubmitted,
	}

	start := time.Now()
	s.mu.Lock()
	signedTx, submitErr := s.submitLocked(ctx, calldata)
	if submitErr == nil {
		s.nonce++
		record.Nonce = signedTx.Nonce()
		record.TxHash = signedTx.Hash().Hex()
		metrics.RelayerNonce.Set(float64(s.nonce))
	}
	s.mu.Unlock()
	metrics.RelaySubmissionDuration.Observe(time.Since(start).Seconds())

	if submitErr != nil {
		record.Status = models.RelayedTransactionStatusFailed
		record.LastError = submitErr.Error()
		s.saveRecord(record)
		s.publishEvent(events.SubjectStakeFailed, record)
		return nil, submitErr
	}

	s.saveRecord(record)
	s.publishEvent(events.SubjectStakeSubmitted, record)

	logrus.WithFields(logrus.Fields{
		"tx_hash": record.TxHash,
		"user":    record.UserAddr,
		"pool_id": record.PoolID,
		"nonce":   record.Nonce,
	}).Info("✅ [Relayer] Stake transaction submitted")

	return record, nil
}

// submitLocked builds, signs and sends the transaction. Caller holds s.mu.
func (s *RelayerService) submitLocked(ctx context.Context, calldata []byte) (*ethtypes.Transaction, error) {
	if err := s.ensureNonceLocked(ctx); err != nil {
		return nil, err
	}

	tipCap, maxFee, err := s.chainData.SuggestFees(ctx)
	if err != nil {
		return nil, NewUpstreamError("Failed to fetch gas fees", err)
	}

	gasLimit := s.estimateGas(ctx, calldata)

	var (
		attempts      = 0
		nonceResynced = false
		feesBumped    = false
	)

	for {
		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     s.nonce,
			GasTipCap: tipCap,
			GasFeeCap: maxFee,
			Gas:       gasLimit,
			To:        &s.contract,
			Data:      calldata,
		})

		signedTx, err := s.signTx(tx)
		if err != nil {
			return nil, NewInternalError(err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
		err = s.client.SendTransaction(sendCtx, signedTx)
		cancel()
		if err == nil {
			return signedTx, nil
		}

		switch {
		case isNonceError(err):
			if nonceResynced {
				return nil, NewUpstreamError("Failed to submit transaction", err)
			}
			nonceResynced = true
			metrics.RelayNonceResyncsTotal.Inc()
			metrics.RelayRetriesTotal.WithLabelValues("nonce").Inc()
			logrus.WithError(err).Warn("⚠️ [Relayer] Nonce rejected, resyncing from node")
			if err := s.resyncNonceLocked(ctx); err != nil {
				return nil, err
			}

		case isUnderpricedError(err):
			if feesBumped {
				return nil, NewUpstreamError("Failed to submit transaction", err)
			}
			feesBumped = true
			metrics.RelayRetriesTotal.WithLabelValues("underpriced").Inc()
			tipCap = bumpFee(tipCap)
			maxFee = bumpFee(maxFee)
			// The cached estimate can lag the base fee; take a fresh
			// sample when it is higher than the bump.
			if freshTip, freshMax, feeErr := s.chainData.SuggestFees(ctx); feeErr == nil {
				tipCap = maxWei(tipCap, freshTip)
				maxFee = maxWei(maxFee, freshMax)
			}
			logrus.WithFields(logrus.Fields{
				"tip_cap": tipCap.String(),
				"max_fee": maxFee.String(),
			}).Warn("⚠️ [Relayer] Transaction underpriced, bumping fees")

		default:
			attempts++
			if attempts >= s.maxRetries {
				return nil, NewUpstreamError("Failed to submit transaction", err)
			}
			metrics.RelayRetriesTotal.WithLabelValues("transient").Inc()
			backoff := retryBaseBackoff * time.Duration(1<<uint(attempts-1))
			logrus.WithError(err).WithFields(logrus.Fields{
				"attempt": attempts,
				"backoff": backoff.String(),
			}).Warn("⚠️ [Relayer] Send failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, NewUpstreamError("Failed to submit transaction", ctx.Err())
			}
		}
	}
}

// signTx signs with the configured strategy (private key or KMS)
func (s *RelayerService) signTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	signer := ethtypes.LatestSignerForChainID(s.chainID)
	sig, err := s.signer.SignHash(signer.Hash(tx).Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx.WithSignature(signer, sig)
}

func (s *RelayerService) ensureNonceLocked(ctx context.Context) error {
	if s.nonceSynced {
		return nil
	}
	return s.resyncNonceLocked(ctx)
}

// resyncNonceLocked runs while s.mu is held, so the node read carries its
// own deadline: a hung RPC call must not wedge the nonce critical section.
func (s *RelayerService) resyncNonceLocked(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, chainReadTimeout)
	defer cancel()

	nonce, err := s.client.PendingNonceAt(callCtx, s.signer.Address())
	if err != nil {
		return NewUpstreamError("Failed to fetch relayer nonce", err)
	}
	s.nonce = nonce
	s.nonceSynced = true
	metrics.RelayerNonce.Set(float64(nonce))
	return nil
}

// estimateGas asks the node for a gas estimate and falls back to the
// configured static limit. Estimation failure is not fatal: the contract
// call may still succeed with the fallback limit.
func (s *RelayerService) estimateGas(ctx context.Context, calldata []byte) uint64 {
	callCtx, cancel := context.WithTimeout(ctx, chainReadTimeout)
	defer cancel()

	from := s.signer.Address()
	estimated, err := s.client.EstimateGas(callCtx, ethereum.CallMsg{
		From: from,
		To:   &s.contract,
		Data: calldata,
	})
	if err != nil {
		logrus.WithError(err).WithField("fallback", s.gasLimit).Debug("Gas estimation failed, using configured limit")
		return s.gasLimit
	}
	// 20% headroom over the node estimate
	return estimated + estimated/5
}

func (s *RelayerService) saveRecord(record *models.RelayedTransaction) {
	if s.db == nil {
		return
	}
	if err := s.db.Save(record).Error; err != nil {
		logrus.WithError(err).WithField("tx_id", record.ID).Error("❌ [Relayer] Failed to persist relayed transaction")
	}
}

func (s *RelayerService) publishEvent(subject string, record *models.RelayedTransaction) {
	s.publisher.Publish(subject, &events.RelayEvent{
		TxID:   record.ID,
		User:   record.UserAddr,
		PoolID: record.PoolID,
		Amount: record.Amount,
		TxHash: record.TxHash,
		Error:  record.LastError,
	})
}

// GetTransaction looks up a relayed transaction by hash
func (s *RelayerService) GetTransaction(txHash string) (*models.RelayedTransaction, error) {
	if s.db == nil {
		return nil, NewInternalError(fmt.Errorf("transaction tracking requires a database"))
	}
	var record models.RelayedTransaction
	err := s.db.Where("tx_hash = ?", txHash).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, NewInternalError(err)
	}
	return &record, nil
}

// PendingCount reports submitted-but-unconfirmed transactions
func (s *RelayerService) PendingCount() int64 {
	if s.db == nil {
		return 0
	}
	var count int64
	s.db.Model(&models.RelayedTransaction{}).
		Where("status = ?", models.RelayedTransactionStatusSubmitted).
		Count(&count)
	return count
}

// StartReceiptChecker launches the background loop that resolves submitted
// transactions to confirmed or failed. No-op without a database.
func (s *RelayerService) StartReceiptChecker() {
	if s.db == nil {
		logrus.Warn("⚠️ [Relayer] No database, receipt checking disabled")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(receiptCheckInterval)
		defer ticker.Stop()
		logrus.Info("✅ [Relayer] Receipt checker started")
		for {
			select {
			case <-ticker.C:
				s.checkPendingReceipts()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down background loops
func (s *RelayerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RelayerService) checkPendingReceipts() {
	ctx, cancel := context.WithTimeout(context.Background(), chainReadTimeout)
	defer cancel()

	var pending []models.RelayedTransaction
	err := s.db.Where("status = ?", models.RelayedTransactionStatusSubmitted).
		Order("created_at asc").Limit(50).Find(&pending).Error
	if err != nil {
		logrus.WithError(err).Error("❌ [Relayer] Failed to load pending transactions")
		return
	}

	for i := range pending {
		record := &pending[i]
		receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(record.TxHash))
		if err != nil {
			// Not mined yet (or node hiccup), check again next tick
			continue
		}

		now := time.Now()
		blockNumber := receipt.BlockNumber.Uint64()
		record.BlockNumber = &blockNumber
		record.GasUsed = receipt.GasUsed

		if receipt.Status == ethtypes.ReceiptStatusSuccessful {
			record.Status = models.RelayedTransactionStatusConfirmed
			record.ConfirmedAt = &now
			s.saveRecord(record)
			s.publishEvent(events.SubjectStakeConfirmed, record)
			logrus.WithFields(logrus.Fields{
				"tx_hash": record.TxHash,
				"block":   blockNumber,
			}).Info("✅ [Relayer] Stake transaction confirmed")
		} else {
			record.Status = models.RelayedTransactionStatusFailed
			record.LastError = "Transaction reverted"
			s.saveRecord(record)
			s.publishEvent(events.SubjectStakeFailed, record)
			logrus.WithFields(logrus.Fields{
				"tx_hash": record.TxHash,
				"block":   blockNumber,
			}).Warn("⚠️ [Relayer] Stake transaction reverted")
		}
	}
}

// Error classification uses substring matching on the node's error text;
// geth and most RPC providers keep these strings stable.

func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already known")
}

func isUnderpricedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "underpriced") ||
		strings.Contains(msg, "fee cap") ||
		strings.Contains(msg, "tip cap") ||
		strings.Contains(msg, "max fee per gas")
}

func bumpFee(fee *big.Int) *big.Int {
	bumped := new(big.Int).Mul(fee, big.NewInt(100+feeBumpPercent))
	return bumped.Div(bumped, big.NewInt(100))
}

func maxWei(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
