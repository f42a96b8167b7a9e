package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"yls-backend/internal/clients"
	"yls-backend/internal/config"
	"yls-backend/internal/metrics"
	dto "yls-backend/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const chainReadTimeout = 10 * time.Second

// ChainReader is the subset of ethclient.Client the aggregator needs
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
}

// feeData is one sampled set of fee values (wei)
type feeData struct {
	gasPrice *big.Int
	tipCap   *big.Int
	maxFee   *big.Int
	sampled  time.Time
}

// ChainDataService aggregates read-only chain state: staking balances, swap
// quotes and gas prices. Quotes degrade to a static rate when the router is
// unavailable; gas estimates are cached with a short TTL.
type ChainDataService struct {
	client ChainReader
	cfg    *config.Config
	oracle *clients.GasOracleClient

	staking common.Address
	router  common.Address
	weth    common.Address

	fallbackRate decimal.Decimal

	gasMu     sync.Mutex
	gasCached *feeData
}

// NewChainDataService creates the aggregator
func NewChainDataService(client ChainReader, cfg *config.Config) *ChainDataService {
	rate, err := decimal.NewFromString(cfg.Swap.FallbackRate)
	if err != nil {
		logrus.WithField("rate", cfg.Swap.FallbackRate).Warn("⚠️ [ChainData] Invalid fallback rate, using 0.001")
		rate = decimal.NewFromFloat(0.001)
	}

	return &ChainDataService{
		client:       client,
		cfg:          cfg,
		oracle:       clients.NewGasOracleClient(),
		staking:      common.HexToAddress(cfg.Blockchain.StakingContract),
		router:       common.HexToAddress(cfg.Blockchain.SwapRouter),
		weth:         common.HexToAddress(cfg.Blockchain.WETHAddress),
		fallbackRate: rate,
	}
}

// ============================================================================
// Staking info
// ============================================================================

// GetStakingInfo fetches staked amount, reward debt, pending rewards and the
// pool total concurrently. Any sub-query failure surfaces as UpstreamError.
func (s *ChainDataService) GetStakingInfo(ctx context.Context, address common.Address) (*dto.StakingInfoResponse, error) {
	start := time.Now()
	defer func() {
		metrics.ChainReadDuration.WithLabelValues("staking_info").Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, chainReadTimeout)
	defer cancel()

	var (
		staked, rewardDebt, pending, total *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.call(gctx, s.staking, stakingABI, "userInfo", big.NewInt(0), address)
		if err != nil {
			return fmt.Errorf("userInfo: %w", err)
		}
		staked = out[0].(*big.Int)
		rewardDebt = out[1].(*big.Int)
		return nil
	})
	g.Go(func() error {
		out, err := s.call(gctx, s.staking, stakingABI, "pendingRewards", big.NewInt(0), address)
		if err != nil {
			return fmt.Errorf("pendingRewards: %w", err)
		}
		pending = out[0].(*big.Int)
		return nil
	})
	g.Go(func() error {
		out, err := s.call(gctx, s.staking, stakingABI, "totalStaked")
		if err != nil {
			return fmt.Errorf("totalStaked: %w", err)
		}
		total = out[0].(*big.Int)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, NewUpstreamError("Failed to fetch staking information", err)
	}

	return &dto.StakingInfoResponse{
		StakedBalance:  staked.String(),
		RewardDebt:     rewardDebt.String(),
		PendingRewards: pending.String(),
		TotalStaked:    total.String(),
	}, nil
}

// ============================================================================
// Swap quotes
// ============================================================================

// GetSwapQuote queries the router for the output amount along
// tokenIn → WETH → tokenOut. Router failure is not an error: the quote is
// served from the configured static rate and flagged as degraded.
func (s *ChainDataService) GetSwapQuote(ctx context.Context, amountIn string, tokenIn, tokenOut common.Address) (*dto.SwapQuoteResponse, error) {
	amount, err := decimal.NewFromString(amountIn)
	if err != nil || amount.Sign() <= 0 {
		return nil, NewValidationError("amountIn", "must be a positive decimal number")
	}

	// ether -> wei
	amountWei := amount.Shift(18).BigInt()

	ctx, cancel := context.WithTimeout(ctx, chainReadTimeout)
	defer cancel()

	path := []common.Address{tokenIn, s.weth, tokenOut}
	out, err := s.call(ctx, s.router, routerABI, "getAmountsOut", amountWei, path)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ [ChainData] Router call failed, using fallback rate")
		metrics.SwapQuotesDegraded.Inc()

		amountOut := amount.Mul(s.fallbackRate)
		return &dto.SwapQuoteResponse{
			AmountIn:  amountIn,
			AmountOut: amountOut.StringFixed(6),
			Path:      []string{tokenIn.Hex(), tokenOut.Hex()},
			Exchange:  "Mock Exchange",
			Degraded:  true,
			Note:      "Using mock data - contract call failed",
		}, nil
	}

	amounts := out[0].([]*big.Int)
	if len(amounts) == 0 {
		return nil, NewUpstreamError("router returned empty amounts", nil)
	}

	// wei -> ether
	amountOut := decimal.NewFromBigInt(amounts[len(amounts)-1], -18)
	return &dto.SwapQuoteResponse{
		AmountIn:  amountIn,
		AmountOut: amountOut.String(),
		Path:      []string{tokenIn.Hex(), s.weth.Hex(), tokenOut.Hex()},
		Exchange:  "Uniswap V2",
	}, nil
}

// ============================================================================
// Gas estimates
// ============================================================================

// GetGasEstimate returns current fee data in gwei, served from the short-TTL
// cache to bound request volume to the node.
func (s *ChainDataService) GetGasEstimate(ctx context.Context) (*dto.GasEstimateResponse, error) {
	fees, err := s.fees(ctx)
	if err != nil {
		// Degrade to the external gas oracle before giving up.
		gwei, oracleErr := s.oracle.GetGasPrice(ctx, s.cfg.Blockchain.ChainID)
		if oracleErr != nil {
			return nil, NewUpstreamError("Failed to estimate gas prices", err)
		}
		logrus.WithError(err).Warn("⚠️ [ChainData] Node fee query failed, using gas oracle")
		return &dto.GasEstimateResponse{GasPrice: gwei}, nil
	}

	resp := &dto.GasEstimateResponse{
		GasPrice: weiToGwei(fees.gasPrice),
	}
	if fees.maxFee != nil {
		resp.MaxFeePerGas = weiToGwei(fees.maxFee)
	}
	if fees.tipCap != nil {
		resp.MaxPriorityFeePerGas = weiToGwei(fees.tipCap)
	}
	return resp, nil
}

// SuggestFees returns fee values in wei for transaction construction,
// bypassing staleness only when the cache has expired.
func (s *ChainDataService) SuggestFees(ctx context.Context) (tipCap, maxFee *big.Int, err error) {
	fees, err := s.fees(ctx)
	if err != nil {
		return nil, nil, err
	}
	return fees.tipCap, fees.maxFee, nil
}

// fees returns the cached fee sample, refreshing it when the TTL expired
func (s *ChainDataService) fees(ctx context.Context) (*feeData, error) {
	s.gasMu.Lock()
	defer s.gasMu.Unlock()

	if s.gasCached != nil && time.Since(s.gasCached.sampled) < s.cfg.Gas.CacheTTL {
		metrics.GasEstimateCacheHits.WithLabelValues("hit").Inc()
		return s.gasCached, nil
	}
	metrics.GasEstimateCacheHits.WithLabelValues("miss").Inc()

	ctx, cancel := context.WithTimeout(ctx, chainReadTimeout)
	defer cancel()

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	fees := &feeData{gasPrice: gasPrice, sampled: time.Now()}

	// EIP-1559 fields are best-effort: legacy chains have no tip/base fee.
	if tipCap, err := s.client.SuggestGasTipCap(ctx); err == nil {
		fees.tipCap = tipCap
		if header, err := s.client.HeaderByNumber(ctx, nil); err == nil && header.BaseFee != nil {
			maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
			fees.maxFee = maxFee.Add(maxFee, tipCap)
		}
	}
	if fees.maxFee == nil {
		fees.maxFee = new(big.Int).Mul(gasPrice, big.NewInt(2))
	}
	if fees.tipCap == nil {
		fees.tipCap = gasPrice
	}

	s.gasCached = fees
	return fees, nil
}

// ============================================================================
// helpers
// ============================================================================

// call packs and executes a read-only contract call
func (s *ChainDataService) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// weiToGwei formats a wei amount as a gwei decimal string
func weiToGwei(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -9).String()
}
