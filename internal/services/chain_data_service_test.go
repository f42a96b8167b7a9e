package services

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"yls-backend/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChainReader answers contract calls and fee queries from canned data
type fakeChainReader struct {
	callFn func(msg ethereum.CallMsg) ([]byte, error)

	gasPrice      *big.Int
	gasPriceErr   error
	gasPriceCalls int

	tipCap    *big.Int
	tipCapErr error

	baseFee *big.Int
}

func (f *fakeChainReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.callFn == nil {
		return nil, errors.New("no contract calls expected")
	}
	return f.callFn(msg)
}

func (f *fakeChainReader) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.gasPriceCalls++
	return f.gasPrice, f.gasPriceErr
}

func (f *fakeChainReader) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tipCap, f.tipCapErr
}

func (f *fakeChainReader) HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error) {
	if f.baseFee == nil {
		return nil, errors.New("no header")
	}
	return &coretypes.Header{BaseFee: f.baseFee}, nil
}

func chainDataTestConfig() *config.Config {
	return &config.Config{
		Blockchain: config.BlockchainConfig{
			ChainID:         10,
			StakingContract: "0x1111111111111111111111111111111111111111",
			SwapRouter:      "0x2222222222222222222222222222222222222222",
			WETHAddress:     "0x4200000000000000000000000000000000000006",
			GasLimit:        300000,
		},
		Swap: config.SwapConfig{FallbackRate: "0.001"},
		Gas:  config.GasConfig{CacheTTL: time.Minute},
	}
}

func TestGetStakingInfo(t *testing.T) {
	userInfoOut, err := stakingABI.Methods["userInfo"].Outputs.Pack(big.NewInt(500), big.NewInt(20))
	require.NoError(t, err)
	pendingOut, err := stakingABI.Methods["pendingRewards"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	totalOut, err := stakingABI.Methods["totalStaked"].Outputs.Pack(big.NewInt(9000))
	require.NoError(t, err)

	reader := &fakeChainReader{
		callFn: func(msg ethereum.CallMsg) ([]byte, error) {
			switch {
			case bytes.Equal(msg.Data[:4], stakingABI.Methods["userInfo"].ID):
				return userInfoOut, nil
			case bytes.Equal(msg.Data[:4], stakingABI.Methods["pendingRewards"].ID):
				return pendingOut, nil
			case bytes.Equal(msg.Data[:4], stakingABI.Methods["totalStaked"].ID):
				return totalOut, nil
			}
			return nil, errors.New("unexpected call")
		},
	}

	svc := NewChainDataService(reader, chainDataTestConfig())
	info, err := svc.GetStakingInfo(context.Background(), common.HexToAddress("0x742d35Cc6634C0532925a3b0F26750C66d78EB66"))
	require.NoError(t, err)

	assert.Equal(t, "500", info.StakedBalance)
	assert.Equal(t, "20", info.RewardDebt)
	assert.Equal(t, "42", info.PendingRewards)
	assert.Equal(t, "9000", info.TotalStaked)
}

func TestGetStakingInfoUpstreamFailure(t *testing.T) {
	reader := &fakeChainReader{
		callFn: func(msg ethereum.CallMsg) ([]byte, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewChainDataService(reader, chainDataTestConfig())
	_, err := svc.GetStakingInfo(context.Background(), common.HexToAddress("0x742d35Cc6634C0532925a3b0F26750C66d78EB66"))
	require.Error(t, err)
	assert.Equal(t, ErrKindUpstream, KindOf(err))
}

func TestGetSwapQuoteFromRouter(t *testing.T) {
	in := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	out := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	// 1 ether in, 0.5 ether out after the hop
	half, _ := new(big.Int).SetString("500000000000000000", 10)
	amountsOut, err := routerABI.Methods["getAmountsOut"].Outputs.Pack(
		[]*big.Int{big.NewInt(1e18), big.NewInt(2e18), half})
	require.NoError(t, err)

	reader := &fakeChainReader{
		callFn: func(msg ethereum.CallMsg) ([]byte, error) {
			require.True(t, bytes.Equal(msg.Data[:4], routerABI.Methods["getAmountsOut"].ID))
			return amountsOut, nil
		},
	}

	svc := NewChainDataService(reader, chainDataTestConfig())
	quote, err := svc.GetSwapQuote(context.Background(), "1", in, out)
	require.NoError(t, err)

	assert.Equal(t, "1", quote.AmountIn)
	assert.Equal(t, "0.5", quote.AmountOut)
	assert.Equal(t, "Uniswap V2", quote.Exchange)
	assert.False(t, quote.Degraded)
	assert.Empty(t, quote.Note)
	require.Len(t, quote.Path, 3)
	assert.Equal(t, "0x4200000000000000000000000000000000000006", quote.Path[1])
}

func TestGetSwapQuoteDegradesOnRouterFailure(t *testing.T) {
	reader := &fakeChainReader{
		callFn: func(msg ethereum.CallMsg) ([]byte, error) {
			return nil, errors.New("execution reverted")
		},
	}

	svc := NewChainDataService(reader, chainDataTestConfig())
	quote, err := svc.GetSwapQuote(context.Background(), "2",
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	require.NoError(t, err, "router failure must degrade, not fail")

	assert.True(t, quote.Degraded)
	assert.Equal(t, "0.002000", quote.AmountOut, "2 * fallback rate, six decimal places")
	assert.Equal(t, "Mock Exchange", quote.Exchange)
	assert.Equal(t, "Using mock data - contract call failed", quote.Note)
	assert.Len(t, quote.Path, 2)
}

func TestGetSwapQuoteRejectsBadAmount(t *testing.T) {
	svc := NewChainDataService(&fakeChainReader{}, chainDataTestConfig())

	for _, amount := range []string{"", "abc", "0", "-1"} {
		_, err := svc.GetSwapQuote(context.Background(), amount,
			common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
		require.Error(t, err, "amount %q", amount)
		assert.Equal(t, ErrKindValidation, KindOf(err))
	}
}

func TestGetGasEstimate(t *testing.T) {
	reader := &fakeChainReader{
		gasPrice: big.NewInt(2_000_000_000), // 2 gwei
		tipCap:   big.NewInt(1_000_000_000),
		baseFee:  big.NewInt(500_000_000),
	}

	svc := NewChainDataService(reader, chainDataTestConfig())
	est, err := svc.GetGasEstimate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", est.GasPrice)
	assert.Equal(t, "1", est.MaxPriorityFeePerGas)
	// 2*baseFee + tip = 2 gwei
	assert.Equal(t, "2", est.MaxFeePerGas)
}

func TestGetGasEstimateCached(t *testing.T) {
	reader := &fakeChainReader{gasPrice: big.NewInt(1_000_000_000), tipCapErr: errors.New("no eip-1559")}

	svc := NewChainDataService(reader, chainDataTestConfig())
	_, err := svc.GetGasEstimate(context.Background())
	require.NoError(t, err)
	_, err = svc.GetGasEstimate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, reader.gasPriceCalls, "second request within TTL must hit the cache")
}

func TestGetGasEstimateLegacyFallbacks(t *testing.T) {
	// Chain without EIP-1559 support: tip query fails, maxFee derives from
	// the legacy gas price.
	reader := &fakeChainReader{gasPrice: big.NewInt(3_000_000_000), tipCapErr: errors.New("method not found")}

	svc := NewChainDataService(reader, chainDataTestConfig())
	tipCap, maxFee, err := svc.SuggestFees(context.Background())
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(3_000_000_000), tipCap)
	assert.Equal(t, big.NewInt(6_000_000_000), maxFee)
}
