package services

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"yls-backend/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChainSubmitter scripts the node's responses to SendTransaction
type fakeChainSubmitter struct {
	fakeChainReader

	pendingNonce      uint64
	pendingNonceCalls int

	estimateGas    uint64
	estimateGasErr error

	sendErrs []error // consumed in order; nil entry means accepted
	sent     []*coretypes.Transaction
}

func (f *fakeChainSubmitter) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.pendingNonceCalls++
	return f.pendingNonce, nil
}

func (f *fakeChainSubmitter) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.estimateGas, f.estimateGasErr
}

func (f *fakeChainSubmitter) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	f.sent = append(f.sent, tx)
	if len(f.sendErrs) == 0 {
		return nil
	}
	err := f.sendErrs[0]
	f.sendErrs = f.sendErrs[1:]
	return err
}

func (f *fakeChainSubmitter) TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	return nil, ethereum.NotFound
}

func (f *fakeChainSubmitter) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func relayerTestConfig() *config.Config {
	cfg := chainDataTestConfig()
	cfg.Relay = config.RelayConfig{
		SubmitTimeout: time.Second,
		MaxRetries:    3,
	}
	return cfg
}

func newTestRelayer(t *testing.T, client *fakeChainSubmitter) (*RelayerService, SigningStrategy) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPrivateKeyStrategy(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	client.gasPrice = big.NewInt(1_000_000_000)
	client.tipCapErr = errors.New("no eip-1559")

	cfg := relayerTestConfig()
	chainData := NewChainDataService(client, cfg)
	return NewRelayerService(client, signer, chainData, nil, nil, cfg), signer
}

func submittableAuthorization(t *testing.T) *StakeAuthorization {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth := newTestAuthorization(t, key, time.Now().Add(time.Hour).Unix())
	require.NoError(t, NewSignatureService().Authenticate(auth))
	return auth
}

func TestSubmitStake(t *testing.T) {
	client := &fakeChainSubmitter{pendingNonce: 5, estimateGas: 100000}
	relayer, signer := newTestRelayer(t, client)

	auth := submittableAuthorization(t)
	record, err := relayer.SubmitStake(context.Background(), auth, "tx-1")
	require.NoError(t, err)

	assert.Equal(t, "tx-1", record.ID)
	assert.Equal(t, uint64(5), record.Nonce)
	assert.NotEmpty(t, record.TxHash)
	assert.Equal(t, "submitted", string(record.Status))

	require.Len(t, client.sent, 1)
	tx := client.sent[0]
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), *tx.To())
	assert.Equal(t, uint64(120000), tx.Gas(), "node estimate plus 20% headroom")

	// The signed transaction must recover to the relayer account
	chainSigner := coretypes.LatestSignerForChainID(big.NewInt(10))
	sender, err := coretypes.Sender(chainSigner, tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)

	// Calldata is stakeFor with the authorization fields
	method, err := stakingABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "stakeFor", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, auth.User, args[0].(common.Address))
	assert.Equal(t, 0, auth.PoolID.Cmp(args[1].(*big.Int)))
	assert.Equal(t, 0, auth.Amount.Cmp(args[2].(*big.Int)))
	assert.Equal(t, 0, auth.Deadline.Cmp(args[3].(*big.Int)))
	assert.Equal(t, auth.Signature, args[4].([]byte))
}

func TestSubmitStakeNonceIsSequential(t *testing.T) {
	client := &fakeChainSubmitter{pendingNonce: 5, estimateGas: 100000}
	relayer, _ := newTestRelayer(t, client)

	_, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)
	_, err = relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-2")
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	assert.Equal(t, uint64(5), client.sent[0].Nonce())
	assert.Equal(t, uint64(6), client.sent[1].Nonce())
	assert.Equal(t, 1, client.pendingNonceCalls, "nonce fetched once and tracked locally")
}

func TestSubmitStakeResyncsNonce(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce: 5,
		estimateGas:  100000,
		sendErrs:     []error{errors.New("nonce too low"), nil},
	}
	relayer, _ := newTestRelayer(t, client)

	// Simulate the node being ahead of the local view
	relayer.nonce = 3
	relayer.nonceSynced = true

	record, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	assert.Equal(t, uint64(3), client.sent[0].Nonce())
	assert.Equal(t, uint64(5), client.sent[1].Nonce(), "retry uses the node's pending nonce")
	assert.Equal(t, uint64(5), record.Nonce)
}

func TestSubmitStakeNonceResyncOnlyOnce(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce: 5,
		estimateGas:  100000,
		sendErrs:     []error{errors.New("nonce too low"), errors.New("nonce too low")},
	}
	relayer, _ := newTestRelayer(t, client)

	_, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.Error(t, err)
	assert.Equal(t, ErrKindUpstream, KindOf(err))
	assert.Len(t, client.sent, 2)
}

func TestSubmitStakeBumpsFeesWhenUnderpriced(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce: 0,
		estimateGas:  100000,
		sendErrs:     []error{errors.New("transaction underpriced"), nil},
	}
	relayer, _ := newTestRelayer(t, client)

	_, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	first, second := client.sent[0], client.sent[1]
	assert.Equal(t, first.Nonce(), second.Nonce(), "fee bump keeps the nonce")
	assert.Equal(t, 1, second.GasFeeCap().Cmp(first.GasFeeCap()), "retry must raise the fee cap")
	assert.Equal(t, 1, second.GasTipCap().Cmp(first.GasTipCap()))
}

func TestSubmitStakeTransientRetryExhaustion(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce: 0,
		estimateGas:  100000,
		sendErrs:     []error{errors.New("connection refused"), errors.New("connection refused"), errors.New("connection refused")},
	}
	relayer, _ := newTestRelayer(t, client)

	_, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.Error(t, err)
	assert.Equal(t, ErrKindUpstream, KindOf(err))
	assert.Len(t, client.sent, 3, "maxRetries attempts, then give up")

	// The nonce was not consumed by the failed submission
	nonce, synced := relayer.CurrentNonce()
	assert.True(t, synced)
	assert.Equal(t, uint64(0), nonce)
}

func TestSubmitStakeTransientThenSuccess(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce: 0,
		estimateGas:  100000,
		sendErrs:     []error{errors.New("i/o timeout"), nil},
	}
	relayer, _ := newTestRelayer(t, client)

	record, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)
	assert.Len(t, client.sent, 2)
	assert.Equal(t, client.sent[0].Nonce(), client.sent[1].Nonce(), "transient retry reuses the nonce")
	assert.Equal(t, uint64(0), record.Nonce)
}

func TestSubmitStakeGasEstimateFallback(t *testing.T) {
	client := &fakeChainSubmitter{
		pendingNonce:   0,
		estimateGasErr: errors.New("execution reverted"),
	}
	relayer, _ := newTestRelayer(t, client)

	_, err := relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	assert.Equal(t, uint64(300000), client.sent[0].Gas(), "configured limit when estimation fails")
}

// deadlineRecordingSubmitter notes whether each node read carried a deadline
type deadlineRecordingSubmitter struct {
	fakeChainSubmitter

	nonceHadDeadline bool
	gasHadDeadline   bool
}

func (d *deadlineRecordingSubmitter) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	_, d.nonceHadDeadline = ctx.Deadline()
	return d.fakeChainSubmitter.PendingNonceAt(ctx, account)
}

func (d *deadlineRecordingSubmitter) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	_, d.gasHadDeadline = ctx.Deadline()
	return d.fakeChainSubmitter.EstimateGas(ctx, msg)
}

func TestSubmitStakeBoundsNodeReads(t *testing.T) {
	client := &deadlineRecordingSubmitter{
		fakeChainSubmitter: fakeChainSubmitter{pendingNonce: 5, estimateGas: 100000},
	}
	client.gasPrice = big.NewInt(1_000_000_000)
	client.tipCapErr = errors.New("no eip-1559")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPrivateKeyStrategy(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	cfg := relayerTestConfig()
	relayer := NewRelayerService(client, signer, NewChainDataService(client, cfg), nil, nil, cfg)

	// The caller's context has no deadline here. The nonce sync and gas
	// estimate run under the nonce mutex, so a hung node read without a
	// timeout of its own would wedge every later submission.
	_, err = relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)

	assert.True(t, client.nonceHadDeadline, "nonce sync must carry its own timeout")
	assert.True(t, client.gasHadDeadline, "gas estimation must carry its own timeout")
}

// risingFeeSubmitter serves a higher gas price on each fee query
type risingFeeSubmitter struct {
	fakeChainSubmitter
	prices []*big.Int
}

func (r *risingFeeSubmitter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	p := r.prices[0]
	if len(r.prices) > 1 {
		r.prices = r.prices[1:]
	}
	return p, nil
}

func TestSubmitStakeUnderpricedPrefersFreshFees(t *testing.T) {
	client := &risingFeeSubmitter{
		fakeChainSubmitter: fakeChainSubmitter{
			pendingNonce: 0,
			estimateGas:  100000,
			sendErrs:     []error{errors.New("transaction underpriced"), nil},
		},
		prices: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(10_000_000_000)},
	}
	client.tipCapErr = errors.New("no eip-1559")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPrivateKeyStrategy(hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	cfg := relayerTestConfig()
	cfg.Gas.CacheTTL = 0 // every fee query reaches the node
	relayer := NewRelayerService(client, signer, NewChainDataService(client, cfg), nil, nil, cfg)

	_, err = relayer.SubmitStake(context.Background(), submittableAuthorization(t), "tx-1")
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	retry := client.sent[1]
	assert.Equal(t, client.sent[0].Nonce(), retry.Nonce())
	// The 10 gwei resample beats the 25% bump of the original 1 gwei
	assert.Equal(t, int64(10_000_000_000), retry.GasTipCap().Int64())
	assert.Equal(t, int64(20_000_000_000), retry.GasFeeCap().Int64())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isNonceError(errors.New("nonce too low")))
	assert.True(t, isNonceError(errors.New("already known")))
	assert.False(t, isNonceError(errors.New("connection refused")))

	assert.True(t, isUnderpricedError(errors.New("transaction underpriced")))
	assert.True(t, isUnderpricedError(errors.New("max fee per gas less than block base fee")))
	assert.False(t, isUnderpricedError(errors.New("nonce too low")))
}

func TestBumpFee(t *testing.T) {
	assert.Equal(t, big.NewInt(125), bumpFee(big.NewInt(100)))
	assert.Equal(t, big.NewInt(1), bumpFee(big.NewInt(1)))
}
