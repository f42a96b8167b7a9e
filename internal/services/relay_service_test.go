package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"yls-backend/internal/models"
	"yls-backend/internal/types"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSubmitter records submissions without touching a chain
type stubSubmitter struct {
	calls int
	err   error
}

func (s *stubSubmitter) SubmitStake(ctx context.Context, auth *StakeAuthorization, txID string) (*models.RelayedTransaction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.RelayedTransaction{
		ID:     txID,
		TxHash: "0x" + hex.EncodeToString(auth.Digest.Bytes()),
		Status: models.RelayedTransactionStatusSubmitted,
	}, nil
}

func signedRelayRequest(t *testing.T, key *ecdsa.PrivateKey, deadline int64) *types.RelayStakeRequest {
	t.Helper()
	auth := newTestAuthorization(t, key, deadline)
	return &types.RelayStakeRequest{
		User:      auth.User.Hex(),
		Pid:       float64(0),
		Amount:    auth.Amount.String(),
		Deadline:  deadline,
		Signature: "0x" + hex.EncodeToString(auth.Signature),
	}
}

func TestRelayStakePipeline(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := &stubSubmitter{}
	svc := NewRelayService(NewSignatureService(), NewMemoryReplayStore(), submitter)

	req := signedRelayRequest(t, key, time.Now().Add(time.Hour).Unix())
	record, err := svc.RelayStake(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, record.TxHash)
	assert.Equal(t, 1, submitter.calls)
}

func TestRelayStakeRejectsReplay(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := &stubSubmitter{}
	svc := NewRelayService(NewSignatureService(), NewMemoryReplayStore(), submitter)

	req := signedRelayRequest(t, key, time.Now().Add(time.Hour).Unix())
	_, err = svc.RelayStake(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.RelayStake(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrKindReplay, KindOf(err))
	assert.Equal(t, 1, submitter.calls, "replayed request must not reach the submitter")
}

func TestRelayStakeRejectsExpiredBeforeConsuming(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := &stubSubmitter{}
	store := NewMemoryReplayStore()
	svc := NewRelayService(NewSignatureService(), store, submitter)

	expired := signedRelayRequest(t, key, time.Now().Add(-time.Minute).Unix())
	_, err = svc.RelayStake(context.Background(), expired)
	require.Error(t, err)
	assert.Equal(t, ErrKindExpired, KindOf(err))
	assert.Equal(t, 0, submitter.calls)
	assert.Empty(t, store.records, "expired request must not consume a replay slot")
}

func TestRelayStakeRejectsForgedSignature(t *testing.T) {
	userKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	attackerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := &stubSubmitter{}
	store := NewMemoryReplayStore()
	svc := NewRelayService(NewSignatureService(), store, submitter)

	// Attacker signs, claims the victim's address
	req := signedRelayRequest(t, attackerKey, time.Now().Add(time.Hour).Unix())
	req.User = crypto.PubkeyToAddress(userKey.PublicKey).Hex()

	_, err = svc.RelayStake(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrKindAuthentication, KindOf(err))
	assert.Equal(t, 0, submitter.calls)
	assert.Empty(t, store.records, "rejected signature must not consume a replay slot")
}

func TestRelayStakeSubmissionFailureKeepsConsumption(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	submitter := &stubSubmitter{err: NewUpstreamError("Failed to submit transaction", errors.New("connection refused"))}
	store := NewMemoryReplayStore()
	svc := NewRelayService(NewSignatureService(), store, submitter)

	req := signedRelayRequest(t, key, time.Now().Add(time.Hour).Unix())
	_, err = svc.RelayStake(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrKindUpstream, KindOf(err))

	// The authorization stays burned: a resubmission is a replay, the user
	// must sign a fresh one.
	submitter.err = nil
	_, err = svc.RelayStake(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ErrKindReplay, KindOf(err))
	assert.Equal(t, 1, submitter.calls)
}

func TestRelayStakeValidationShortCircuits(t *testing.T) {
	submitter := &stubSubmitter{}
	svc := NewRelayService(NewSignatureService(), NewMemoryReplayStore(), submitter)

	_, err := svc.RelayStake(context.Background(), &types.RelayStakeRequest{User: "not-an-address"})
	require.Error(t, err)
	assert.Equal(t, ErrKindValidation, KindOf(err))
	assert.Equal(t, 0, submitter.calls)
}
