package services

import (
	"context"

	"yls-backend/internal/metrics"
	"yls-backend/internal/models"
	"yls-backend/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StakeSubmitter abstracts the relayer so the pipeline can be tested
// without a chain connection.
type StakeSubmitter interface {
	SubmitStake(ctx context.Context, auth *StakeAuthorization, txID string) (*models.RelayedTransaction, error)
}

// RelayService runs the gasless stake pipeline: structural validation,
// deadline check, signature authentication, replay consumption, then
// on-chain submission. Stages run in that fixed order; a request rejected
// at any stage never reaches the next one.
type RelayService struct {
	signatures  *SignatureService
	replayGuard ReplayStore
	submitter   StakeSubmitter
}

func NewRelayService(signatures *SignatureService, replayGuard ReplayStore, submitter StakeSubmitter) *RelayService {
	return &RelayService{
		signatures:  signatures,
		replayGuard: replayGuard,
		submitter:   submitter,
	}
}

// RelayStake processes one relay request end to end and returns the
// submitted transaction record.
//
// The replay record is consumed before submission and is never rolled back
// on submission failure: a signature that reached the submitter is burned
// even when the chain rejects it, so an attacker cannot use a forced
// submission failure to replay it later.
func (s *RelayService) RelayStake(ctx context.Context, req *types.RelayStakeRequest) (*models.RelayedTransaction, error) {
	auth, err := ParseStakeRequest(req)
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("validation_failed").Inc()
		return nil, err
	}

	if err := s.signatures.CheckDeadline(auth); err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("expired").Inc()
		return nil, err
	}

	if err := s.signatures.Authenticate(auth); err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("auth_failed").Inc()
		return nil, err
	}

	txID := uuid.New().String()
	if err := s.replayGuard.TryConsume(ctx, auth, txID); err != nil {
		if KindOf(err) == ErrKindReplay {
			metrics.RelayRequestsTotal.WithLabelValues("replay").Inc()
			logrus.WithFields(logrus.Fields{
				"user":   auth.User.Hex(),
				"digest": auth.Digest.Hex(),
			}).Warn("⚠️ [Relay] Replay attempt rejected")
		} else {
			metrics.RelayRequestsTotal.WithLabelValues("store_error").Inc()
		}
		return nil, err
	}

	record, err := s.submitter.SubmitStake(ctx, auth, txID)
	if err != nil {
		metrics.RelayRequestsTotal.WithLabelValues("submit_failed").Inc()
		return nil, err
	}

	metrics.RelayRequestsTotal.WithLabelValues("submitted").Inc()
	return record, nil
}
