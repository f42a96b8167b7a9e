package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureService verifies off-chain staking authorizations. The signed
// message is keccak256 over the abi-packed tuple
// (address user, uint256 pid, uint256 amount, uint256 deadline), wrapped in
// the EIP-191 personal-sign prefix before recovery. This matches what the
// frontend produces with signMessage(arrayify(solidityKeccak256(...))).
type SignatureService struct {
	now func() time.Time
}

// NewSignatureService creates a signature service using wall-clock time
func NewSignatureService() *SignatureService {
	return &SignatureService{now: time.Now}
}

// NewSignatureServiceAt creates a signature service with an injected clock
func NewSignatureServiceAt(now func() time.Time) *SignatureService {
	return &SignatureService{now: now}
}

// AuthorizationDigest computes the replay digest for an authorization:
// fixed-width big-endian packing (20 + 32 + 32 + 32 bytes), keccak256.
func AuthorizationDigest(auth *StakeAuthorization) common.Hash {
	packed := make([]byte, 0, 20+3*32)
	packed = append(packed, auth.User.Bytes()...)
	packed = append(packed, common.LeftPadBytes(auth.PoolID.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(auth.Amount.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(auth.Deadline.Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// prefixedHash applies the EIP-191 personal-sign prefix to a 32-byte digest
func prefixedHash(digest common.Hash) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("\x19Ethereum Signed Message:\n32"),
		digest.Bytes(),
	)
}

// CheckDeadline rejects an authorization whose deadline has passed. Runs
// before the replay guard so an expired-but-valid signature is reported as
// expired, not as tampering.
func (s *SignatureService) CheckDeadline(auth *StakeAuthorization) error {
	if auth.Deadline.Int64() <= s.now().Unix() {
		return NewExpiredError()
	}
	return nil
}

// Authenticate recovers the signer and compares it to the claimed user.
// The digest is stored on the authorization either way; on mismatch the
// request must not proceed to the replay guard.
func (s *SignatureService) Authenticate(auth *StakeAuthorization) error {
	auth.Digest = AuthorizationDigest(auth)

	sig := bytes.Clone(auth.Signature)
	// Wallets produce V as 27/28; crypto.SigToPub expects 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return NewAuthenticationError("invalid signature recovery id")
	}

	pubKey, err := crypto.SigToPub(prefixedHash(auth.Digest).Bytes(), sig)
	if err != nil {
		return NewAuthenticationError(fmt.Sprintf("signature recovery failed: %v", err))
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recovered.Hex(), auth.User.Hex()) {
		return NewAuthenticationError("Invalid signature")
	}
	return nil
}
