package services

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"yls-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// StakeAuthorization is a validated relay request. Immutable once built;
// Digest is filled in by the signature service.
type StakeAuthorization struct {
	User      common.Address
	PoolID    *big.Int
	Amount    *big.Int
	Deadline  *big.Int
	Signature []byte

	Digest common.Hash
}

// DeadlineTime converts the unix-seconds deadline to a time.Time
func (a *StakeAuthorization) DeadlineTime() time.Time {
	return time.Unix(a.Deadline.Int64(), 0)
}

// ParseStakeRequest performs structural validation of a raw relay request.
// It never touches the network. Pool id zero is a valid identifier; a zero
// amount is not.
func ParseStakeRequest(req *types.RelayStakeRequest) (*StakeAuthorization, error) {
	if req.User == "" {
		return nil, NewValidationError("user", "field is required")
	}
	if !common.IsHexAddress(req.User) {
		return nil, NewValidationError("user", "not a valid address")
	}

	pid, err := parsePoolID(req.Pid)
	if err != nil {
		return nil, err
	}

	if req.Amount == "" {
		return nil, NewValidationError("amount", "field is required")
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() < 0 || amount.BitLen() > 256 {
		return nil, NewValidationError("amount", "not a valid uint256")
	}
	if amount.Sign() == 0 {
		return nil, NewValidationError("amount", "amount must be > 0")
	}

	if req.Deadline <= 0 {
		return nil, NewValidationError("deadline", "must be a positive unix timestamp")
	}

	if req.Signature == "" {
		return nil, NewValidationError("signature", "field is required")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		return nil, NewValidationError("signature", "not valid hex")
	}
	if len(sig) != 65 {
		return nil, NewValidationError("signature", "must be 65 bytes")
	}

	return &StakeAuthorization{
		User:      common.HexToAddress(req.User),
		PoolID:    pid,
		Amount:    amount,
		Deadline:  big.NewInt(req.Deadline),
		Signature: sig,
	}, nil
}

// parsePoolID accepts a JSON number or numeric string. The field must be
// explicitly present and non-negative; zero is allowed.
func parsePoolID(raw interface{}) (*big.Int, error) {
	switch v := raw.(type) {
	case nil:
		return nil, NewValidationError("pid", "field is required")
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return nil, NewValidationError("pid", "must be a non-negative integer")
		}
		return big.NewInt(int64(v)), nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok || n.Sign() < 0 {
			return nil, NewValidationError("pid", "must be a non-negative integer")
		}
		return n, nil
	case string:
		if v == "" {
			return nil, NewValidationError("pid", "field is required")
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return nil, NewValidationError("pid", "must be a non-negative integer")
		}
		return n, nil
	default:
		return nil, NewValidationError("pid", "must be a non-negative integer")
	}
}
