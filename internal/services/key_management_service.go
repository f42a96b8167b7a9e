package services

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"yls-backend/internal/clients"
	"yls-backend/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SigningStrategy is the custodial credential abstraction: "sign this
// 32-byte hash". Where the key material lives (env var, KMS) is invisible
// to the submitter.
type SigningStrategy interface {
	SignHash(hash []byte) ([]byte, error) // 65-byte recoverable signature
	Address() common.Address
	Name() string
}

// NewSigningStrategy builds the configured strategy
func NewSigningStrategy(cfg config.BlockchainConfig) (SigningStrategy, error) {
	if cfg.KMSEnabled {
		return NewKMSStrategy(cfg)
	}
	return NewPrivateKeyStrategy(cfg.PrivateKey)
}

// ============================================================================
// Direct private key
// ============================================================================

// PrivateKeyStrategy signs with an in-process secp256k1 key
type PrivateKeyStrategy struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeyStrategy parses a hex private key (no 0x prefix)
func NewPrivateKeyStrategy(hexKey string) (*PrivateKeyStrategy, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}
	return &PrivateKeyStrategy{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *PrivateKeyStrategy) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, s.key)
}

func (s *PrivateKeyStrategy) Address() common.Address {
	return s.address
}

func (s *PrivateKeyStrategy) Name() string {
	return "PrivateKey"
}

// ============================================================================
// Remote KMS
// ============================================================================

// KMSStrategy delegates signing to the external KMS service
type KMSStrategy struct {
	client   *clients.KMSClient
	keyAlias string
	chainID  int
	address  common.Address
}

// NewKMSStrategy resolves the key alias to its address at startup
func NewKMSStrategy(cfg config.BlockchainConfig) (*KMSStrategy, error) {
	client := clients.NewKMSClient(cfg)

	keyInfo, err := client.GetKeyByAlias(cfg.KMSKeyAlias, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve KMS key: %w", err)
	}
	if !common.IsHexAddress(keyInfo.PublicAddress) {
		return nil, fmt.Errorf("KMS returned invalid address: %s", keyInfo.PublicAddress)
	}

	logrus.WithFields(logrus.Fields{
		"key_alias": cfg.KMSKeyAlias,
		"address":   keyInfo.PublicAddress,
	}).Info("🔑 [KMS] Relayer key resolved")

	return &KMSStrategy{
		client:   client,
		keyAlias: cfg.KMSKeyAlias,
		chainID:  cfg.ChainID,
		address:  common.HexToAddress(keyInfo.PublicAddress),
	}, nil
}

func (s *KMSStrategy) SignHash(hash []byte) ([]byte, error) {
	resp, err := s.client.SignHash(s.keyAlias, s.chainID, hex.EncodeToString(hash))
	if err != nil {
		return nil, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("KMS returned invalid signature hex: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("KMS returned %d-byte signature, want 65", len(sig))
	}
	// KMS services commonly return V as 27/28; the tx signer wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	return sig, nil
}

func (s *KMSStrategy) Address() common.Address {
	return s.address
}

func (s *KMSStrategy) Name() string {
	return "KMS"
}
