package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"yls-backend/internal/config"
)

// KMSClient talks to the external key management service that holds the
// relayer credential when direct private keys are disabled.
type KMSClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// KMSSignRequest signature request
type KMSSignRequest struct {
	KeyAlias string `json:"key_alias"`
	ChainID  int    `json:"chain_id"`
	Data     string `json:"data"` // 32-byte hash to sign (hex)
}

// KMSSignResponse signature response
type KMSSignResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"` // 65-byte recoverable signature (hex)
	Address   string `json:"address,omitempty"`
	Error     string `json:"error,omitempty"`
}

// KMSKeyInfo stored key information
type KMSKeyInfo struct {
	KeyAlias      string    `json:"key_alias"`
	ChainID       int       `json:"chain_id"`
	PublicAddress string    `json:"public_address"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// KMSGetKeysResponse key listing response
type KMSGetKeysResponse struct {
	Success bool         `json:"success"`
	Count   int          `json:"count"`
	Keys    []KMSKeyInfo `json:"keys"`
	Error   string       `json:"error,omitempty"`
}

// NewKMSClient creates a KMS client
func NewKMSClient(cfg config.BlockchainConfig) *KMSClient {
	return &KMSClient{
		baseURL:   cfg.KMSServiceURL,
		authToken: cfg.KMSAuthToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SignHash asks the KMS to sign a 32-byte hash with the aliased key
func (c *KMSClient) SignHash(keyAlias string, chainID int, hashHex string) (*KMSSignResponse, error) {
	req := KMSSignRequest{
		KeyAlias: keyAlias,
		ChainID:  chainID,
		Data:     hashHex,
	}

	response, err := c.makeRequest("POST", "/api/v1/sign", req)
	if err != nil {
		return nil, fmt.Errorf("KMS sign request failed: %w", err)
	}

	var signResp KMSSignResponse
	if err := json.Unmarshal(response, &signResp); err != nil {
		return nil, fmt.Errorf("failed to parse KMS sign response: %w", err)
	}
	if !signResp.Success {
		return nil, fmt.Errorf("KMS sign rejected: %s", signResp.Error)
	}
	return &signResp, nil
}

// GetKeyByAlias looks up a stored key
func (c *KMSClient) GetKeyByAlias(keyAlias string, chainID int) (*KMSKeyInfo, error) {
	response, err := c.makeRequest("GET", "/api/v1/keys", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list KMS keys: %w", err)
	}

	var keysResp KMSGetKeysResponse
	if err := json.Unmarshal(response, &keysResp); err != nil {
		return nil, fmt.Errorf("failed to parse KMS keys response: %w", err)
	}
	if !keysResp.Success {
		return nil, fmt.Errorf("KMS key listing failed: %s", keysResp.Error)
	}

	for _, key := range keysResp.Keys {
		if key.KeyAlias == keyAlias && key.ChainID == chainID {
			return &key, nil
		}
	}
	return nil, fmt.Errorf("key not found: alias=%s, chainID=%d", keyAlias, chainID)
}

// HealthCheck pings the KMS service
func (c *KMSClient) HealthCheck() error {
	response, err := c.makeRequest("GET", "/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("KMS health check failed: %w", err)
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &healthResp); err != nil {
		return fmt.Errorf("failed to parse KMS health response: %w", err)
	}
	if healthResp.Status != "healthy" {
		return fmt.Errorf("KMS service unhealthy: %s", healthResp.Status)
	}
	return nil
}

// makeRequest sends an HTTP request to the KMS service
func (c *KMSClient) makeRequest(method, path string, data interface{}) ([]byte, error) {
	url := c.baseURL + path

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "yls-backend/1.0")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
		req.Header.Set("X-Service-Name", "yls-backend")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}
	return responseBody, nil
}
