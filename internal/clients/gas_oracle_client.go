package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GasOracleClient queries an Etherscan-style gas tracker API. Used as a
// fallback source when the RPC node's fee queries fail.
type GasOracleClient struct {
	httpClient *http.Client
}

// NewGasOracleClient creates a new gas oracle client
func NewGasOracleClient() *GasOracleClient {
	return &GasOracleClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// gasOracleResponse Etherscan-compatible gas oracle response
type gasOracleResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		SafeGasPrice    string `json:"SafeGasPrice"`
		ProposeGasPrice string `json:"ProposeGasPrice"`
		FastGasPrice    string `json:"FastGasPrice"`
		SuggestBaseFee  string `json:"suggestBaseFee"`
	} `json:"result"`
}

// GetGasPrice returns the proposed (standard) gas price in gwei for a chain.
// Optimism and Arbitrum have no public gas tracker; their fees are low and
// stable enough for a constant.
func (c *GasOracleClient) GetGasPrice(ctx context.Context, chainID int) (string, error) {
	switch chainID {
	case 1:
		return c.fetchOracle(ctx, "https://api.etherscan.io/api?module=gastracker&action=gasoracle", "30")
	case 137:
		return c.fetchOracle(ctx, "https://api.polygonscan.com/api?module=gastracker&action=gasoracle", "50")
	case 10:
		return "0.001", nil
	case 42161:
		return "0.1", nil
	default:
		return "10", nil
	}
}

// fetchOracle queries the oracle and falls back to a default on any failure
func (c *GasOracleClient) fetchOracle(ctx context.Context, url, fallbackGwei string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fallbackGwei, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallbackGwei, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallbackGwei, nil
	}

	var oracleResp gasOracleResponse
	if err := json.Unmarshal(body, &oracleResp); err != nil {
		return fallbackGwei, nil
	}
	if oracleResp.Status != "1" {
		return fallbackGwei, nil
	}

	return oracleResp.Result.ProposeGasPrice, nil
}
