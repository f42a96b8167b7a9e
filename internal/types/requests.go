// Package types provides common request/response definitions used across the backend
package types

// RelayStakeRequest is the raw body of POST /api/relay/stake. Fields arrive
// as JSON strings/numbers from the frontend and are validated before use.
type RelayStakeRequest struct {
	User      string      `json:"user"`
	Pid       interface{} `json:"pid"` // number or numeric string; 0 is a valid pool id
	Amount    string      `json:"amount"`
	Deadline  int64       `json:"deadline"`
	Signature string      `json:"signature"`
}

// RelayStakeResponse is returned once the network accepted the transaction
type RelayStakeResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Message string `json:"message"`
}

// StakingInfoResponse aggregates the staking read state for one address
type StakingInfoResponse struct {
	StakedBalance  string `json:"stakedBalance"`
	RewardDebt     string `json:"rewardDebt"`
	PendingRewards string `json:"pendingRewards"`
	TotalStaked    string `json:"totalStaked"`
}

// SwapQuoteResponse is the quote for a token pair. Degraded and Note are
// only set when the on-chain router was unavailable and the static
// fallback rate was used.
type SwapQuoteResponse struct {
	AmountIn  string   `json:"amountIn"`
	AmountOut string   `json:"amountOut"`
	Path      []string `json:"path"`
	Exchange  string   `json:"exchange"`
	Degraded  bool     `json:"degraded,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// GasEstimateResponse current fee data in gwei
type GasEstimateResponse struct {
	GasPrice             string `json:"gasPrice"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
}
