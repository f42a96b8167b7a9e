package services

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, limited to the methods this backend actually calls.

const stakingContractABI = `[
	{
		"constant": true,
		"inputs": [{"name": "", "type": "uint256"}, {"name": "", "type": "address"}],
		"name": "userInfo",
		"outputs": [{"name": "amount", "type": "uint256"}, {"name": "rewardDebt", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "", "type": "uint256"}, {"name": "", "type": "address"}],
		"name": "pendingRewards",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "totalStaked",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "user", "type": "address"},
			{"name": "pid", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "stakeFor",
		"outputs": [],
		"type": "function"
	}
]`

const swapRouterABI = `[
	{
		"constant": true,
		"inputs": [{"name": "amountIn", "type": "uint256"}, {"name": "path", "type": "address[]"}],
		"name": "getAmountsOut",
		"outputs": [{"name": "amounts", "type": "uint256[]"}],
		"type": "function"
	}
]`

var (
	stakingABI = mustParseABI(stakingContractABI)
	routerABI  = mustParseABI(swapRouterABI)
)

// mustParseABI parses a static ABI string, panicking on a programming error
func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}
