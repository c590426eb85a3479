// Package chain implements the EVM-facing half of the pipeline: the oracle
// contract's write-path ABI, the Signer abstraction, and the Submitter that
// ties nonce management, gas estimation and confirmation waiting together.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OracleABI is the write-path ABI for the sentiment oracle contract:
// updateSentiment / batchUpdateSentiment plus the events the Submitter and
// any operator tooling observe.
const OracleABI = `[
	{
		"type": "function",
		"name": "updateSentiment",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "score", "type": "int128"},
			{"name": "sampleSize", "type": "uint32"},
			{"name": "confidence", "type": "uint16"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "batchUpdateSentiment",
		"inputs": [
			{"name": "assets", "type": "address[]"},
			{"name": "scores", "type": "int128[]"},
			{"name": "sampleSizes", "type": "uint32[]"},
			{"name": "confidences", "type": "uint16[]"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "getLatest",
		"inputs": [{"name": "asset", "type": "address"}],
		"outputs": [
			{"name": "score", "type": "int128"},
			{"name": "timestamp", "type": "uint64"},
			{"name": "sampleSize", "type": "uint32"},
			{"name": "confidence", "type": "uint16"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getHistory",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "n", "type": "uint32"}
		],
		"outputs": [
			{"name": "scores", "type": "int128[]"},
			{"name": "timestamps", "type": "uint64[]"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "pause",
		"inputs": [],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "unpause",
		"inputs": [],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "setCircuitBreakerEnabled",
		"inputs": [{"name": "enabled", "type": "bool"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "setWhitelistEnabled",
		"inputs": [{"name": "enabled", "type": "bool"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "setWhitelist",
		"inputs": [
			{"name": "asset", "type": "address"},
			{"name": "allowed", "type": "bool"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "grantOperator",
		"inputs": [{"name": "operator", "type": "address"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "revokeOperator",
		"inputs": [{"name": "operator", "type": "address"}],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "event",
		"name": "SentimentUpdated",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "score", "type": "int128", "indexed": false},
			{"name": "timestamp", "type": "uint64", "indexed": false},
			{"name": "confidence", "type": "uint16", "indexed": false},
			{"name": "sampleSize", "type": "uint32", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "CircuitBreakerTriggered",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "reasonCode", "type": "uint8", "indexed": false}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "TokenWhitelisted",
		"inputs": [
			{"name": "asset", "type": "address", "indexed": true},
			{"name": "status", "type": "bool", "indexed": false}
		],
		"anonymous": false
	}
]`

// ParseOracleABI parses the constant above once at construction time.
func ParseOracleABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(OracleABI))
}
