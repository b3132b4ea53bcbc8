package evm

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const betABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "betId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "currency", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "ticker", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "metric", "type": "string"},
      {"indexed": false, "internalType": "bool", "name": "isLong", "type": "bool"},
      {"indexed": false, "internalType": "uint256", "name": "creatorPrice", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "expiresAt", "type": "uint256"}
    ],
    "name": "BetCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "betId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "acceptor", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "acceptorPrice", "type": "uint256"}
    ],
    "name": "BetAccepted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "betId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"}
    ],
    "name": "BetWithdrawn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "betId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "winner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "settlementPrice", "type": "uint256"}
    ],
    "name": "BetSettled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "betId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "winner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "BetPaid",
    "type": "event"
  }
]`

var (
	betABI     abi.ABI
	betABIOnce sync.Once
	betABIErr  error
)

// BetABI returns the parsed bet contract ABI.
func BetABI() (abi.ABI, error) {
	betABIOnce.Do(func() {
		betABI, betABIErr = abi.JSON(strings.NewReader(betABIJSON))
	})
	return betABI, betABIErr
}
