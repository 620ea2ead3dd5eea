package v1

// Code in this package mirrors the deployed distributor contract interface.
// This package is generated-contract-only and must stay backward compatible.

// VaultGameRewards, VaultSocialRewards and VaultEcosystemFund are the vault
// enum values the contract encodes as uint8.
const (
	VaultGameRewards   uint8 = 0
	VaultSocialRewards uint8 = 1
	VaultEcosystemFund uint8 = 2
)

// ABI is the distributor contract interface the service binds against.
const ABI = `[
  {
    "type": "function",
    "name": "createDistribution",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "merkleRoot", "type": "bytes32"},
      {"name": "totalAmount", "type": "uint256"},
      {"name": "vaultType", "type": "uint8"},
      {"name": "durationInDays", "type": "uint256"}
    ],
    "outputs": [{"name": "distributionId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "finalizeDistribution",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "distributionId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "distributions",
    "stateMutability": "view",
    "inputs": [{"name": "distributionId", "type": "uint256"}],
    "outputs": [
      {"name": "merkleRoot", "type": "bytes32"},
      {"name": "totalAmount", "type": "uint256"},
      {"name": "claimedAmount", "type": "uint256"},
      {"name": "startTime", "type": "uint256"},
      {"name": "endTime", "type": "uint256"},
      {"name": "vaultType", "type": "uint8"},
      {"name": "finalized", "type": "bool"}
    ]
  },
  {
    "type": "function",
    "name": "vaultRemaining",
    "stateMutability": "view",
    "inputs": [{"name": "vaultType", "type": "uint8"}],
    "outputs": [{"name": "remaining", "type": "uint256"}]
  },
  {
    "type": "event",
    "name": "DistributionCreated",
    "inputs": [
      {"name": "distributionId", "type": "uint256", "indexed": true},
      {"name": "merkleRoot", "type": "bytes32", "indexed": false},
      {"name": "totalAmount", "type": "uint256", "indexed": false},
      {"name": "vaultType", "type": "uint8", "indexed": false},
      {"name": "startTime", "type": "uint256", "indexed": false},
      {"name": "endTime", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "TokensClaimed",
    "inputs": [
      {"name": "distributionId", "type": "uint256", "indexed": true},
      {"name": "account", "type": "address", "indexed": true},
      {"name": "amount", "type": "uint256", "indexed": false},
      {"name": "totalClaimed", "type": "uint256", "indexed": false}
    ]
  }
]`
