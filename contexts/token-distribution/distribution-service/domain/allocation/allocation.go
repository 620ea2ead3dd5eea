// Package allocation validates and canonicalizes raw allocation lists before
// any cryptographic work happens. Canonical order (address bytes ascending) is
// what makes tree construction deterministic regardless of input order.
package allocation

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Input is one raw allocation entry as supplied by an operator.
type Input struct {
	Address string
	Amount  string
}

// Allocation is one canonical entry: checksummed address bytes and a positive
// wei-scale amount.
type Allocation struct {
	Address common.Address
	Amount  *big.Int
}

// Issue describes a single offending input entry.
type Issue struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// ValidationError carries every offending entry, not just the first.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("allocation list invalid: entry %d: %s", e.Issues[0].Index, e.Issues[0].Reason)
	}
	return fmt.Sprintf("allocation list invalid: %d offending entries", len(e.Issues))
}

// Canonicalize checks every entry and returns the sorted, deduplicated list
// plus the total allocated amount. All findings are collected; the function
// never short-circuits on the first bad entry.
func Canonicalize(inputs []Input) ([]Allocation, *big.Int, error) {
	var issues []Issue
	if len(inputs) == 0 {
		return nil, nil, &ValidationError{Issues: []Issue{{Index: -1, Reason: "allocation list is empty"}}}
	}

	seen := make(map[common.Address]int, len(inputs))
	allocations := make([]Allocation, 0, len(inputs))
	total := new(big.Int)

	for i, input := range inputs {
		raw := strings.TrimSpace(input.Address)
		if !common.IsHexAddress(raw) {
			issues = append(issues, Issue{Index: i, Address: raw, Reason: "malformed address"})
			continue
		}
		address := common.HexToAddress(raw)

		amount, ok := new(big.Int).SetString(strings.TrimSpace(input.Amount), 10)
		if !ok {
			issues = append(issues, Issue{Index: i, Address: raw, Reason: "amount is not a base-10 integer"})
			continue
		}
		if amount.Sign() <= 0 {
			issues = append(issues, Issue{Index: i, Address: raw, Reason: "amount must be positive"})
			continue
		}

		if first, exists := seen[address]; exists {
			issues = append(issues, Issue{
				Index:   i,
				Address: raw,
				Reason:  fmt.Sprintf("duplicate address, first seen at entry %d", first),
			})
			continue
		}
		seen[address] = i
		allocations = append(allocations, Allocation{Address: address, Amount: amount})
		total.Add(total, amount)
	}

	if len(issues) > 0 {
		return nil, nil, &ValidationError{Issues: issues}
	}

	sort.Slice(allocations, func(i, j int) bool {
		return bytes.Compare(allocations[i].Address.Bytes(), allocations[j].Address.Bytes()) < 0
	})
	return allocations, total, nil
}
