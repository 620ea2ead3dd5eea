// Package merkle builds the commitment tree published to the distributor
// contract and produces the per-recipient inclusion proofs.
//
// The leaf encoding is a cross-system contract: it must byte-match the
// on-chain verifier's keccak256(abi.encodePacked(account, amount)) or proofs
// verify off-chain and still revert on-chain. Internal nodes hash the
// byte-wise sorted pair so verification needs only an ordered sibling list,
// never left/right flags.
package merkle

import (
	"bytes"
	"errors"
	"math/big"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
)

var (
	ErrNoLeaves      = errors.New("merkle: cannot build a tree with no leaves")
	ErrLeafNotInTree = errors.New("merkle: address has no leaf in this tree")
)

// Leaf is one hashed (address, amount) entitlement.
type Leaf struct {
	Address common.Address
	Amount  *big.Int
	Hash    common.Hash
	Index   int
}

// Tree holds every level of the built tree. Level 0 is the leaves, the last
// level is the single root.
type Tree struct {
	Root   common.Hash
	Leaves []Leaf

	levels [][]common.Hash
	index  map[common.Address]int
}

// LeafHash computes keccak256(address ‖ amount) with the amount left-padded
// to 32 bytes, matching Solidity's abi.encodePacked(address, uint256).
func LeafHash(address common.Address, amount *big.Int) common.Hash {
	packed := make([]byte, 0, common.AddressLength+32)
	packed = append(packed, address.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// BuildTree constructs the tree over a canonical allocation set. The same set
// always yields the same root because leaves are ordered by address bytes
// before hashing begins.
func BuildTree(allocations []allocation.Allocation) (*Tree, error) {
	if len(allocations) == 0 {
		return nil, ErrNoLeaves
	}

	leaves := make([]Leaf, len(allocations))
	index := make(map[common.Address]int, len(allocations))
	level := make([]common.Hash, len(allocations))
	for i, alloc := range allocations {
		leaves[i] = Leaf{
			Address: alloc.Address,
			Amount:  new(big.Int).Set(alloc.Amount),
			Hash:    LeafHash(alloc.Address, alloc.Amount),
			Index:   i,
		}
		index[alloc.Address] = i
		level[i] = leaves[i].Hash
	}

	levels := make([][]common.Hash, 0, bits.Len(uint(len(level)))+1)
	levels = append(levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Unpaired node is promoted unchanged. Duplicating it instead
				// would let a forger prove membership of a phantom copy.
				next = append(next, level[i])
			}
		}
		level = next
		levels = append(levels, level)
	}

	return &Tree{
		Root:   levels[len(levels)-1][0],
		Leaves: leaves,
		levels: levels,
		index:  index,
	}, nil
}

// Proof returns the ordered sibling hashes for the given address. A single
// leaf tree has an empty proof.
func (t *Tree) Proof(address common.Address) ([]common.Hash, error) {
	pos, ok := t.index[address]
	if !ok {
		return nil, ErrLeafNotInTree
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		var sibling int
		if pos%2 == 0 {
			sibling = pos + 1
		} else {
			sibling = pos - 1
		}
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		// A promoted node contributes nothing at this level.
		pos /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the leaf hash and folds the sibling list up to the
// root with the same pair ordering rule. This is the off-chain dry run of the
// distributor contract's verifier.
func VerifyProof(proof []common.Hash, root common.Hash, address common.Address, amount *big.Int) bool {
	computed := LeafHash(address, amount)
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
