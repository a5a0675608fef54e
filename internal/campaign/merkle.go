package campaign

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) common.Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h common.Hash
	copy(h[:], d.Sum(nil))
	return h
}

// LeafFor is the allowlist leaf of addr: keccak256 over its 20 raw bytes.
func LeafFor(addr common.Address) common.Hash {
	return Keccak256(addr.Bytes())
}

// HashPair combines two nodes in ascending byte order, so the result does not
// depend on which side of the tree each node sits.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Keccak256(a[:], b[:])
}

// VerifyProof reports whether proof connects leaf to root.
// An empty proof only verifies a single-member tree (leaf == root).
func VerifyProof(proof []common.Hash, leaf, root common.Hash) bool {
	acc := leaf
	for _, p := range proof {
		acc = HashPair(acc, p)
	}
	return acc == root
}
