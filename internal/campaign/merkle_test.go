package campaign

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func TestKeccak256_EmptyInput(t *testing.T) {
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256().Hex())
}

func TestLeafFor_LowercaseHexBytes(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	raw := hexutil.MustDecode(strings.ToLower(addr.Hex()))
	assert.Equal(t, Keccak256(raw), LeafFor(addr))
}

func TestHashPair_OrderIndependent(t *testing.T) {
	a, b := LeafFor(walletA), LeafFor(walletB)
	assert.Equal(t, HashPair(a, b), HashPair(b, a))
	assert.NotEqual(t, Keccak256(a[:], b[:]), Keccak256(b[:], a[:]))
}

func TestVerifyProof(t *testing.T) {
	root, proofs := threeMemberTree()
	for addr, proof := range proofs {
		assert.Truef(t, VerifyProof(proof, LeafFor(addr), root), "member %s", addr.Hex())
	}
	assert.False(t, VerifyProof(proofs[walletA], LeafFor(outsider), root))
	assert.False(t, VerifyProof(proofs[walletA][:1], LeafFor(walletA), root), "truncated proof")
	assert.False(t, VerifyProof(nil, LeafFor(walletA), root))

	single := LeafFor(walletA)
	assert.True(t, VerifyProof(nil, single, single), "single-member tree")
}
