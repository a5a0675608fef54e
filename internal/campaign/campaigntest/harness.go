// Package campaigntest runs a real campaign Runtime for black-box tests of the
// transports and binaries.
package campaigntest

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"mintgate.io/internal/allowlist"
	"mintgate.io/internal/campaign"
)

type Wallet struct {
	Key  *ecdsa.PrivateKey
	Addr common.Address
}

func NewWallet(t testing.TB) Wallet {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Wallet{Key: k, Addr: crypto.PubkeyToAddress(k.PublicKey)}
}

// Harness owns a running Runtime over a small campaign: supply 10, price 50 wei,
// three per wallet, three allowlisted members.
type Harness struct {
	T        testing.TB
	Campaign *campaign.Campaign
	Runtime  *campaign.Runtime
	Tree     *allowlist.Tree

	Owner    Wallet
	Members  []Wallet
	Outsider Wallet
	Price    *uint256.Int
}

// New starts the runtime; mod may adjust the config before construction.
func New(t testing.TB, mod func(*campaign.Config), rcfg campaign.RuntimeConfig) *Harness {
	t.Helper()
	h := &Harness{T: t, Owner: NewWallet(t), Outsider: NewWallet(t), Price: uint256.NewInt(50)}
	addrs := make([]common.Address, 0, 3)
	for i := 0; i < 3; i++ {
		w := NewWallet(t)
		h.Members = append(h.Members, w)
		addrs = append(addrs, w.Addr)
	}
	tree, err := allowlist.Build(addrs)
	if err != nil {
		t.Fatalf("build allowlist: %v", err)
	}
	h.Tree = tree

	cfg := campaign.Config{
		ID:           "test",
		Name:         "Test Collection",
		Symbol:       "TST",
		MaxSupply:    10,
		MintPrice:    h.Price,
		MaxPerWallet: 3,
		HiddenURI:    "ipfs://hidden/metadata.json",
		MerkleRoot:   tree.Root(),
		Owner:        h.Owner.Addr,
	}
	if mod != nil {
		mod(&cfg)
	}
	c, err := campaign.New(cfg)
	if err != nil {
		t.Fatalf("campaign.New: %v", err)
	}
	h.Campaign = c
	h.Runtime = campaign.NewRuntime(c, rcfg, zap.NewNop())
	return h
}

// Start runs the loop until the test ends. Call after any Set* wiring.
func (h *Harness) Start() *Harness {
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Runtime.Run(ctx) }()
	h.T.Cleanup(func() {
		cancel()
		select {
		case <-h.Runtime.Done():
		case <-time.After(2 * time.Second):
			h.T.Errorf("runtime did not stop")
		}
	})
	return h
}

func (h *Harness) Submit(cmd campaign.Command) (campaign.Receipt, error) {
	h.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Runtime.Submit(ctx, cmd)
}

func (h *Harness) MustSubmit(cmd campaign.Command) campaign.Receipt {
	h.T.Helper()
	r, err := h.Submit(cmd)
	if err != nil {
		h.T.Fatalf("%s: %v", cmd.Op, err)
	}
	return r
}

func (h *Harness) OpenPhases(allowlistOpen, publicOpen bool) {
	h.T.Helper()
	h.MustSubmit(campaign.Command{
		Op:            campaign.OpSetPhases,
		Caller:        h.Owner.Addr,
		AllowlistOpen: allowlistOpen,
		PublicOpen:    publicOpen,
	})
}

func (h *Harness) Proof(w Wallet) []common.Hash {
	h.T.Helper()
	p, err := h.Tree.Proof(w.Addr)
	if err != nil {
		h.T.Fatalf("proof: %v", err)
	}
	return p
}

// Cost is quantity times the configured price.
func (h *Harness) Cost(quantity uint64) *uint256.Int {
	return new(uint256.Int).Mul(h.Price, uint256.NewInt(quantity))
}
