package campaign

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Op string

const (
	OpAllowlistMint     Op = "allowlist_mint"
	OpPublicMint        Op = "public_mint"
	OpSetPhases         Op = "set_phases"
	OpSetMintPrice      Op = "set_mint_price"
	OpSetMaxPerWallet   Op = "set_max_per_wallet"
	OpSetMerkleRoot     Op = "set_merkle_root"
	OpSetBaseURI        Op = "set_base_uri"
	OpSetHiddenURI      Op = "set_hidden_uri"
	OpReveal            Op = "reveal"
	OpWithdraw          Op = "withdraw"
	OpTransferOwnership Op = "transfer_ownership"
)

var knownOps = map[Op]bool{
	OpAllowlistMint:     true,
	OpPublicMint:        true,
	OpSetPhases:         true,
	OpSetMintPrice:      true,
	OpSetMaxPerWallet:   true,
	OpSetMerkleRoot:     true,
	OpSetBaseURI:        true,
	OpSetHiddenURI:      true,
	OpReveal:            true,
	OpWithdraw:          true,
	OpTransferOwnership: true,
}

func IsKnownOp(op Op) bool { return knownOps[op] }

// Command is one mutating request. Only the fields used by Op are read.
// It is also the journal record, so replaying the same commands in order
// rebuilds the same state.
type Command struct {
	Op     Op             `json:"op"`
	Caller common.Address `json:"caller"`

	Quantity uint64        `json:"quantity,omitempty"`
	Proof    []common.Hash `json:"proof,omitempty"`
	Value    *uint256.Int  `json:"value,omitempty"`

	AllowlistOpen bool           `json:"allowlist_open,omitempty"`
	PublicOpen    bool           `json:"public_open,omitempty"`
	Price         *uint256.Int   `json:"price,omitempty"`
	MaxPerWallet  uint64         `json:"max_per_wallet,omitempty"`
	MerkleRoot    common.Hash    `json:"merkle_root"`
	URI           string         `json:"uri,omitempty"`
	To            common.Address `json:"to"`
}

// Apply dispatches cmd to the matching operation.
func (c *Campaign) Apply(ctx context.Context, cmd Command) (Receipt, error) {
	switch cmd.Op {
	case OpAllowlistMint:
		return c.AllowlistMint(cmd.Caller, cmd.Quantity, cmd.Proof, cmd.Value)
	case OpPublicMint:
		return c.PublicMint(cmd.Caller, cmd.Quantity, cmd.Value)
	case OpSetPhases:
		return c.SetPhases(cmd.Caller, cmd.AllowlistOpen, cmd.PublicOpen)
	case OpSetMintPrice:
		return c.SetMintPrice(cmd.Caller, cmd.Price)
	case OpSetMaxPerWallet:
		return c.SetMaxPerWallet(cmd.Caller, cmd.MaxPerWallet)
	case OpSetMerkleRoot:
		return c.SetMerkleRoot(cmd.Caller, cmd.MerkleRoot)
	case OpSetBaseURI:
		return c.SetBaseURI(cmd.Caller, cmd.URI)
	case OpSetHiddenURI:
		return c.SetHiddenURI(cmd.Caller, cmd.URI)
	case OpReveal:
		return c.Reveal(cmd.Caller, cmd.URI)
	case OpWithdraw:
		return c.Withdraw(ctx, cmd.Caller, cmd.To)
	case OpTransferOwnership:
		return c.TransferOwnership(cmd.Caller, cmd.To)
	default:
		return Receipt{}, fmt.Errorf("unknown op %q", cmd.Op)
	}
}
