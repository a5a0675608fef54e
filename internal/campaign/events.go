package campaign

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type EventType string

const (
	EventMint     EventType = "MINT"
	EventReveal   EventType = "REVEAL"
	EventWithdraw EventType = "WITHDRAW"
)

type Phase string

const (
	PhaseAllowlist Phase = "allowlist"
	PhasePublic    Phase = "public"
)

type MintEvent struct {
	Minter       common.Address `json:"minter"`
	Quantity     uint64         `json:"quantity"`
	PricePaid    *uint256.Int   `json:"price_paid"`
	FirstTokenID uint64         `json:"first_token_id"`
	LastTokenID  uint64         `json:"last_token_id"`
	Phase        Phase          `json:"phase"`
}

type RevealEvent struct {
	BaseURI string `json:"base_uri"`
}

type WithdrawEvent struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

// Event is a notification emitted by an accepted command. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type     EventType      `json:"type"`
	Mint     *MintEvent     `json:"mint,omitempty"`
	Reveal   *RevealEvent   `json:"reveal,omitempty"`
	Withdraw *WithdrawEvent `json:"withdraw,omitempty"`
}

func mintEvent(ev MintEvent) Event         { return Event{Type: EventMint, Mint: &ev} }
func revealEvent(ev RevealEvent) Event     { return Event{Type: EventReveal, Reveal: &ev} }
func withdrawEvent(ev WithdrawEvent) Event { return Event{Type: EventWithdraw, Withdraw: &ev} }

// Receipt describes what an accepted command did.
type Receipt struct {
	Seq      uint64       `json:"seq"`
	TokenIDs []uint64     `json:"token_ids,omitempty"`
	Paid     *uint256.Int `json:"paid,omitempty"`
	Events   []Event      `json:"events,omitempty"`
}
