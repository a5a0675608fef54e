package protocol_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(typ, raw string) {
		t.Helper()
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", typ, err)
		}
	}
	reject := func(typ, raw string) {
		t.Helper()
		if err := protocol.Validate(typ, []byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected: %s", typ, raw)
		}
	}

	validate(protocol.TypeHello, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	  "issued_at":1714564800
	}`)
	reject(protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0","address":"0x1234","issued_at":1}`)
	reject(protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0","address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","issued_at":1,"extra":true}`)

	validate(protocol.TypeReq, `{
	  "type":"REQ",
	  "protocol_version":"1.0",
	  "req_id":"r1",
	  "op":"allowlist_mint",
	  "quantity":2,
	  "value_wei":"100000000000000000",
	  "proof":["0x1111111111111111111111111111111111111111111111111111111111111111"]
	}`)
	reject(protocol.TypeReq, `{"type":"REQ","protocol_version":"1.0","req_id":"r1","op":"public_mint","value_wei":"-5"}`)
	reject(protocol.TypeReq, `{"type":"REQ","protocol_version":"1.0","req_id":"r1","op":"public_mint","quantity":-1}`)
	reject(protocol.TypeReq, `{"type":"REQ","protocol_version":"1.0","op":"public_mint"}`)

	validate(protocol.TypeSubscribe, `{"type":"SUBSCRIBE","protocol_version":"1.0","since_cursor":0}`)
	reject(protocol.TypeSubscribe, `{"type":"SUBSCRIBE","protocol_version":"1.0"}`)

	// Messages without a schema pass through.
	validate(protocol.TypeEvent, `{"anything":1}`)
}

func TestSchemas_OutboundMessages(t *testing.T) {
	minter := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	receipt := campaign.Receipt{
		Seq:      3,
		TokenIDs: []uint64{1, 2},
		Paid:     uint256.NewInt(100),
		Events: []campaign.Event{{
			Type: campaign.EventMint,
			Mint: &campaign.MintEvent{
				Minter:       minter,
				Quantity:     2,
				PricePaid:    uint256.NewInt(100),
				FirstTokenID: 1,
				LastTokenID:  2,
				Phase:        campaign.PhaseAllowlist,
			},
		}},
	}
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           "r1",
		Accepted:        true,
		Receipt:         protocol.FromReceipt(receipt),
	}
	if err := protocol.ValidateValue(protocol.TypeResult, res); err != nil {
		t.Fatalf("result: %v", err)
	}

	rej := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           "r2",
		Code:            protocol.CodeFor(campaign.ErrInvalidProof),
		Message:         "InvalidProof",
	}
	if err := protocol.ValidateValue(protocol.TypeResult, rej); err != nil {
		t.Fatalf("rejected result: %v", err)
	}

	st := campaign.Status{
		ID:        "day7",
		Owner:     minter,
		MaxSupply: 10,
		MintPrice: uint256.NewInt(50),
		Balance:   new(uint256.Int),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		Address:         minter.Hex(),
		Campaign:        protocol.FromStatus(st),
	}
	if err := protocol.ValidateValue(protocol.TypeWelcome, welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	batch := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		CampaignID:      "day7",
		Items: []protocol.FeedItem{protocol.FromEntry(campaign.JournalEntry{
			Seq:     3,
			Command: campaign.Command{Op: campaign.OpAllowlistMint, Caller: minter},
			Events:  receipt.Events,
		})},
		NextCursor: 3,
	}
	if err := protocol.ValidateValue(protocol.TypeEventBatch, batch); err != nil {
		t.Fatalf("event batch: %v", err)
	}
}
