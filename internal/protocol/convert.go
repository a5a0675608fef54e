package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/units"
)

// FieldError reports a malformed REQ field. Code is the wire code to answer with.
type FieldError struct {
	Field string
	Code  string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

func weiString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func FromStatus(st campaign.Status) CampaignInfo {
	return CampaignInfo{
		ID:            st.ID,
		Name:          st.Name,
		Symbol:        st.Symbol,
		Owner:         st.Owner.Hex(),
		MaxSupply:     st.MaxSupply,
		TotalMinted:   st.TotalMinted,
		MaxPerWallet:  st.MaxPerWallet,
		MintPriceWei:  weiString(st.MintPrice),
		MintPriceEth:  units.FormatEther(st.MintPrice),
		MerkleRoot:    st.MerkleRoot.Hex(),
		AllowlistOpen: st.AllowlistOpen,
		PublicOpen:    st.PublicOpen,
		Revealed:      st.Revealed,
		HiddenURI:     st.HiddenURI,
		BaseURI:       st.BaseURI,
		BalanceWei:    weiString(st.Balance),
		Seq:           st.Seq,
	}
}

func FromEvent(ev campaign.Event) EventInfo {
	out := EventInfo{Type: string(ev.Type)}
	switch {
	case ev.Mint != nil:
		out.Minter = ev.Mint.Minter.Hex()
		out.Quantity = ev.Mint.Quantity
		out.PricePaidWei = weiString(ev.Mint.PricePaid)
		out.FirstTokenID = ev.Mint.FirstTokenID
		out.LastTokenID = ev.Mint.LastTokenID
		out.Phase = string(ev.Mint.Phase)
	case ev.Reveal != nil:
		out.BaseURI = ev.Reveal.BaseURI
	case ev.Withdraw != nil:
		out.To = ev.Withdraw.To.Hex()
		out.AmountWei = weiString(ev.Withdraw.Amount)
	}
	return out
}

func FromEvents(evs []campaign.Event) []EventInfo {
	if len(evs) == 0 {
		return nil
	}
	out := make([]EventInfo, 0, len(evs))
	for _, ev := range evs {
		out = append(out, FromEvent(ev))
	}
	return out
}

func FromReceipt(r campaign.Receipt) *ReceiptInfo {
	info := &ReceiptInfo{
		Seq:      r.Seq,
		TokenIDs: r.TokenIDs,
		Events:   FromEvents(r.Events),
	}
	if r.Paid != nil {
		info.PaidWei = r.Paid.Dec()
	}
	return info
}

func FromEntry(e campaign.JournalEntry) FeedItem {
	return FeedItem{
		Cursor: e.Seq,
		Time:   e.Time.UnixMilli(),
		Op:     string(e.Command.Op),
		Caller: e.Command.Caller.Hex(),
		Events: FromEvents(e.Events),
	}
}

// FeedItemTime converts a FeedItem timestamp back to time.Time.
func FeedItemTime(it FeedItem) time.Time { return time.UnixMilli(it.Time).UTC() }

func ParseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, &FieldError{Field: field, Code: ErrBadAddress, Err: fmt.Errorf("%q is not an address", s)}
	}
	return common.HexToAddress(s), nil
}

func ParseHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err == nil && len(b) != common.HashLength {
		err = fmt.Errorf("want %d bytes, got %d", common.HashLength, len(b))
	}
	if err != nil {
		return common.Hash{}, &FieldError{Field: field, Code: ErrBadProofEncoding, Err: err}
	}
	return common.BytesToHash(b), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := units.ParseWei(s)
	if err != nil {
		return nil, &FieldError{Field: field, Code: ErrBadAmount, Err: err}
	}
	return v, nil
}

var errMissing = errors.New("required")

// Command converts a REQ into a campaign command on behalf of caller. Query
// ops are not commands and are refused here.
func (m ReqMsg) Command(caller common.Address) (campaign.Command, error) {
	op := campaign.Op(strings.TrimSpace(m.Op))
	if !campaign.IsKnownOp(op) {
		return campaign.Command{}, fmt.Errorf("%w %q", campaign.ErrUnknownOp, m.Op)
	}
	cmd := campaign.Command{Op: op, Caller: caller}
	var err error
	switch op {
	case campaign.OpAllowlistMint, campaign.OpPublicMint:
		cmd.Quantity = m.Quantity
		if cmd.Value, err = parseAmount("value_wei", m.ValueWei); err != nil {
			return cmd, err
		}
		if op == campaign.OpAllowlistMint {
			cmd.Proof = make([]common.Hash, 0, len(m.Proof))
			for i, p := range m.Proof {
				h, err := ParseHash(fmt.Sprintf("proof[%d]", i), p)
				if err != nil {
					return cmd, err
				}
				cmd.Proof = append(cmd.Proof, h)
			}
		}
	case campaign.OpSetPhases:
		if m.AllowlistOpen == nil || m.PublicOpen == nil {
			return cmd, &FieldError{Field: "allowlist_open/public_open", Code: ErrProtoBadRequest, Err: errMissing}
		}
		cmd.AllowlistOpen, cmd.PublicOpen = *m.AllowlistOpen, *m.PublicOpen
	case campaign.OpSetMintPrice:
		if strings.TrimSpace(m.PriceWei) == "" {
			return cmd, &FieldError{Field: "price_wei", Code: ErrBadAmount, Err: errMissing}
		}
		if cmd.Price, err = parseAmount("price_wei", m.PriceWei); err != nil {
			return cmd, err
		}
	case campaign.OpSetMaxPerWallet:
		if m.MaxPerWallet == nil {
			return cmd, &FieldError{Field: "max_per_wallet", Code: ErrProtoBadRequest, Err: errMissing}
		}
		cmd.MaxPerWallet = *m.MaxPerWallet
	case campaign.OpSetMerkleRoot:
		if cmd.MerkleRoot, err = ParseHash("merkle_root", m.MerkleRoot); err != nil {
			return cmd, err
		}
	case campaign.OpSetBaseURI, campaign.OpSetHiddenURI, campaign.OpReveal:
		cmd.URI = m.URI
	case campaign.OpWithdraw:
		// An empty recipient withdraws to the caller.
		cmd.To = caller
		if strings.TrimSpace(m.To) != "" {
			if cmd.To, err = ParseAddress("to", m.To); err != nil {
				return cmd, err
			}
		}
	case campaign.OpTransferOwnership:
		if cmd.To, err = ParseAddress("to", m.To); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}
