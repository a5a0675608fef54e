package protocol

import (
	"errors"

	"mintgate.io/internal/campaign"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrUnauthenticated  = "E_UNAUTHENTICATED"
	ErrUnknownOp        = "E_UNKNOWN_OP"
	ErrBusy             = "E_BUSY"
	ErrUnavailable      = "E_UNAVAILABLE"
	ErrInternal         = "E_INTERNAL"
	ErrCursorTruncated  = "E_CURSOR_TRUNCATED"
	ErrSlowSubscriber   = "E_SLOW_SUBSCRIBER"
	ErrNotFound         = "E_NOT_FOUND"
	ErrBadAddress       = "E_BAD_ADDRESS"
	ErrBadAmount        = "E_BAD_AMOUNT"
	ErrBadProofEncoding = "E_BAD_PROOF_ENCODING"

	// Campaign rejections, one per campaign.Kind.
	ErrAllowlistClosed     = "E_ALLOWLIST_CLOSED"
	ErrPublicClosed        = "E_PUBLIC_CLOSED"
	ErrInvalidProof        = "E_INVALID_PROOF"
	ErrUnauthorized        = "E_UNAUTHORIZED"
	ErrInvalidOwner        = "E_INVALID_OWNER"
	ErrInvalidQuantity     = "E_INVALID_QUANTITY"
	ErrInsufficientPayment = "E_INSUFFICIENT_PAYMENT"
	ErrExcessPayment       = "E_EXCESS_PAYMENT"
	ErrArithmeticOverflow  = "E_ARITHMETIC_OVERFLOW"
	ErrMaxSupply           = "E_MAX_SUPPLY"
	ErrWalletLimit         = "E_WALLET_LIMIT"
	ErrNothingToWithdraw   = "E_NOTHING_TO_WITHDRAW"
	ErrTransferFailed      = "E_TRANSFER_FAILED"
	ErrUnknownToken        = "E_UNKNOWN_TOKEN"
	ErrInvalidRecipient    = "E_INVALID_RECIPIENT"
)

var kindCodes = map[campaign.Kind]string{
	campaign.KindAllowlistMintClosed:  ErrAllowlistClosed,
	campaign.KindPublicMintClosed:     ErrPublicClosed,
	campaign.KindInvalidProof:         ErrInvalidProof,
	campaign.KindUnauthorized:         ErrUnauthorized,
	campaign.KindInvalidOwner:         ErrInvalidOwner,
	campaign.KindInvalidQuantity:      ErrInvalidQuantity,
	campaign.KindInsufficientPayment:  ErrInsufficientPayment,
	campaign.KindExcessPayment:        ErrExcessPayment,
	campaign.KindArithmeticOverflow:   ErrArithmeticOverflow,
	campaign.KindMintExceedsMaxSupply: ErrMaxSupply,
	campaign.KindExceedsWalletLimit:   ErrWalletLimit,
	campaign.KindNothingToWithdraw:    ErrNothingToWithdraw,
	campaign.KindTransferFailed:       ErrTransferFailed,
	campaign.KindUnknownToken:         ErrUnknownToken,
	campaign.KindInvalidRecipient:     ErrInvalidRecipient,
}

var knownCodes = func() map[string]struct{} {
	m := map[string]struct{}{
		ErrProtoBadRequest:  {},
		ErrUnauthenticated:  {},
		ErrUnknownOp:        {},
		ErrBusy:             {},
		ErrUnavailable:      {},
		ErrInternal:         {},
		ErrCursorTruncated:  {},
		ErrSlowSubscriber:   {},
		ErrNotFound:         {},
		ErrBadAddress:       {},
		ErrBadAmount:        {},
		ErrBadProofEncoding: {},
	}
	for _, c := range kindCodes {
		m[c] = struct{}{}
	}
	return m
}()

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a runtime error to its wire code. nil maps to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case campaign.IsRejection(err):
		if c, ok := kindCodes[campaign.KindOf(err)]; ok {
			return c
		}
		return ErrInternal
	case errors.Is(err, campaign.ErrUnknownOp):
		return ErrUnknownOp
	case errors.Is(err, campaign.ErrJournal), errors.Is(err, campaign.ErrStopped):
		return ErrUnavailable
	default:
		return ErrInternal
	}
}
