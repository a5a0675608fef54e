package campaign

import (
	"errors"
	"fmt"
)

// Kind classifies why a command was refused.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAllowlistMintClosed
	KindPublicMintClosed
	KindInvalidProof
	KindUnauthorized
	KindInvalidOwner
	KindInvalidQuantity
	KindInsufficientPayment
	KindExcessPayment
	KindArithmeticOverflow
	KindMintExceedsMaxSupply
	KindExceedsWalletLimit
	KindNothingToWithdraw
	KindTransferFailed
	KindUnknownToken
	KindInvalidRecipient
)

var kindNames = map[Kind]string{
	KindUnknown:              "Unknown",
	KindAllowlistMintClosed:  "AllowlistMintClosed",
	KindPublicMintClosed:     "PublicMintClosed",
	KindInvalidProof:         "InvalidProof",
	KindUnauthorized:         "Unauthorized",
	KindInvalidOwner:         "InvalidOwner",
	KindInvalidQuantity:      "InvalidQuantity",
	KindInsufficientPayment:  "InsufficientPayment",
	KindExcessPayment:        "ExcessPayment",
	KindArithmeticOverflow:   "ArithmeticOverflow",
	KindMintExceedsMaxSupply: "MintExceedsMaxSupply",
	KindExceedsWalletLimit:   "ExceedsWalletLimit",
	KindNothingToWithdraw:    "NothingToWithdraw",
	KindTransferFailed:       "TransferFailed",
	KindUnknownToken:         "UnknownToken",
	KindInvalidRecipient:     "InvalidRecipient",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Category groups kinds the way callers usually branch on them.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryPhase
	CategoryAuthorization
	CategoryPayment
	CategoryCapacity
	CategoryState
	CategoryInput
)

func (c Category) String() string {
	switch c {
	case CategoryPhase:
		return "phase"
	case CategoryAuthorization:
		return "authorization"
	case CategoryPayment:
		return "payment"
	case CategoryCapacity:
		return "capacity"
	case CategoryState:
		return "state"
	case CategoryInput:
		return "input"
	default:
		return "none"
	}
}

func (k Kind) Category() Category {
	switch k {
	case KindAllowlistMintClosed, KindPublicMintClosed:
		return CategoryPhase
	case KindInvalidProof, KindUnauthorized:
		return CategoryAuthorization
	case KindInsufficientPayment, KindExcessPayment, KindArithmeticOverflow:
		return CategoryPayment
	case KindMintExceedsMaxSupply, KindExceedsWalletLimit:
		return CategoryCapacity
	case KindInvalidQuantity, KindInvalidOwner, KindInvalidRecipient:
		return CategoryInput
	case KindNothingToWithdraw, KindTransferFailed, KindUnknownToken:
		return CategoryState
	default:
		return CategoryNone
	}
}

// Rejection is returned for every refused command. A rejected command leaves
// the campaign unchanged.
type Rejection struct {
	Kind   Kind
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Kind.String()
	}
	return r.Kind.String() + ": " + r.Detail
}

// Is matches on Kind so errors.Is(err, ErrInvalidProof) works for any detail.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Kind == r.Kind
}

func reject(k Kind, format string, args ...any) *Rejection {
	if format == "" {
		return &Rejection{Kind: k}
	}
	return &Rejection{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrAllowlistMintClosed  = &Rejection{Kind: KindAllowlistMintClosed}
	ErrPublicMintClosed     = &Rejection{Kind: KindPublicMintClosed}
	ErrInvalidProof         = &Rejection{Kind: KindInvalidProof}
	ErrUnauthorized         = &Rejection{Kind: KindUnauthorized}
	ErrInvalidOwner         = &Rejection{Kind: KindInvalidOwner}
	ErrInvalidQuantity      = &Rejection{Kind: KindInvalidQuantity}
	ErrInsufficientPayment  = &Rejection{Kind: KindInsufficientPayment}
	ErrExcessPayment        = &Rejection{Kind: KindExcessPayment}
	ErrArithmeticOverflow   = &Rejection{Kind: KindArithmeticOverflow}
	ErrMintExceedsMaxSupply = &Rejection{Kind: KindMintExceedsMaxSupply}
	ErrExceedsWalletLimit   = &Rejection{Kind: KindExceedsWalletLimit}
	ErrNothingToWithdraw    = &Rejection{Kind: KindNothingToWithdraw}
	ErrTransferFailed       = &Rejection{Kind: KindTransferFailed}
	ErrUnknownToken         = &Rejection{Kind: KindUnknownToken}
	ErrInvalidRecipient     = &Rejection{Kind: KindInvalidRecipient}
)

// KindOf extracts the rejection kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return KindUnknown
}

// IsRejection reports whether err is a business rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}
