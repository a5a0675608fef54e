package protocol

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrBadSignature = errors.New("bad login signature")
	ErrClockSkew    = errors.New("login issued_at outside allowed skew")
)

// LoginMessage is the text a wallet signs to open a session.
func LoginMessage(campaignID string, addr common.Address, issuedAt int64) string {
	return fmt.Sprintf("mintgate login\ncampaign: %s\naddress: %s\nissued_at: %d",
		campaignID, addr.Hex(), issuedAt)
}

// SignLogin produces a 65-byte personal_sign signature with v in {27, 28}.
func SignLogin(key *ecdsa.PrivateKey, msg string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverLogin returns the address that signed msg. Both v conventions
// (0/1 and 27/28) are accepted.
func RecoverLogin(msg, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyHello checks a HELLO signature and its freshness.
func VerifyHello(h HelloMsg, campaignID string, now time.Time, skew time.Duration) (common.Address, error) {
	addr, err := ParseAddress("address", h.Address)
	if err != nil {
		return common.Address{}, err
	}
	issued := time.Unix(h.IssuedAt, 0)
	if d := now.Sub(issued); d > skew || d < -skew {
		return common.Address{}, fmt.Errorf("%w: %s", ErrClockSkew, d.Round(time.Second))
	}
	got, err := RecoverLogin(LoginMessage(campaignID, addr, h.IssuedAt), h.Signature)
	if err != nil {
		return common.Address{}, err
	}
	if got != addr {
		return common.Address{}, fmt.Errorf("%w: signed by %s", ErrBadSignature, got.Hex())
	}
	return addr, nil
}
