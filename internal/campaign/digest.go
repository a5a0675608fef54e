package campaign

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/holiman/uint256"
)

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteString(h hash.Hash, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func digestWriteBool(h hash.Hash, b bool) {
	if b {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

// StateDigest hashes the configuration and every piece of mutable state in a
// fixed order. Two campaigns with equal digests serve identical answers.
func (c *Campaign) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteString(h, &tmp, c.id)
	digestWriteString(h, &tmp, c.name)
	digestWriteString(h, &tmp, c.symbol)
	digestWriteString(h, &tmp, c.suffix)
	digestWriteU64(h, &tmp, c.seq)
	h.Write(c.owner[:])
	b32 := c.mintPrice.Bytes32()
	h.Write(b32[:])
	h.Write(c.root[:])
	digestWriteBool(h, c.phases.AllowlistOpen)
	digestWriteBool(h, c.phases.PublicOpen)
	digestWriteBool(h, c.meta.revealed)
	digestWriteString(h, &tmp, c.meta.hiddenURI)
	digestWriteString(h, &tmp, c.meta.baseURI)

	digestWriteU64(h, &tmp, c.ledger.MaxSupply())
	digestWriteU64(h, &tmp, c.ledger.MaxPerWallet())
	digestWriteU64(h, &tmp, c.ledger.TotalMinted())
	wallets := sortedWallets(c.ledger.wallets)
	digestWriteU64(h, &tmp, uint64(len(wallets)))
	for _, a := range wallets {
		h.Write(a[:])
		digestWriteU64(h, &tmp, c.ledger.wallets[a])
	}

	if hs, ok := c.issuer.(holderStore); ok {
		holders := hs.Holders()
		digestWriteU64(h, &tmp, uint64(len(holders)))
		for _, a := range holders {
			h.Write(a[:])
		}
	}

	for _, v := range []*uint256.Int{&c.treasury.balance, &c.treasury.collected, &c.treasury.withdrawn} {
		b := v.Bytes32()
		h.Write(b[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
