package campaign

import "github.com/ethereum/go-ethereum/common"

// Issuer hands out token identifiers and remembers who holds them. It is
// called only after the ledger reserved capacity and must not fail.
type Issuer interface {
	Issue(owner common.Address, count uint64) []uint64
	Exists(id uint64) bool
	OwnerOf(id uint64) (common.Address, bool)
}

// SequentialIssuer issues ids 1, 2, 3, ... in mint order.
type SequentialIssuer struct {
	holders []common.Address // holders[i] owns id i+1
}

func NewSequentialIssuer() *SequentialIssuer { return &SequentialIssuer{} }

func (s *SequentialIssuer) Issue(owner common.Address, count uint64) []uint64 {
	ids := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		s.holders = append(s.holders, owner)
		ids = append(ids, uint64(len(s.holders)))
	}
	return ids
}

// Unissue drops the last count ids.
func (s *SequentialIssuer) Unissue(count uint64) {
	n := uint64(len(s.holders))
	s.holders = s.holders[:n-min(count, n)]
}

func (s *SequentialIssuer) Exists(id uint64) bool {
	return id >= 1 && id <= uint64(len(s.holders))
}

func (s *SequentialIssuer) OwnerOf(id uint64) (common.Address, bool) {
	if !s.Exists(id) {
		return common.Address{}, false
	}
	return s.holders[id-1], true
}

func (s *SequentialIssuer) Holders() []common.Address {
	out := make([]common.Address, len(s.holders))
	copy(out, s.holders)
	return out
}

func (s *SequentialIssuer) RestoreHolders(holders []common.Address) {
	s.holders = append(s.holders[:0], holders...)
}

// holderStore is implemented by issuers whose holder table can be captured in
// a snapshot.
type holderStore interface {
	Holders() []common.Address
	RestoreHolders([]common.Address)
}
