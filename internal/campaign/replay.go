package campaign

import (
	"context"
	"fmt"
	"slices"
)

// Replay re-applies journal entries newer than c.Seq() in order. Each entry
// must reproduce its recorded seq and token ids, otherwise replay stops.
func Replay(ctx context.Context, c *Campaign, entries []JournalEntry) (applied int, err error) {
	for _, e := range entries {
		if e.Seq <= c.Seq() {
			continue
		}
		if e.Seq != c.Seq()+1 {
			return applied, fmt.Errorf("journal gap: have seq %d, next entry is %d", c.Seq(), e.Seq)
		}
		r, err := c.Apply(ctx, e.Command)
		if err != nil {
			return applied, fmt.Errorf("replay seq %d (%s): %w", e.Seq, e.Command.Op, err)
		}
		if r.Seq != e.Seq {
			return applied, fmt.Errorf("replay seq %d: campaign produced seq %d", e.Seq, r.Seq)
		}
		if !slices.Equal(r.TokenIDs, e.TokenIDs) {
			return applied, fmt.Errorf("replay seq %d: token ids %v, journal has %v", e.Seq, r.TokenIDs, e.TokenIDs)
		}
		applied++
	}
	return applied, nil
}
