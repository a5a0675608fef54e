package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate.io/internal/campaign"
)

var minter = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func mintEntry(seq uint64) campaign.JournalEntry {
	return campaign.JournalEntry{
		Seq:  seq,
		Time: time.Date(2024, 5, 1, 12, 0, int(seq), 0, time.UTC),
		Command: campaign.Command{
			Op:       campaign.OpAllowlistMint,
			Caller:   minter,
			Quantity: 2,
			Proof:    []common.Hash{common.HexToHash("0xabcd")},
			Value:    uint256.MustFromDecimal("100000000000000000"),
		},
		TokenIDs: []uint64{2*seq - 1, 2 * seq},
		Paid:     uint256.MustFromDecimal("100000000000000000"),
		Events: []campaign.Event{{
			Type: campaign.EventMint,
			Mint: &campaign.MintEvent{
				Minter:       minter,
				Quantity:     2,
				PricePaid:    uint256.MustFromDecimal("100000000000000000"),
				FirstTokenID: 2*seq - 1,
				LastTokenID:  2 * seq,
				Phase:        campaign.PhaseAllowlist,
			},
		}},
	}
}

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, j.WriteEntry(mintEntry(seq)))
	}
	require.NoError(t, j.Close())

	got, st, err := ReadEntries(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Segments)
	assert.Equal(t, 0, st.Truncated)
	require.Len(t, got, 3)
	want := mintEntry(2)
	assert.Equal(t, want.Seq, got[1].Seq)
	assert.True(t, want.Time.Equal(got[1].Time))
	assert.Equal(t, want.Command.Proof, got[1].Command.Proof)
	assert.Equal(t, want.Command.Value.Dec(), got[1].Command.Value.Dec())
	assert.Equal(t, want.TokenIDs, got[1].TokenIDs)
	require.Len(t, got[1].Events, 1)
	assert.Equal(t, *want.Events[0].Mint.PricePaid, *got[1].Events[0].Mint.PricePaid)
}

func TestJournal_UnclosedSegmentIsReadable(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	require.NoError(t, j.WriteEntry(mintEntry(1)))
	require.NoError(t, j.WriteEntry(mintEntry(2)))
	// No Close: the process "crashed" after two acknowledged writes.

	got, _, err := ReadEntries(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Seq)

	// A restart writes a new segment rather than appending to the open one.
	j2 := NewJournal(dir)
	require.NoError(t, j2.WriteEntry(mintEntry(3)))
	require.NoError(t, j2.Close())
	got, st, err := ReadEntries(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Segments)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[2].Seq)
	_ = j.Close()
}

func TestJournal_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	clock := time.Date(2024, 5, 1, 12, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }
	var closed []string
	j.OnSegmentClosed(func(p string) { closed = append(closed, p) })
	require.NoError(t, j.WriteEntry(mintEntry(1)))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, j.WriteEntry(mintEntry(2)))
	assert.Len(t, closed, 1, "rotation completes the first segment")
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	paths, err := ListSegments(filepath.Join(dir, JournalDir), "journal")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, paths, closed)
	assert.Contains(t, filepath.Base(paths[0]), "journal-2024-05-01-12-")
	assert.Contains(t, filepath.Base(paths[1]), "journal-2024-05-01-13-")

	got, _, err := ReadEntries(dir)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAuditLog_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLog(dir)
	require.NoError(t, a.WriteRejection(campaign.RejectionEntry{
		Time:    time.Now().UTC(),
		Command: campaign.Command{Op: campaign.OpPublicMint, Caller: minter, Quantity: 1},
		Kind:    campaign.KindPublicMintClosed.String(),
	}))
	require.NoError(t, a.Close())

	got, _, err := ReadRejections(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PublicMintClosed", got[0].Kind)
}

func TestAuditLog_SegmentClosedHook(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLog(dir)
	var closed []string
	a.OnSegmentClosed(func(p string) { closed = append(closed, p) })
	require.NoError(t, a.WriteRejection(campaign.RejectionEntry{
		Time:    time.Now().UTC(),
		Command: campaign.Command{Op: campaign.OpWithdraw, Caller: minter},
		Kind:    campaign.KindUnauthorized.String(),
	}))
	assert.Empty(t, closed)
	require.NoError(t, a.Close())

	paths, err := ListSegments(filepath.Join(dir, AuditDir), "audit")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, paths, closed)
}

func TestReadEntries_MissingDirIsEmpty(t *testing.T) {
	got, st, err := ReadEntries(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, st.Segments)
}

func TestReadEntries_GarbageFails(t *testing.T) {
	dir := t.TempDir()
	jdir := filepath.Join(dir, JournalDir)
	require.NoError(t, os.MkdirAll(jdir, 0o755))
	w := NewJSONLZstdWriter(jdir, "journal", false)
	require.NoError(t, w.Write(map[string]any{"seq": "not a number"}))
	require.NoError(t, w.Write(mintEntry(1)))
	require.NoError(t, w.Close())

	_, _, err := ReadEntries(dir)
	require.Error(t, err)
}
