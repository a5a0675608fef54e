package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintgate.io/internal/persistence/snapshot"
)

type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
	failAt  uint64
}

func (j *memJournal) WriteEntry(e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failAt != 0 && e.Seq >= j.failAt {
		return errors.New("disk full")
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]JournalEntry(nil), j.entries...)
}

type memAudit struct {
	mu   sync.Mutex
	rows []RejectionEntry
}

func (a *memAudit) WriteRejection(e RejectionEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows = append(a.rows, e)
	return nil
}

type memSink struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (s *memSink) Publish(e JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func startRuntime(t *testing.T, c *Campaign, cfg RuntimeConfig) (*Runtime, *memJournal) {
	t.Helper()
	rt := NewRuntime(c, cfg, zap.NewNop())
	j := &memJournal{}
	rt.SetJournal(j)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = rt.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-rt.Done()
	})
	return rt, j
}

func TestRuntime_ConcurrentMintsRespectCaps(t *testing.T) {
	c, proofs := newTestCampaign(t, func(cfg *Config) {
		cfg.MaxSupply = 50
		cfg.MaxPerWallet = 7
	})
	rt, j := startRuntime(t, c, RuntimeConfig{})
	ctx := context.Background()

	_, err := rt.Submit(ctx, Command{Op: OpSetPhases, Caller: ownerAddr, AllowlistOpen: true, PublicOpen: true})
	require.NoError(t, err)

	wallets := []common.Address{walletA, walletB, walletC, outsider, ownerAddr}
	for i := 0; i < 10; i++ {
		var a common.Address
		a[0] = 0xee
		a[19] = byte(i)
		wallets = append(wallets, a)
	}

	var wg sync.WaitGroup
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				w := wallets[(g+i)%len(wallets)]
				cmd := Command{Op: OpPublicMint, Caller: w, Quantity: 1, Value: wei(50)}
				if p, ok := proofs[w]; ok && i%2 == 0 {
					cmd.Op = OpAllowlistMint
					cmd.Proof = p
				}
				_, err := rt.Submit(ctx, cmd)
				if err != nil && !IsRejection(err) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	st := rt.Status()
	assert.Equal(t, uint64(50), st.TotalMinted)
	for _, w := range wallets {
		n, err := rt.WalletMintCount(ctx, w)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, uint64(7))
	}
	assert.Equal(t, "2500", st.Balance.Dec())

	entries := j.Entries()
	var minted uint64
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		minted += uint64(len(e.TokenIDs))
	}
	assert.Equal(t, uint64(50), minted)
}

func TestRuntime_RejectionsAreAuditedNotJournaled(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	rt, j := startRuntime(t, c, RuntimeConfig{})
	audit := &memAudit{}
	sink := &memSink{}
	rt.AddAuditLog(audit)
	rt.AddSink(sink)
	ctx := context.Background()

	_, err := rt.Submit(ctx, Command{Op: OpPublicMint, Caller: walletA, Quantity: 1, Value: wei(50)})
	requireKind(t, err, KindPublicMintClosed)

	_, err = rt.Submit(ctx, Command{Op: "burn", Caller: walletA})
	require.ErrorIs(t, err, ErrUnknownOp)

	_, err = rt.Submit(ctx, Command{Op: OpReveal, Caller: ownerAddr, URI: "ipfs://revealed/"})
	require.NoError(t, err)

	assert.Len(t, j.Entries(), 1)
	audit.mu.Lock()
	require.Len(t, audit.rows, 1)
	assert.Equal(t, "PublicMintClosed", audit.rows[0].Kind)
	audit.mu.Unlock()

	sink.mu.Lock()
	require.Len(t, sink.entries, 1)
	assert.Equal(t, EventReveal, sink.entries[0].Events[0].Type)
	sink.mu.Unlock()
	assert.True(t, rt.Status().Revealed)
}

func TestRuntime_JournalFailureStopsMutations(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	rt, j := startRuntime(t, c, RuntimeConfig{})
	sink := &memSink{}
	rt.AddSink(sink)
	j.failAt = 2
	ctx := context.Background()

	_, err := rt.Submit(ctx, Command{Op: OpSetPhases, Caller: ownerAddr, PublicOpen: true})
	require.NoError(t, err)

	_, err = rt.Submit(ctx, Command{Op: OpPublicMint, Caller: walletA, Quantity: 2, Value: wei(100)})
	require.ErrorIs(t, err, ErrJournal)

	_, err = rt.Submit(ctx, Command{Op: OpPublicMint, Caller: walletB, Quantity: 1, Value: wei(50)})
	require.ErrorIs(t, err, ErrJournal)

	// The mint that could not be journaled was taken back.
	for _, w := range []common.Address{walletA, walletB} {
		n, err := rt.WalletMintCount(ctx, w)
		require.NoError(t, err)
		assert.Zerof(t, n, "wallet %s", w.Hex())
	}
	_, err = rt.TokenURI(ctx, 1)
	requireKind(t, err, KindUnknownToken)
	st := rt.Status()
	assert.Zero(t, st.TotalMinted)
	assert.True(t, st.Balance.IsZero())
	assert.Equal(t, uint64(1), st.Seq)
	assert.True(t, rt.Durable())
	assert.Len(t, j.Entries(), 1)

	sink.mu.Lock()
	assert.Len(t, sink.entries, 1, "unjournaled commands are not published")
	sink.mu.Unlock()

	rt.Stop()
	<-rt.Done()
	assert.Zero(t, c.TotalMinted())
	assert.True(t, c.Balance().IsZero())
	assert.Equal(t, uint64(0), c.ExportSnapshot().TotalMinted)
}

// plainPayout cannot reverse a transfer.
type plainPayout struct{}

func (plainPayout) Transfer(context.Context, common.Address, *uint256.Int) error { return nil }

func TestRuntime_IrreversibleJournalFailureRefusesSnapshots(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	openPhases(t, c, false, true)
	_, err := c.PublicMint(walletA, 1, wei(50))
	require.NoError(t, err)
	c.SetPayout(plainPayout{})

	rt, j := startRuntime(t, c, RuntimeConfig{})
	rt.SetSnapshotSink(make(chan snapshot.SnapshotV1, 1))
	j.failAt = c.Seq() + 1
	ctx := context.Background()

	_, err = rt.Submit(ctx, Command{Op: OpWithdraw, Caller: ownerAddr, To: walletC})
	require.ErrorIs(t, err, ErrJournal)
	assert.False(t, rt.Durable())

	_, err = rt.RequestSnapshot(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ahead of the journal")
}

func TestRuntime_Queries(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	rt, _ := startRuntime(t, c, RuntimeConfig{})
	ctx := context.Background()

	_, err := rt.Submit(ctx, Command{Op: OpSetPhases, Caller: ownerAddr, PublicOpen: true})
	require.NoError(t, err)
	r, err := rt.Submit(ctx, Command{Op: OpPublicMint, Caller: walletA, Quantity: 2, Value: wei(100)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.Seq)

	uri, err := rt.TokenURI(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://hidden/metadata.json", uri)

	_, err = rt.TokenURI(ctx, 3)
	requireKind(t, err, KindUnknownToken)

	holder, err := rt.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, walletA, holder)

	_, err = rt.Submit(ctx, Command{Op: OpWithdraw, Caller: ownerAddr, To: walletC})
	require.NoError(t, err)
	bal, err := rt.RecipientBalance(ctx, walletC)
	require.NoError(t, err)
	assert.Equal(t, "100", bal.Dec())
	assert.True(t, rt.Status().Balance.IsZero())
}

func TestRuntime_SnapshotsEveryN(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	rt := NewRuntime(c, RuntimeConfig{SnapshotEvery: 2}, nil)
	sink := make(chan snapshot.SnapshotV1, 4)
	rt.SetSnapshotSink(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	for _, uri := range []string{"a", "b", "c"} {
		_, err := rt.Submit(ctx, Command{Op: OpSetHiddenURI, Caller: ownerAddr, URI: uri})
		require.NoError(t, err)
	}
	select {
	case snap := <-sink:
		assert.Equal(t, uint64(2), snap.Header.Seq)
		assert.Equal(t, "b", snap.HiddenURI)
	case <-time.After(2 * time.Second):
		t.Fatal("no periodic snapshot")
	}

	seq, err := rt.RequestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	snap := <-sink
	assert.Equal(t, "c", snap.HiddenURI)
}

func TestRuntime_SubmitAfterStop(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	rt := NewRuntime(c, RuntimeConfig{QueueSize: 1}, nil)
	done := make(chan struct{})
	go func() {
		_ = rt.Run(context.Background())
		close(done)
	}()
	rt.Stop()
	<-done
	rt.Stop()

	_, err := rt.Submit(context.Background(), Command{Op: OpSetPhases, Caller: ownerAddr})
	// The one-slot queue may accept the command, but nobody will answer it.
	require.ErrorIs(t, err, ErrStopped)
}
