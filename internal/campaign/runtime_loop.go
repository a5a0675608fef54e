package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"mintgate.io/internal/persistence/snapshot"
)

var (
	ErrStopped   = errors.New("runtime stopped")
	ErrJournal   = errors.New("journal unavailable")
	ErrUnknownOp = errors.New("unknown op")
)

// JournalEntry records one accepted command. The journal is the source of
// truth for replay; sinks only see entries that were written to it.
type JournalEntry struct {
	Seq      uint64       `json:"seq"`
	Time     time.Time    `json:"time"`
	Command  Command      `json:"command"`
	TokenIDs []uint64     `json:"token_ids,omitempty"`
	Paid     *uint256.Int `json:"paid,omitempty"`
	Events   []Event      `json:"events,omitempty"`
}

// RejectionEntry records one refused command.
type RejectionEntry struct {
	Time    time.Time `json:"time"`
	Command Command   `json:"command"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

type Journal interface {
	WriteEntry(JournalEntry) error
}

type AuditLog interface {
	WriteRejection(RejectionEntry) error
}

// EventSink receives committed entries. Publish must not block.
type EventSink interface {
	Publish(JournalEntry)
}

type Observer interface {
	ObserveCommand(op Op, result string, d time.Duration)
	ObserveMint(phase Phase, quantity uint64)
}

type RuntimeConfig struct {
	QueueSize     int
	SnapshotEvery uint64
	Now           func() time.Time
}

type cmdReq struct {
	cmd  Command
	resp chan cmdResp
}

type cmdResp struct {
	receipt Receipt
	err     error
}

type readReq struct {
	fn   func(*Campaign)
	done chan struct{}
}

type snapshotReq struct {
	resp chan snapshotResp
}

type snapshotResp struct {
	seq uint64
	err error
}

// Runtime owns a Campaign and applies every command on a single goroutine.
type Runtime struct {
	c   *Campaign
	cfg RuntimeConfig
	log *zap.Logger

	cmds  chan cmdReq
	reads chan readReq
	snaps chan snapshotReq
	stop  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
	status   atomic.Pointer[Status]

	journal      Journal
	audits       []AuditLog
	sinks        []EventSink
	observer     Observer
	snapshotSink chan<- snapshot.SnapshotV1

	// failed is set on the loop goroutine once the journal stops accepting writes.
	failed error
	// diverged is set when a command whose journal write failed could not be
	// rolled back, so the campaign holds state the journal does not.
	diverged atomic.Bool
}

func NewRuntime(c *Campaign, cfg RuntimeConfig, log *zap.Logger) *Runtime {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runtime{
		c:     c,
		cfg:   cfg,
		log:   log,
		cmds:  make(chan cmdReq, cfg.QueueSize),
		reads: make(chan readReq, 64),
		snaps: make(chan snapshotReq, 8),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	r.publishStatus()
	return r
}

func (r *Runtime) SetJournal(j Journal)                          { r.journal = j }
func (r *Runtime) AddAuditLog(a AuditLog)                        { r.audits = append(r.audits, a) }
func (r *Runtime) AddSink(s EventSink)                           { r.sinks = append(r.sinks, s) }
func (r *Runtime) SetObserver(o Observer)                        { r.observer = o }
func (r *Runtime) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { r.snapshotSink = ch }

func (r *Runtime) CampaignID() string { return r.c.ID() }

// Run applies queued commands until ctx is done or Stop is called. The
// campaign may be read directly by the caller once Run has returned.
func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.cmds:
			r.handleCommand(ctx, req)
		case req := <-r.reads:
			req.fn(r.c)
			close(req.done)
		case req := <-r.snaps:
			seq, err := r.emitSnapshot()
			req.resp <- snapshotResp{seq: seq, err: err}
		}
	}
}

func (r *Runtime) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

// Done is closed when Run returns.
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Submit queues cmd and waits for its outcome. A command already queued is
// applied even if ctx ends first; the caller just stops waiting for it.
func (r *Runtime) Submit(ctx context.Context, cmd Command) (Receipt, error) {
	resp := make(chan cmdResp, 1)
	select {
	case r.cmds <- cmdReq{cmd: cmd, resp: resp}:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-r.done:
		return Receipt{}, ErrStopped
	}
	select {
	case out := <-resp:
		return out.receipt, out.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-r.done:
		return Receipt{}, ErrStopped
	}
}

// Status returns the state as of the last applied command without waiting on the loop.
func (r *Runtime) Status() Status { return *r.status.Load() }

func (r *Runtime) QueueDepth() int { return len(r.cmds) }

func (r *Runtime) WalletMintCount(ctx context.Context, wallet common.Address) (uint64, error) {
	var n uint64
	err := r.read(ctx, func(c *Campaign) { n = c.WalletMintCount(wallet) })
	return n, err
}

func (r *Runtime) TokenURI(ctx context.Context, id uint64) (string, error) {
	var (
		uri    string
		uriErr error
	)
	if err := r.read(ctx, func(c *Campaign) { uri, uriErr = c.TokenURI(id) }); err != nil {
		return "", err
	}
	return uri, uriErr
}

func (r *Runtime) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	var (
		owner    common.Address
		ownerErr error
	)
	if err := r.read(ctx, func(c *Campaign) { owner, ownerErr = c.OwnerOf(id) }); err != nil {
		return common.Address{}, err
	}
	return owner, ownerErr
}

// RecipientBalance reports what the account book credited to addr. It is
// zero when the payout collaborator is not an *AccountBook.
func (r *Runtime) RecipientBalance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	bal := new(uint256.Int)
	err := r.read(ctx, func(c *Campaign) {
		if book, ok := c.Payout().(*AccountBook); ok {
			bal = book.BalanceOf(addr)
		}
	})
	return bal, err
}

// RequestSnapshot asks the loop to export a snapshot to the snapshot sink.
func (r *Runtime) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case r.snaps <- snapshotReq{resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-r.done:
		return 0, ErrStopped
	}
	select {
	case out := <-resp:
		return out.seq, out.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-r.done:
		return 0, ErrStopped
	}
}

func (r *Runtime) read(ctx context.Context, fn func(*Campaign)) error {
	req := readReq{fn: fn, done: make(chan struct{})}
	select {
	case r.reads <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
}

func (r *Runtime) handleCommand(ctx context.Context, req cmdReq) {
	start := time.Now()
	receipt, err := r.apply(ctx, req.cmd)
	if r.observer != nil {
		r.observer.ObserveCommand(req.cmd.Op, resultLabel(err), time.Since(start))
		if err == nil {
			for _, ev := range receipt.Events {
				if ev.Mint != nil {
					r.observer.ObserveMint(ev.Mint.Phase, ev.Mint.Quantity)
				}
			}
		}
	}
	req.resp <- cmdResp{receipt: receipt, err: err}
}

func (r *Runtime) apply(ctx context.Context, cmd Command) (Receipt, error) {
	if r.failed != nil {
		return Receipt{}, r.failed
	}
	if !IsKnownOp(cmd.Op) {
		return Receipt{}, fmt.Errorf("%w %q", ErrUnknownOp, cmd.Op)
	}
	var cp checkpoint
	if r.journal != nil {
		cp = r.c.checkpoint(cmd.Caller)
	}
	receipt, err := r.c.Apply(ctx, cmd)
	now := r.cfg.Now().UTC()
	if err != nil {
		if rej := (*Rejection)(nil); errors.As(err, &rej) {
			r.writeRejection(RejectionEntry{Time: now, Command: cmd, Kind: rej.Kind.String(), Detail: rej.Detail})
		}
		return Receipt{}, err
	}

	entry := JournalEntry{
		Seq:      receipt.Seq,
		Time:     now,
		Command:  cmd,
		TokenIDs: receipt.TokenIDs,
		Paid:     receipt.Paid,
		Events:   receipt.Events,
	}
	if r.journal != nil {
		if err := r.journal.WriteEntry(entry); err != nil {
			r.failed = fmt.Errorf("%w: %v", ErrJournal, err)
			r.log.Error("journal append failed, refusing further commands",
				zap.Uint64("seq", entry.Seq), zap.String("op", string(cmd.Op)), zap.Error(err))
			if rbErr := r.c.rollback(cp, receipt); rbErr != nil {
				r.diverged.Store(true)
				r.log.Error("rollback failed, campaign state is ahead of the journal",
					zap.Uint64("seq", entry.Seq), zap.Error(rbErr))
			}
			return Receipt{}, r.failed
		}
	}
	r.publishStatus()
	for _, s := range r.sinks {
		s.Publish(entry)
	}
	if r.cfg.SnapshotEvery > 0 && receipt.Seq%r.cfg.SnapshotEvery == 0 {
		if _, err := r.emitSnapshot(); err != nil {
			r.log.Warn("periodic snapshot skipped", zap.Uint64("seq", receipt.Seq), zap.Error(err))
		}
	}
	return receipt, nil
}

func (r *Runtime) writeRejection(e RejectionEntry) {
	for _, a := range r.audits {
		if err := a.WriteRejection(e); err != nil {
			r.log.Warn("audit write failed", zap.Error(err))
		}
	}
}

// Durable reports whether every change in the campaign is in the journal.
// It is false only after a failed journal write that could not be rolled
// back; snapshots are refused from then on.
func (r *Runtime) Durable() bool { return !r.diverged.Load() }

func (r *Runtime) emitSnapshot() (uint64, error) {
	seq := r.c.Seq()
	if r.diverged.Load() {
		return seq, errors.New("campaign state is ahead of the journal")
	}
	if r.snapshotSink == nil {
		return seq, errors.New("snapshot sink not configured")
	}
	snap := r.c.ExportSnapshot()
	select {
	case r.snapshotSink <- snap:
		return seq, nil
	default:
		return seq, errors.New("snapshot sink backpressure")
	}
}

func (r *Runtime) publishStatus() {
	st := r.c.Status()
	r.status.Store(&st)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRejection(err):
		return KindOf(err).String()
	case errors.Is(err, ErrJournal):
		return "journal"
	default:
		return "error"
	}
}
