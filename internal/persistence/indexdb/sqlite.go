// Package indexdb keeps an asynchronous sqlite read model of a campaign:
// commits, mints, token holders, withdrawals, reveals, rejections and
// snapshots. The journal stays the source of truth; the index may lag or drop
// rows under load and can be rebuilt by replaying the journal into it.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/persistence/snapshot"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db     *sql.DB
	reader *Reader
	log    *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCommit    atomic.Uint64
	dropRejection atomic.Uint64
	dropSnapshot  atomic.Uint64
	writeErrors   atomic.Uint64
}

var (
	_ campaign.EventSink = (*SQLiteIndex)(nil)
	_ campaign.AuditLog  = (*SQLiteIndex)(nil)
)

type reqKind int

const (
	reqCommit reqKind = iota + 1
	reqRejection
	reqSnapshot
)

type req struct {
	kind reqKind

	entry     campaign.JournalEntry
	rejection campaign.RejectionEntry
	snapshot  snapshotRow
}

type snapshotRow struct {
	Seq         uint64
	Path        string
	TotalMinted uint64
	Wallets     int
	BalanceWei  string
	Digest      string
	RecordedAt  string
}

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	DropCommitTotal    uint64 `json:"drop_commit_total"`
	DropRejectionTotal uint64 `json:"drop_rejection_total"`
	DropSnapshotTotal  uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal    uint64 `json:"write_error_total"`
}

func OpenSQLite(path, campaignID string, logger *zap.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db, campaignID); err != nil {
		_ = db.Close()
		return nil, err
	}
	reader, err := OpenReader(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		reader: reader,
		log:    logger,
		// Bursty mint traffic must never stall the runtime loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL lets the query handle read while the writer batches.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB, campaignID string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commits (
			seq INTEGER PRIMARY KEY,
			op TEXT NOT NULL,
			caller TEXT NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_caller_seq ON commits(caller, seq);`,
		`CREATE TABLE IF NOT EXISTS mints (
			seq INTEGER PRIMARY KEY,
			minter TEXT NOT NULL,
			phase TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price_paid_wei TEXT NOT NULL,
			first_token_id INTEGER NOT NULL,
			last_token_id INTEGER NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mints_minter_seq ON mints(minter, seq);`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token_id INTEGER PRIMARY KEY,
			owner TEXT NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner, token_id);`,
		`CREATE TABLE IF NOT EXISTS withdrawals (
			seq INTEGER PRIMARY KEY,
			to_addr TEXT NOT NULL,
			amount_wei TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reveals (
			seq INTEGER PRIMARY KEY,
			base_uri TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			op TEXT NOT NULL,
			caller TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_kind ON rejections(kind, id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			total_minted INTEGER NOT NULL,
			wallets INTEGER NOT NULL,
			balance_wei TEXT NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	if campaignID != "" {
		var existing string
		err := db.QueryRow(`SELECT value FROM meta WHERE key='campaign_id'`).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			if _, err := db.Exec(`INSERT INTO meta(key,value) VALUES('campaign_id',?)`, campaignID); err != nil {
				return err
			}
		case err != nil:
			return err
		case existing != campaignID:
			return fmt.Errorf("index belongs to campaign %q, not %q", existing, campaignID)
		}
	}
	return nil
}

// Reader returns the query handle over the same database.
func (s *SQLiteIndex) Reader() *Reader { return s.reader }

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
		if rerr := s.reader.Close(); err == nil {
			err = rerr
		}
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropCommitTotal:    s.dropCommit.Load(),
		DropRejectionTotal: s.dropRejection.Load(),
		DropSnapshotTotal:  s.dropSnapshot.Load(),
		WriteErrorTotal:    s.writeErrors.Load(),
	}
}

// Publish implements campaign.EventSink.
func (s *SQLiteIndex) Publish(e campaign.JournalEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCommit, entry: e}:
	default:
		// Drop if the indexer falls behind; the journal remains the source of truth.
		s.dropCommit.Add(1)
	}
}

// WriteRejection implements campaign.AuditLog. It never fails the caller.
func (s *SQLiteIndex) WriteRejection(e campaign.RejectionEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqRejection, rejection: e}:
	default:
		s.dropRejection.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Seq:         snap.Header.Seq,
		Path:        path,
		TotalMinted: snap.TotalMinted,
		Wallets:     len(snap.Wallets),
		BalanceWei:  snap.BalanceWei,
		Digest:      snap.Header.Digest,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertCommit, _ := s.db.Prepare(`INSERT OR REPLACE INTO commits(seq,op,caller,at,raw_json) VALUES(?,?,?,?,?)`)
	insertMint, _ := s.db.Prepare(`INSERT OR REPLACE INTO mints(seq,minter,phase,quantity,price_paid_wei,first_token_id,last_token_id,at) VALUES(?,?,?,?,?,?,?,?)`)
	insertToken, _ := s.db.Prepare(`INSERT OR REPLACE INTO tokens(token_id,owner,seq) VALUES(?,?,?)`)
	insertWithdraw, _ := s.db.Prepare(`INSERT OR REPLACE INTO withdrawals(seq,to_addr,amount_wei,at) VALUES(?,?,?,?)`)
	insertReveal, _ := s.db.Prepare(`INSERT OR REPLACE INTO reveals(seq,base_uri,at) VALUES(?,?,?)`)
	insertRejection, _ := s.db.Prepare(`INSERT INTO rejections(at,op,caller,kind,detail,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,total_minted,wallets,balance_wei,digest,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertCommit, insertMint, insertToken, insertWithdraw, insertReveal, insertRejection, insertSnapshot}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()
	for _, st := range stmts {
		if st == nil {
			s.log.Error("index statements failed to prepare; index disabled")
			for range s.ch {
			}
			return
		}
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.log.Warn("index commit failed", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.writeErrors.Add(1)
		s.log.Warn("index write failed", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCommit:
			e := r.entry
			at := e.Time.UTC().Format(time.RFC3339Nano)
			raw, _ := json.Marshal(e)
			seq := int64(e.Seq)
			if !exec(insertCommit, seq, string(e.Command.Op), e.Command.Caller.Hex(), at, string(raw)) {
				continue
			}
			for _, ev := range e.Events {
				ok := true
				switch {
				case ev.Mint != nil:
					m := ev.Mint
					ok = exec(insertMint, seq, m.Minter.Hex(), string(m.Phase), int64(m.Quantity),
						weiDec(m.PricePaid), int64(m.FirstTokenID), int64(m.LastTokenID), at)
					for id := m.FirstTokenID; ok && id <= m.LastTokenID; id++ {
						ok = exec(insertToken, int64(id), m.Minter.Hex(), seq)
					}
				case ev.Withdraw != nil:
					ok = exec(insertWithdraw, seq, ev.Withdraw.To.Hex(), weiDec(ev.Withdraw.Amount), at)
				case ev.Reveal != nil:
					ok = exec(insertReveal, seq, ev.Reveal.BaseURI, at)
				}
				if !ok {
					break
				}
			}

		case reqRejection:
			e := r.rejection
			raw, _ := json.Marshal(e)
			exec(insertRejection, e.Time.UTC().Format(time.RFC3339Nano), string(e.Command.Op),
				e.Command.Caller.Hex(), e.Kind, e.Detail, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Seq), sn.Path, int64(sn.TotalMinted), sn.Wallets,
				sn.BalanceWei, sn.Digest, sn.RecordedAt)
		}
		// Commit on size, age, or when the queue drains so readers see fresh rows.
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}

func weiDec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// CatchUp queues the journal entries the index has not seen yet and returns
// how many were queued.
func (s *SQLiteIndex) CatchUp(ctx context.Context, entries []campaign.JournalEntry) (int, error) {
	last, err := s.reader.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Seq <= last {
			continue
		}
		s.Publish(e)
		n++
	}
	return n, nil
}
