package indexdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Reader runs queries on its own connection pool so lookups never wait
// behind the writer's batch transaction.
type Reader struct {
	db *sql.DB
}

type MintRow struct {
	Seq          uint64 `json:"seq"`
	Minter       string `json:"minter"`
	Phase        string `json:"phase"`
	Quantity     uint64 `json:"quantity"`
	PricePaidWei string `json:"price_paid_wei"`
	FirstTokenID uint64 `json:"first_token_id"`
	LastTokenID  uint64 `json:"last_token_id"`
	At           string `json:"at"`
}

type SnapshotRow struct {
	Seq         uint64 `json:"seq"`
	Path        string `json:"path"`
	TotalMinted uint64 `json:"total_minted"`
	Wallets     int    `json:"wallets"`
	BalanceWei  string `json:"balance_wei"`
	Digest      string `json:"digest"`
	RecordedAt  string `json:"recorded_at"`
}

type Counts struct {
	Commits     int64 `json:"commits"`
	Mints       int64 `json:"mints"`
	Tokens      int64 `json:"tokens"`
	Withdrawals int64 `json:"withdrawals"`
	Reveals     int64 `json:"reveals"`
	Rejections  int64 `json:"rejections"`
	Snapshots   int64 `json:"snapshots"`
}

func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

// MintsByMinter returns the newest mints of one wallet first.
func (r *Reader) MintsByMinter(ctx context.Context, minter common.Address, limit int) ([]MintRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq,minter,phase,quantity,price_paid_wei,first_token_id,last_token_id,at
		 FROM mints WHERE minter=? ORDER BY seq DESC LIMIT ?`, minter.Hex(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanMints(rows)
}

func (r *Reader) RecentMints(ctx context.Context, limit int) ([]MintRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq,minter,phase,quantity,price_paid_wei,first_token_id,last_token_id,at
		 FROM mints ORDER BY seq DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanMints(rows)
}

func scanMints(rows *sql.Rows) ([]MintRow, error) {
	defer rows.Close()
	var out []MintRow
	for rows.Next() {
		var m MintRow
		if err := rows.Scan(&m.Seq, &m.Minter, &m.Phase, &m.Quantity, &m.PricePaidWei, &m.FirstTokenID, &m.LastTokenID, &m.At); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TokenOwner reports the indexed holder of id. ok is false when the index
// has not seen the token.
func (r *Reader) TokenOwner(ctx context.Context, id uint64) (owner common.Address, ok bool, err error) {
	var hex string
	err = r.db.QueryRowContext(ctx, `SELECT owner FROM tokens WHERE token_id=?`, int64(id)).Scan(&hex)
	if err == sql.ErrNoRows {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	return common.HexToAddress(hex), true, nil
}

// LastSeq is the highest indexed commit, 0 for an empty index.
func (r *Reader) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM commits`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

func (r *Reader) LatestSnapshot(ctx context.Context) (SnapshotRow, bool, error) {
	var s SnapshotRow
	err := r.db.QueryRowContext(ctx,
		`SELECT seq,path,total_minted,wallets,balance_wei,digest,recorded_at
		 FROM snapshots ORDER BY seq DESC LIMIT 1`).
		Scan(&s.Seq, &s.Path, &s.TotalMinted, &s.Wallets, &s.BalanceWei, &s.Digest, &s.RecordedAt)
	if err == sql.ErrNoRows {
		return SnapshotRow{}, false, nil
	}
	if err != nil {
		return SnapshotRow{}, false, err
	}
	return s, true, nil
}

// RejectionsByKind counts refused commands per rejection kind.
func (r *Reader) RejectionsByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM rejections GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

func (r *Reader) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	tables := []struct {
		name string
		dst  *int64
	}{
		{"commits", &c.Commits},
		{"mints", &c.Mints},
		{"tokens", &c.Tokens},
		{"withdrawals", &c.Withdrawals},
		{"reveals", &c.Reveals},
		{"rejections", &c.Rejections},
		{"snapshots", &c.Snapshots},
	}
	for _, t := range tables {
		if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.name)).Scan(t.dst); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", t.name, err)
		}
	}
	return c, nil
}
