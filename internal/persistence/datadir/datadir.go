// Package datadir owns the on-disk layout of a campaign and rebuilds its
// state from the latest snapshot plus the journal.
//
//	<data>/campaigns/<id>/
//	  deployment.json
//	  journal/journal-*.jsonl.zst
//	  audit/audit-*.jsonl.zst
//	  snapshots/<seq>.snap.zst
//	  index/index.sqlite
package datadir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/persistence/journal"
	"mintgate.io/internal/persistence/snapshot"
)

type Layout struct {
	Dir string
}

func CampaignLayout(dataDir, campaignID string) Layout {
	return Layout{Dir: filepath.Join(dataDir, "campaigns", campaignID)}
}

func (l Layout) SnapshotDir() string    { return filepath.Join(l.Dir, "snapshots") }
func (l Layout) IndexPath() string      { return filepath.Join(l.Dir, "index", "index.sqlite") }
func (l Layout) DeploymentPath() string { return filepath.Join(l.Dir, "deployment.json") }

func (l Layout) SnapshotPath(seq uint64) string {
	return filepath.Join(l.SnapshotDir(), snapshot.FileName(seq))
}

func (l Layout) Ensure() error { return os.MkdirAll(l.Dir, 0o755) }

type Recovery struct {
	SnapshotPath string
	SnapshotSeq  uint64
	Replayed     int
	Journal      journal.ReadStats
	// Entries is the whole journal, for index catch-up.
	Entries []campaign.JournalEntry
}

type RecoverOptions struct {
	// SnapshotPath overrides the latest snapshot. "-" starts from cfg.
	SnapshotPath string
}

// Recover loads the campaign at l. A fresh campaign is built from cfg when
// there is no snapshot; otherwise cfg only has to agree on the campaign id.
func (l Layout) Recover(ctx context.Context, cfg campaign.Config, opts RecoverOptions) (*campaign.Campaign, Recovery, error) {
	var rec Recovery

	path := opts.SnapshotPath
	if path == "" {
		p, _, err := snapshot.Latest(l.SnapshotDir())
		if err != nil {
			return nil, rec, fmt.Errorf("find snapshot: %w", err)
		}
		path = p
	}

	var c *campaign.Campaign
	if path != "" && path != "-" {
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return nil, rec, fmt.Errorf("read snapshot %s: %w", path, err)
		}
		if snap.Header.CampaignID != cfg.ID {
			return nil, rec, fmt.Errorf("snapshot %s belongs to campaign %q, not %q", path, snap.Header.CampaignID, cfg.ID)
		}
		c, err = campaign.FromSnapshot(snap)
		if err != nil {
			return nil, rec, fmt.Errorf("load snapshot %s: %w", path, err)
		}
		rec.SnapshotPath, rec.SnapshotSeq = path, snap.Header.Seq
	} else {
		var err error
		c, err = campaign.New(cfg)
		if err != nil {
			return nil, rec, err
		}
	}

	entries, stats, err := journal.ReadEntries(l.Dir)
	if err != nil {
		return nil, rec, fmt.Errorf("read journal: %w", err)
	}
	rec.Journal, rec.Entries = stats, entries
	n, err := campaign.Replay(ctx, c, entries)
	rec.Replayed = n
	if err != nil {
		return nil, rec, err
	}
	return c, rec, nil
}
