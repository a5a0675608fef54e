package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"mintgate.io/internal/config"
	"mintgate.io/internal/persistence/datadir"
	"mintgate.io/internal/persistence/journal"
	"mintgate.io/internal/persistence/snapshot"
	"mintgate.io/internal/units"
)

func snapshotCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
	layout := campaignFlags(fs)
	path := fs.String("path", "", "snapshot path (default: latest of -campaign)")
	full := fs.Bool("full", false, "print every field, including wallets and holders")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := strings.TrimSpace(*path)
	if p == "" {
		l, err := layout()
		if err != nil {
			return err
		}
		if p, _, err = snapshot.Latest(l.SnapshotDir()); err != nil {
			return err
		}
		if p == "" {
			return fmt.Errorf("no snapshot in %s", l.SnapshotDir())
		}
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		return err
	}
	if *full {
		return printJSON(out, snap)
	}
	fmt.Fprintf(out, "snapshot v%d campaign=%s seq=%d digest=%s\n",
		snap.Header.Version, snap.Header.CampaignID, snap.Header.Seq, snap.Header.Digest)
	fmt.Fprintf(out, "minted=%d/%d wallets=%d allowlist_open=%t public_open=%t revealed=%t\n",
		snap.TotalMinted, snap.MaxSupply, len(snap.Wallets), snap.AllowlistOpen, snap.PublicOpen, snap.Revealed)
	fmt.Fprintf(out, "balance=%s wei collected=%s wei withdrawn=%s wei\n",
		snap.BalanceWei, snap.CollectedWei, snap.WithdrawnWei)
	return nil
}

func journalCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("journal", pflag.ContinueOnError)
	layout := campaignFlags(fs)
	audit := fs.Bool("audit", false, "print rejections instead of commits")
	since := fs.Uint64("since", 0, "skip commits with seq <= since")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := layout()
	if err != nil {
		return err
	}
	var stats journal.ReadStats
	if *audit {
		rs, st, err := journal.ReadRejections(l.Dir)
		if err != nil {
			return err
		}
		for _, r := range rs {
			if err := printJSON(out, r); err != nil {
				return err
			}
		}
		stats = st
	} else {
		es, st, err := journal.ReadEntries(l.Dir)
		if err != nil {
			return err
		}
		for _, e := range es {
			if e.Seq <= *since {
				continue
			}
			if err := printJSON(out, e); err != nil {
				return err
			}
		}
		stats = st
	}
	if stats.Truncated > 0 {
		fmt.Fprintf(out, "# %d segment(s) ended in a truncated frame\n", stats.Truncated)
	}
	return nil
}

func replayCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	configPath := fs.String("config", "./configs/campaign.yaml", "campaign config path")
	envFile := fs.String("env-file", ".env", "dotenv file")
	dataDir := fs.String("data", "", "runtime data directory (default: server.data_dir)")
	snapPath := fs.String("snapshot", "-", `snapshot to start from ("" for latest, "-" for none)`)
	expect := fs.String("expect", "", "expected final state digest")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Resolve(*configPath, *envFile)
	if err != nil {
		return err
	}
	ccfg, err := cfg.Build()
	if err != nil {
		return err
	}
	dir := cfg.Server.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}
	l := datadir.CampaignLayout(dir, ccfg.ID)

	c, rec, err := l.Recover(context.Background(), ccfg, datadir.RecoverOptions{SnapshotPath: *snapPath})
	if err != nil {
		return err
	}
	st := c.Status()
	digest := c.StateDigest()
	if rec.SnapshotPath != "" {
		fmt.Fprintf(out, "from snapshot %s (seq %d)\n", rec.SnapshotPath, rec.SnapshotSeq)
	}
	fmt.Fprintf(out, "replayed=%d segments=%d truncated=%d\n", rec.Replayed, rec.Journal.Segments, rec.Journal.Truncated)
	fmt.Fprintf(out, "seq=%d minted=%d/%d wallets=%d balance=%s ETH revealed=%t\n",
		st.Seq, st.TotalMinted, st.MaxSupply, st.Wallets, units.FormatEther(st.Balance), st.Revealed)
	fmt.Fprintf(out, "digest=%s\n", digest)

	// Cross-check against the newest snapshot at the same seq, if any.
	if p, seq, err := snapshot.Latest(l.SnapshotDir()); err == nil && p != "" && seq == st.Seq {
		if h, err := snapshot.ReadHeader(p); err == nil && h.Digest != "" {
			if h.Digest != digest {
				return fmt.Errorf("digest mismatch with %s: %s", p, h.Digest)
			}
			fmt.Fprintf(out, "matches %s\n", p)
		}
	}
	if *expect != "" && *expect != digest {
		return fmt.Errorf("digest mismatch: expected %s", *expect)
	}
	return nil
}
