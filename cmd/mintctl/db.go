package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"mintgate.io/internal/persistence/indexdb"
	"mintgate.io/internal/protocol"
)

func dbCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("db", pflag.ContinueOnError)
	layout := campaignFlags(fs)
	dbPath := fs.String("db", "", "sqlite db path (default: index of -campaign)")
	limit := fs.Int("limit", 20, "result limit")
	minter := fs.String("minter", "", "minter address (mints)")
	tokenID := fs.Uint64("token", 0, "token id (owner)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q := "counts"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		l, err := layout()
		if err != nil {
			return fmt.Errorf("%w or -db", err)
		}
		path = l.IndexPath()
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	ctx := context.Background()

	switch q {
	case "counts":
		c, err := r.Counts(ctx)
		if err != nil {
			return err
		}
		last, err := r.LastSeq(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"last_seq": last, "rows": c})

	case "mints":
		var rows []indexdb.MintRow
		if *minter != "" {
			addr, err := protocol.ParseAddress("minter", *minter)
			if err != nil {
				return err
			}
			rows, err = r.MintsByMinter(ctx, addr, *limit)
			if err != nil {
				return err
			}
		} else {
			rows, err = r.RecentMints(ctx, *limit)
			if err != nil {
				return err
			}
		}
		for _, m := range rows {
			if err := printJSON(out, m); err != nil {
				return err
			}
		}
		return nil

	case "owner":
		owner, ok, err := r.TokenOwner(ctx, *tokenID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token %d not indexed", *tokenID)
		}
		_, err = fmt.Fprintln(out, owner.Hex())
		return err

	case "rejections":
		kinds, err := r.RejectionsByKind(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, kinds)

	case "snapshot":
		s, ok, err := r.LatestSnapshot(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no snapshots indexed")
		}
		return printJSON(out, s)
	}
	return fmt.Errorf("unknown query %q (counts, mints, owner, rejections, snapshot)", q)
}
