package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"mintgate.io/internal/allowlist"
)

func merkleCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("merkle", pflag.ContinueOnError)
	in := fs.String("in", "allowlist.json", "JSON array of allowlisted addresses")
	outPath := fs.String("out", "merkle.json", "output path for root and proofs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keys, addrs, err := allowlist.ReadAddresses(*in)
	if err != nil {
		return err
	}
	tree, err := allowlist.Build(addrs)
	if err != nil {
		return err
	}
	f, err := allowlist.NewFile(tree, keys, time.Now())
	if err != nil {
		return err
	}
	if err := allowlist.WriteFile(*outPath, f); err != nil {
		return err
	}
	fmt.Fprintf(out, "merkle root: %s\n", f.Root)
	fmt.Fprintf(out, "wrote %d proofs to %s\n", len(f.Proofs), *outPath)
	return nil
}
