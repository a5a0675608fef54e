// Command mintctl is the offline admin tool for mintgate data directories.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"

	"mintgate.io/internal/persistence/datadir"
)

type command struct {
	name  string
	usage string
	run   func(args []string, out io.Writer) error
}

var commands = []command{
	{"merkle", "build merkle.json from an allowlist", merkleCmd},
	{"snapshot", "inspect a snapshot", snapshotCmd},
	{"journal", "print journal or audit entries", journalCmd},
	{"replay", "rebuild the campaign from config, snapshot and journal", replayCmd},
	{"db", "query the sqlite index", dbCmd},
	{"deployment", "print the deployment record", deploymentCmd},
	{"keygen", "generate a wallet key", keygenCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}
	usage(os.Stderr)
	os.Exit(2)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: mintctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.usage)
	}
}

// campaignFlags adds -data and -campaign to fs.
func campaignFlags(fs *pflag.FlagSet) func() (datadir.Layout, error) {
	dataDir := fs.String("data", "./data", "runtime data directory")
	id := fs.String("campaign", "", "campaign id")
	return func() (datadir.Layout, error) {
		if strings.TrimSpace(*id) == "" {
			return datadir.Layout{}, fmt.Errorf("missing -campaign")
		}
		return datadir.CampaignLayout(*dataDir, *id), nil
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func deploymentCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("deployment", pflag.ContinueOnError)
	layout := campaignFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := layout()
	if err != nil {
		return err
	}
	d, err := l.ReadDeployment()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func keygenCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	return printJSON(out, map[string]string{
		"address":     crypto.PubkeyToAddress(k.PublicKey).Hex(),
		"private_key": hexutil.Encode(crypto.FromECDSA(k)),
	})
}
