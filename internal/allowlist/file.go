package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// File is the merkle.json document handed to minters: the root, one proof
// per member keyed by the address as listed, and the generation time.
type File struct {
	Root        string              `json:"root"`
	Proofs      map[string][]string `json:"proofs"`
	GeneratedAt string              `json:"generatedAt"`
}

// ReadAddresses loads a JSON array of hex addresses.
func ReadAddresses(path string) ([]string, []common.Address, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	addrs := make([]common.Address, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if !common.IsHexAddress(s) {
			return nil, nil, fmt.Errorf("%s: entry %d (%q) is not an address", filepath.Base(path), i, s)
		}
		raw[i] = s
		addrs = append(addrs, common.HexToAddress(s))
	}
	return raw, addrs, nil
}

// NewFile renders the tree. keys are the addresses as written in the input.
func NewFile(t *Tree, keys []string, now time.Time) (File, error) {
	f := File{
		Root:        t.Root().Hex(),
		Proofs:      make(map[string][]string, len(keys)),
		GeneratedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	for _, k := range keys {
		proof, err := t.Proof(common.HexToAddress(k))
		if err != nil {
			return File{}, err
		}
		hexes := make([]string, len(proof))
		for i, p := range proof {
			hexes[i] = p.Hex()
		}
		f.Proofs[k] = hexes
	}
	return f, nil
}

func WriteFile(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func ReadFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// ProofFor finds addr's proof, matching keys case-insensitively.
func (f File) ProofFor(addr common.Address) ([]common.Hash, error) {
	for k, hexes := range f.Proofs {
		if !strings.EqualFold(k, addr.Hex()) {
			continue
		}
		proof := make([]common.Hash, len(hexes))
		for i, h := range hexes {
			b, err := hexutil.Decode(h)
			if err != nil || len(b) != common.HashLength {
				return nil, fmt.Errorf("proof element %d for %s is not a 32-byte hex value", i, k)
			}
			proof[i] = common.BytesToHash(b)
		}
		return proof, nil
	}
	return nil, fmt.Errorf("no proof for %s", addr.Hex())
}

func (f File) RootHash() (common.Hash, error) {
	b, err := hexutil.Decode(f.Root)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("root %q is not a 32-byte hex value", f.Root)
	}
	return common.BytesToHash(b), nil
}
