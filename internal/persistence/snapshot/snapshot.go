package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	CampaignID string `json:"campaign_id"`
	Seq        uint64 `json:"seq"`
	Digest     string `json:"digest"`
}

// SnapshotV1 is a full copy of one campaign. Amounts are decimal wei strings
// and addresses are 0x-prefixed hex so the file does not depend on the
// in-memory number types.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	MaxSupply      uint64 `json:"max_supply"`
	MetadataSuffix string `json:"metadata_suffix"`

	Owner        string `json:"owner"`
	MintPriceWei string `json:"mint_price_wei"`
	MaxPerWallet uint64 `json:"max_per_wallet"`
	MerkleRoot   string `json:"merkle_root"`
	HiddenURI    string `json:"hidden_uri"`
	BaseURI      string `json:"base_uri,omitempty"`

	AllowlistOpen bool `json:"allowlist_open"`
	PublicOpen    bool `json:"public_open"`
	Revealed      bool `json:"revealed"`

	TotalMinted uint64     `json:"total_minted"`
	Wallets     []WalletV1 `json:"wallets"`

	// Holders[i] owns token id i+1.
	Holders []string `json:"holders,omitempty"`

	BalanceWei   string     `json:"balance_wei"`
	CollectedWei string     `json:"collected_wei"`
	WithdrawnWei string     `json:"withdrawn_wei"`
	Payouts      []PayoutV1 `json:"payouts,omitempty"`
}

type WalletV1 struct {
	Address string `json:"address"`
	Minted  uint64 `json:"minted"`
}

type PayoutV1 struct {
	Address   string `json:"address"`
	AmountWei string `json:"amount_wei"`
}

// FileName is the file name of the snapshot taken at seq.
func FileName(seq uint64) string {
	return fmt.Sprintf("%012d.snap.zst", seq)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Latest returns the path of the highest-seq snapshot in dir, or "" if none.
func Latest(dir string) (string, uint64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, err
	}
	type cand struct {
		seq  uint64
		name string
	}
	var cands []cand
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{seq: seq, name: name})
	}
	if len(cands) == 0 {
		return "", 0, nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].seq > cands[j].seq })
	return filepath.Join(dir, cands[0].name), cands[0].seq, nil
}
