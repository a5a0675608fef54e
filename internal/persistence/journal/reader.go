package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"mintgate.io/internal/campaign"
)

// ReadStats describes what a read found on disk.
type ReadStats struct {
	Segments  int
	Lines     int
	Truncated int // segments that ended mid-frame, as after a crash
}

func ListSegments(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadEntries loads every committed command under campaignDir in write order.
func ReadEntries(campaignDir string) ([]campaign.JournalEntry, ReadStats, error) {
	return readAll[campaign.JournalEntry](filepath.Join(campaignDir, JournalDir), "journal")
}

func ReadRejections(campaignDir string) ([]campaign.RejectionEntry, ReadStats, error) {
	return readAll[campaign.RejectionEntry](filepath.Join(campaignDir, AuditDir), "audit")
}

func readAll[T any](dir, prefix string) ([]T, ReadStats, error) {
	var st ReadStats
	paths, err := ListSegments(dir, prefix)
	if err != nil {
		return nil, st, err
	}
	var out []T
	for _, p := range paths {
		n, truncated, err := readSegment(p, func(line []byte) error {
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		st.Segments++
		st.Lines += n
		if truncated {
			st.Truncated++
		}
		if err != nil {
			return out, st, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return out, st, nil
}

// readSegment calls fn for each complete line. A decode error ends the
// segment; the line it cut short is dropped. Because writers fsync before
// acknowledging, only unacknowledged data can be lost this way.
func readSegment(path string, fn func([]byte) error) (lines int, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, false, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var bad error
	for sc.Scan() {
		if bad != nil {
			// A malformed line followed by more data is corruption, not truncation.
			return lines, false, fmt.Errorf("line %d: %w", lines+1, bad)
		}
		if err := fn(sc.Bytes()); err != nil {
			bad = err
			continue
		}
		lines++
	}
	if sc.Err() != nil {
		return lines, true, nil
	}
	if bad != nil {
		return lines, false, fmt.Errorf("line %d: %w", lines+1, bad)
	}
	return lines, false, nil
}
