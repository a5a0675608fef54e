package journal

import (
	"path/filepath"

	"mintgate.io/internal/campaign"
)

const (
	JournalDir = "journal"
	AuditDir   = "audit"
)

// Journal writes one fsynced line per committed command.
type Journal struct{ w *JSONLZstdWriter }

var _ campaign.Journal = (*Journal)(nil)

func NewJournal(campaignDir string) *Journal {
	return &Journal{w: NewJSONLZstdWriter(filepath.Join(campaignDir, JournalDir), "journal", true)}
}

func (j *Journal) WriteEntry(e campaign.JournalEntry) error { return j.w.Write(e) }
func (j *Journal) Close() error                             { return j.w.Close() }

// OnSegmentClosed hooks completed journal segments, e.g. for off-site copies.
func (j *Journal) OnSegmentClosed(fn func(path string)) { j.w.OnSegmentClosed(fn) }

// AuditLog writes rejected commands; it is not fsynced.
type AuditLog struct{ w *JSONLZstdWriter }

var _ campaign.AuditLog = (*AuditLog)(nil)

func NewAuditLog(campaignDir string) *AuditLog {
	return &AuditLog{w: NewJSONLZstdWriter(filepath.Join(campaignDir, AuditDir), "audit", false)}
}

func (l *AuditLog) WriteRejection(e campaign.RejectionEntry) error { return l.w.Write(e) }
func (l *AuditLog) Close() error                                   { return l.w.Close() }

// OnSegmentClosed hooks completed audit segments.
func (l *AuditLog) OnSegmentClosed(fn func(path string)) { l.w.OnSegmentClosed(fn) }
