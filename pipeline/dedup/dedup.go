package dedup

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// Deduper turns raw postings into job records. It owns canonicalization
// and fingerprinting; the actual record write goes through the state
// machine, which is the only component allowed to mutate records.
type Deduper struct {
	machine *lifecycle.Machine
	log     *zap.SugaredLogger
}

// NewDeduper creates a deduplicator writing through machine.
func NewDeduper(machine *lifecycle.Machine, log *zap.SugaredLogger) *Deduper {
	return &Deduper{machine: machine, log: log}
}

// Upsert resolves the posting to its fingerprint and writes it through
// the state machine: an unseen fingerprint creates the record in
// discovered, a seen one merges the new source and fills empty fields.
// Returns the stored record and whether it was created.
func (d *Deduper) Upsert(ctx context.Context, raw collab.RawPosting) (*lifecycle.JobRecord, bool, error) {
	if raw.Company == "" || raw.Title == "" {
		return nil, false, errors.New("posting missing company or title")
	}

	c := Canonicalize(raw.Company, raw.Title, raw.Location)
	rec := &lifecycle.JobRecord{
		Fingerprint: Fingerprint(c),
		Company:     c.Company,
		Title:       c.Title,
		Location:    c.Location,
		Region:      c.Region,
		Description: raw.Description,
		Sources: []lifecycle.JobSource{{
			Platform: raw.SourcePlatform,
			SourceID: raw.SourceID,
			URL:      raw.URL,
		}},
	}

	stored, created, err := d.machine.Upsert(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if !created {
		d.log.Debugw("Posting merged into existing record",
			logger.FieldFingerprint, stored.Fingerprint[:12],
			logger.FieldPlatform, raw.SourcePlatform,
			logger.FieldSourceID, raw.SourceID,
		)
	}
	return stored, created, nil
}
