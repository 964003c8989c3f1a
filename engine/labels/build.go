package labels

import (
	"context"
	"errors"
	"fmt"

	"github.com/rti/askwikidata/engine/wikidata"
)

// BuildOptions tunes the one-pass index build.
type BuildOptions struct {
	// Language selects the label/description language. Defaults to "en".
	Language string
	// LabelCap and DescCap bound record sizes. Longer records are dropped
	// and counted in BuildStats.OverCap.
	LabelCap int
	DescCap  int
	// BatchSize is how many puts are committed per write batch.
	BatchSize int
}

func (o *BuildOptions) defaults() {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.LabelCap <= 0 {
		o.LabelCap = 128
	}
	if o.DescCap <= 0 {
		o.DescCap = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1 << 16
	}
}

// BuildStats summarizes a build pass.
type BuildStats struct {
	Indexed     int64
	NoLanguage  int64
	OverCap     int64
	ParseErrors int64
}

// Build populates the index from the dump in a single pass. Entities
// without a label or description in the configured language are dropped,
// as are records exceeding the length caps (logged, since the drop loses
// data). Writes are committed in batches to bound write amplification.
func (s *Store) Build(ctx context.Context, reader *wikidata.Reader, opts BuildOptions) (BuildStats, error) {
	opts.defaults()

	var stats BuildStats
	wb := s.db.NewWriteBatch()
	defer func() { wb.Cancel() }()
	pending := 0

	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := wb.Flush(); err != nil {
			return fmt.Errorf("labels: commit batch: %w", err)
		}
		wb = s.db.NewWriteBatch()
		pending = 0
		return nil
	}

	for line, err := range reader.Entities(ctx) {
		if err != nil {
			var pe *wikidata.ParseError
			if errors.As(err, &pe) {
				stats.ParseErrors++
				s.logger.Warn("labels: skipping malformed line", "line", pe.Number, "error", pe.Err)
				continue
			}
			return stats, err
		}

		e := line.Entity
		if e.Type != wikidata.TypeItem && e.Type != wikidata.TypeProperty {
			continue
		}
		label, ok := e.Label(opts.Language)
		if !ok {
			stats.NoLanguage++
			continue
		}
		desc, ok := e.Description(opts.Language)
		if !ok {
			stats.NoLanguage++
			continue
		}
		if len(label) > opts.LabelCap || len(desc) > opts.DescCap {
			stats.OverCap++
			s.logger.Warn("labels: record over cap dropped", "id", e.ID,
				"label_len", len(label), "desc_len", len(desc))
			continue
		}

		if err := wb.Set(append(labelPrefix, e.ID...), []byte(label)); err != nil {
			return stats, fmt.Errorf("labels: batch set: %w", err)
		}
		if err := wb.Set(append(descPrefix, e.ID...), []byte(desc)); err != nil {
			return stats, fmt.Errorf("labels: batch set: %w", err)
		}
		stats.Indexed++
		pending++
		if pending >= opts.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
			s.logger.Info("labels: batch committed", "indexed", stats.Indexed)
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}
