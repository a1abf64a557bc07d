package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// StatsRecord is one round's statistics, persisted as
// stats/<timestamp>.json (spec §6) for later inspection via
// "fuzzer show-stats".
type StatsRecord struct {
	Timestamp     int64 `json:"timestamp"`
	CasesRun      int   `json:"cases_run"`
	NewCorpusHits int   `json:"new_corpus_hits"`
	Divergences   int   `json:"divergences"`
	DurationMS    int64 `json:"duration_ms"`
}

// RecordOf converts a RoundStats into the persisted form, stamped with
// ts (the caller supplies the timestamp since this package never calls
// time.Now itself, keeping it a pure transform of RunRound's output).
func RecordOf(ts time.Time, s RoundStats) StatsRecord {
	return StatsRecord{
		Timestamp:     ts.Unix(),
		CasesRun:      s.CasesRun,
		NewCorpusHits: s.NewCorpusHits,
		Divergences:   s.Divergences,
		DurationMS:    s.Duration.Milliseconds(),
	}
}

// WriteStats persists rec under dir/stats/<timestamp>.json.
func WriteStats(dir string, rec StatsRecord) error {
	statsDir := filepath.Join(dir, "stats")
	if err := os.MkdirAll(statsDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating stats dir %s", statsDir)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding stats record")
	}
	path := filepath.Join(statsDir, formatStatsFilename(rec.Timestamp))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "writing stats file %s", path)
	}
	return nil
}

// ReadStats loads every stats/<timestamp>.json record under dir, sorted
// by timestamp ascending, for "fuzzer show-stats".
func ReadStats(dir string) ([]StatsRecord, error) {
	statsDir := filepath.Join(dir, "stats")
	entries, err := os.ReadDir(statsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading stats dir %s", statsDir)
	}
	out := make([]StatsRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(statsDir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading stats file %s", e.Name())
		}
		var rec StatsRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, errors.Wrapf(err, "parsing stats file %s", e.Name())
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func formatStatsFilename(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("20060102T150405Z") + ".json"
}
