package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/networkservicemesh/dnsdiffuzz/internal/differ"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/pkg/errors"
)

// Archiver persists new-fingerprint diffs under dir, following the
// directory layout of spec §6: "diffs/<fingerprint>/{case.postcard,
// report.txt}".
type Archiver struct {
	dir string
}

// NewArchiver builds an Archiver rooted at dir, creating dir if needed.
func NewArchiver(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating archive root %s", dir)
	}
	return &Archiver{dir: dir}, nil
}

// Archive writes the case that produced a diff and a human-readable
// report of the diff items under diffs/<fingerprint>/.
func (a *Archiver) Archive(fingerprint string, c *fuzzcase.Case, items []differ.DiffItem) error {
	caseDir := filepath.Join(a.dir, "diffs", fingerprint)
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating diff dir %s", caseDir)
	}

	suite := &fuzzcase.Suite{SchemaVersion: fuzzcase.SchemaVersion, Cases: []*fuzzcase.Case{c}}
	raw, err := fuzzcase.Encode(suite)
	if err != nil {
		return errors.Wrap(err, "encoding case for archive")
	}
	if err := os.WriteFile(filepath.Join(caseDir, "case.postcard"), raw, 0o644); err != nil {
		return errors.Wrap(err, "writing case.postcard")
	}

	report := renderReport(c, items)
	if err := os.WriteFile(filepath.Join(caseDir, "report.txt"), []byte(report), 0o644); err != nil {
		return errors.Wrap(err, "writing report.txt")
	}
	return nil
}

// ArchiveCrash persists the case that crashed a resolver under
// crashes/<resolver>/<case uuid>/, filed separately from a diff (spec
// §3: "crashed runs are filed separately"; spec §7: "archived" as part
// of the ResolverCrash handling).
func (a *Archiver) ArchiveCrash(resolverID string, c *fuzzcase.Case, res *harness.Result) error {
	caseDir := filepath.Join(a.dir, "crashes", resolverID, c.UUID.String())
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating crash dir %s", caseDir)
	}

	suite := &fuzzcase.Suite{SchemaVersion: fuzzcase.SchemaVersion, Cases: []*fuzzcase.Case{c}}
	raw, err := fuzzcase.Encode(suite)
	if err != nil {
		return errors.Wrap(err, "encoding case for crash archive")
	}
	if err := os.WriteFile(filepath.Join(caseDir, "case.postcard"), raw, 0o644); err != nil {
		return errors.Wrap(err, "writing case.postcard")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "case: %s\n", c.UUID)
	fmt.Fprintf(&b, "parent: %s\n", c.ParentUUID)
	fmt.Fprintf(&b, "resolver: %s\n", resolverID)
	if res != nil {
		fmt.Fprintf(&b, "failure_kind: %s\n", res.FailureKind)
		fmt.Fprintf(&b, "final_state: %s\n", res.FinalState)
	}
	if err := os.WriteFile(filepath.Join(caseDir, "report.txt"), []byte(b.String()), 0o644); err != nil {
		return errors.Wrap(err, "writing report.txt")
	}
	return nil
}

func renderReport(c *fuzzcase.Case, items []differ.DiffItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "case: %s\n", c.UUID)
	fmt.Fprintf(&b, "parent: %s\n\n", c.ParentUUID)
	for _, it := range items {
		fmt.Fprintf(&b, "[%s] %s\n  a: %s\n  b: %s\n", it.Category, it.Path, it.ValueA, it.ValueB)
	}
	return b.String()
}
