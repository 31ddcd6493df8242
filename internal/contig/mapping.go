// Package contig reconciles chromosome/contig names across the naming
// standards used by assembly providers. A Mapping is built once per assembly
// from its report file and is immutable afterwards.
package contig

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	notAvailable          = "na"
	assembledMoleculeRole = "assembled-molecule"
	identicalRelationship = "="
)

// SynonymSet is one row of the assembly report: up to five aliases for the
// same contig plus the flag telling whether the GenBank and RefSeq sequences
// are byte-identical.
type SynonymSet struct {
	SequenceName              string
	AssignedMolecule          string
	GenBank                   string
	RefSeq                    string
	UCSC                      string
	IdenticalGenBankAndRefSeq bool
}

// Name returns the alias for the given naming standard, or "" when the report
// does not provide one.
func (s *SynonymSet) Name(target NamingStandard) string {
	switch target {
	case SequenceName:
		return s.SequenceName
	case AssignedMolecule:
		return s.AssignedMolecule
	case GenBank:
		return s.GenBank
	case RefSeq:
		return s.RefSeq
	case UCSC:
		return s.UCSC
	}
	return ""
}

// Mapping is the synonym lookup for one assembly. It is not safe for
// concurrent mutation but every method except the warn-once bookkeeping is
// read-only; jobs use one Mapping per goroutine.
type Mapping struct {
	byName map[string]*SynonymSet
	log    *slog.Logger
	warned map[string]struct{}
}

// NewMapping parses a tab-delimited assembly report. Lines starting with '#'
// are skipped. Each data row contributes its sequence name, GenBank accession,
// RefSeq accession and UCSC name; the assigned molecule (chromosome number) is
// only indexed for assembled molecules, since unlocalized scaffolds repeat it.
func NewMapping(r io.Reader, log *slog.Logger) (*Mapping, error) {
	m := &Mapping{
		byName: make(map[string]*SynonymSet),
		log:    log,
		warned: make(map[string]struct{}),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("assembly report line %d: expected at least 7 columns, got %d", lineNo, len(fields))
		}
		set := &SynonymSet{
			SequenceName:              valueOrEmpty(fields[0]),
			AssignedMolecule:          valueOrEmpty(fields[2]),
			GenBank:                   valueOrEmpty(fields[4]),
			RefSeq:                    valueOrEmpty(fields[6]),
			IdenticalGenBankAndRefSeq: fields[5] == identicalRelationship,
		}
		if len(fields) >= 10 {
			set.UCSC = valueOrEmpty(fields[9])
		}

		m.index(set.SequenceName, set)
		m.index(set.GenBank, set)
		m.index(set.RefSeq, set)
		m.index(set.UCSC, set)
		if fields[1] == assembledMoleculeRole {
			m.index(set.AssignedMolecule, set)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read assembly report: %w", err)
	}
	return m, nil
}

func (m *Mapping) index(name string, set *SynonymSet) {
	if name == "" {
		return
	}
	m.byName[name] = set
}

func valueOrEmpty(field string) string {
	if field == notAvailable {
		return ""
	}
	return field
}

// Resolve looks up the synonym set by any of its constituent names.
func (m *Mapping) Resolve(name string) (*SynonymSet, bool) {
	set, ok := m.byName[name]
	return set, ok
}

// SynonymFor translates name into the target naming standard. It refuses to
// substitute between GenBank and RefSeq when the report marks those sequences
// as non-identical, because that would silently change coordinate systems.
// The second return is false when no safe synonym exists; the caller decides
// whether that is a fallback (report writing) or a hard error (import).
func (m *Mapping) SynonymFor(name string, target NamingStandard) (string, bool) {
	if target == NoReplacement {
		return name, true
	}
	set, ok := m.byName[name]
	if !ok {
		return "", false
	}
	replacement := set.Name(target)
	if replacement == "" {
		return "", false
	}
	if !set.IdenticalGenBankAndRefSeq && crossesSequenceIdentity(name, replacement, set) {
		return "", false
	}
	return replacement, true
}

// crossesSequenceIdentity reports whether the substitution swaps the GenBank
// accession for the RefSeq one or vice versa.
func crossesSequenceIdentity(name, replacement string, set *SynonymSet) bool {
	genbankToRefseq := name == set.GenBank && replacement == set.RefSeq
	refseqToGenbank := name == set.RefSeq && replacement == set.GenBank
	return genbankToRefseq || refseqToGenbank
}

// EquivalentContig is the report-writer entry point: it falls back to the
// original name when no safe synonym exists, logging each distinct contig at
// most once per run so diagnostics stay readable at scale.
func (m *Mapping) EquivalentContig(name string, target NamingStandard) string {
	replacement, ok := m.SynonymFor(name, target)
	if ok {
		return replacement
	}
	if _, logged := m.warned[name]; !logged {
		m.warned[name] = struct{}{}
		if m.log != nil {
			m.log.Warn("keeping original contig name, no safe synonym for requested naming",
				"contig", name, "naming", string(target))
		}
	}
	return name
}
