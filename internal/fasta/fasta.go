// Package fasta provides random-access retrieval of single bases from an
// assembly's sequence, either from an in-memory parse or through a samtools
// faidx-style index (http://www.htslib.org/doc/faidx.html).
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Reader retrieves bases from named sequences. Positions are 1-based.
type Reader interface {
	// BaseAt returns the nucleotide at the given 1-based position.
	BaseAt(contig string, position int64) (byte, error)
	// HasContig reports whether the contig exists in the source.
	HasContig(contig string) bool
}

// ContigNotFoundError is fatal for the record being processed: a missing
// contig means the output cannot be produced correctly.
type ContigNotFoundError struct {
	Contig string
}

func (e *ContigNotFoundError) Error() string {
	return fmt.Sprintf("contig %q does not appear in the FASTA source", e.Contig)
}

// memReader holds whole sequences in memory. Fine for tests and small
// assemblies; production jobs use the indexed reader.
type memReader struct {
	seqs map[string]string
}

// New parses FASTA data into memory. Sequence names end at the first space.
func New(r io.Reader) (Reader, error) {
	m := &memReader{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var name string
	var seq strings.Builder
	flush := func() error {
		if seq.Len() == 0 {
			return nil
		}
		if name == "" {
			return fmt.Errorf("malformed FASTA: sequence data before first header")
		}
		m.seqs[name] = seq.String()
		seq.Reset()
		return nil
	}
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.SplitN(line[1:], " ", 2)[0]
			continue
		}
		seq.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read FASTA: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *memReader) HasContig(contig string) bool {
	_, ok := m.seqs[contig]
	return ok
}

func (m *memReader) BaseAt(contig string, position int64) (byte, error) {
	seq, ok := m.seqs[contig]
	if !ok {
		return 0, &ContigNotFoundError{Contig: contig}
	}
	if position < 1 || position > int64(len(seq)) {
		return 0, fmt.Errorf("position %d out of range for contig %q (length %d)", position, contig, len(seq))
	}
	return seq[position-1], nil
}

type indexEntry struct {
	length    int64
	offset    int64
	lineBases int64
	lineWidth int64
}

// IndexedReader random-accesses a FASTA file through its .fai index without
// loading sequences into memory. ReadAt keeps it safe for concurrent use.
type IndexedReader struct {
	file *os.File
	seqs map[string]indexEntry
}

// OpenIndexed opens a FASTA file alongside its faidx index. Index lines are
// "<name>\t<length>\t<offset>\t<bases per line>\t<bytes per line>".
func OpenIndexed(fastaPath, indexPath string) (*IndexedReader, error) {
	idx, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open FASTA index: %w", err)
	}
	defer idx.Close()

	seqs := make(map[string]indexEntry)
	scanner := bufio.NewScanner(idx)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 5 {
			return nil, fmt.Errorf("invalid FASTA index line: %q", line)
		}
		ent := indexEntry{}
		if ent.length, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid FASTA index line: %q", line)
		}
		if ent.offset, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid FASTA index line: %q", line)
		}
		if ent.lineBases, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid FASTA index line: %q", line)
		}
		if ent.lineWidth, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid FASTA index line: %q", line)
		}
		seqs[fields[0]] = ent
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read FASTA index: %w", err)
	}

	f, err := os.Open(fastaPath)
	if err != nil {
		return nil, fmt.Errorf("open FASTA: %w", err)
	}
	return &IndexedReader{file: f, seqs: seqs}, nil
}

func (r *IndexedReader) HasContig(contig string) bool {
	_, ok := r.seqs[contig]
	return ok
}

func (r *IndexedReader) BaseAt(contig string, position int64) (byte, error) {
	ent, ok := r.seqs[contig]
	if !ok {
		return 0, &ContigNotFoundError{Contig: contig}
	}
	if position < 1 || position > ent.length {
		return 0, fmt.Errorf("position %d out of range for contig %q (length %d)", position, contig, ent.length)
	}
	zero := position - 1
	byteOffset := ent.offset + (zero/ent.lineBases)*ent.lineWidth + zero%ent.lineBases
	var buf [1]byte
	if _, err := r.file.ReadAt(buf[:], byteOffset); err != nil {
		return 0, fmt.Errorf("read base at %s:%d: %w", contig, position, err)
	}
	return buf[0], nil
}

func (r *IndexedReader) Close() error {
	return r.file.Close()
}
