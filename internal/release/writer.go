package release

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"varreg/internal/contig"
	"varreg/internal/fasta"
	"varreg/internal/platform/metrics"
	"varreg/internal/variant/models"
)

const (
	fileFormatLine = "##fileformat=VCFv4.3"
	columnHeader   = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
)

// Row is one body line of the report, already denormalized and renamed.
type Row struct {
	Contig    string
	Position  int64
	Accession uint64
	Reference string
	Alternate string
}

// SortRows orders rows the way the published report requires: resolved contig
// name, then position, then reference, then alternate. The sort is stable so
// equal rows keep their input order.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Contig != b.Contig {
			return a.Contig < b.Contig
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Reference != b.Reference {
			return a.Reference < b.Reference
		}
		return a.Alternate < b.Alternate
	})
}

// ReportWriter assembles the report in two phases. Body rows are appended to
// a scratch file next to the output; Close writes the header (once, guarded
// by the persisted job state) and then splices the scratch file in. Given the
// same registry state and inputs the output is byte-identical across runs.
type ReportWriter struct {
	path    string
	naming  contig.NamingStandard
	mapping *contig.Mapping
	fa      fasta.Reader
	states  JobStateStore
	jobKey  string
	metrics *metrics.Metrics
	log     *slog.Logger

	contigs map[string]string // resolved name -> original name
	scratch *os.File
}

func NewReportWriter(path string, mapping *contig.Mapping, naming contig.NamingStandard, fa fasta.Reader, states JobStateStore, jobID string, m *metrics.Metrics, log *slog.Logger) *ReportWriter {
	return &ReportWriter{
		path:    path,
		naming:  naming,
		mapping: mapping,
		fa:      fa,
		states:  states,
		jobKey:  jobID + ":report-header",
		metrics: m,
		log:     log,
		contigs: make(map[string]string),
	}
}

// process turns one submitted variant into a report row: named alleles become
// symbolic, empty alleles are denormalized against the assembly sequence, and
// the contig is translated to the writer's naming standard (falling back to
// the original name when no safe synonym exists).
func (w *ReportWriter) process(v models.SubmittedVariant) (Row, error) {
	v, err := NormalizeNamed(v)
	if err != nil {
		return Row{}, err
	}
	if !isSymbolic(v.Alternate) {
		if v, err = Denormalize(v, w.fa); err != nil {
			return Row{}, err
		}
	}
	resolved := w.mapping.EquivalentContig(v.Contig, w.naming)
	return Row{
		Contig:    resolved,
		Position:  v.Start,
		Accession: v.Accession,
		Reference: v.Reference,
		Alternate: v.Alternate,
	}, nil
}

// Write processes a batch of submitted variants and appends the resulting
// rows, sorted, to the scratch file. Callers that need whole-file ordering
// must deliver records in report order across batches.
func (w *ReportWriter) Write(ctx context.Context, batch []models.SubmittedVariant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]Row, 0, len(batch))
	for _, v := range batch {
		row, err := w.process(v)
		if err != nil {
			return fmt.Errorf("process ss%d: %w", v.Accession, err)
		}
		if _, seen := w.contigs[row.Contig]; !seen {
			w.contigs[row.Contig] = v.Contig
		}
		rows = append(rows, row)
	}
	SortRows(rows)

	if w.scratch == nil {
		state, err := w.states.Get(ctx, w.jobKey)
		if err != nil {
			return err
		}
		// Before the header exists, a resumed run reprocesses its chunks from
		// the start, so rows left in the scratch by an interrupted run must
		// not survive or the reprocessed chunk would appear twice.
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if state == StateNotStarted {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		f, err := os.OpenFile(w.path+".tmp", flags, 0o644)
		if err != nil {
			return fmt.Errorf("open scratch file: %w", err)
		}
		w.scratch = f
	}

	buf := bufio.NewWriter(w.scratch)
	for _, row := range rows {
		if _, err := fmt.Fprintf(buf, "%s\t%d\tss%d\t%s\t%s\t.\t.\t.\n",
			row.Contig, row.Position, row.Accession, row.Reference, row.Alternate); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
		w.metrics.ReportRowsWritten.Inc()
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush report rows: %w", err)
	}
	return nil
}

// Close finishes the report: the header goes to the output file exactly once
// (guarded by the persisted state), then the scratch rows are appended and
// the scratch file removed.
func (w *ReportWriter) Close(ctx context.Context) error {
	if w.scratch != nil {
		if err := w.scratch.Close(); err != nil {
			return fmt.Errorf("close scratch file: %w", err)
		}
		w.scratch = nil
	}

	state, err := w.states.Get(ctx, w.jobKey)
	if err != nil {
		return err
	}
	if state == StateComplete {
		return nil
	}

	if state == StateNotStarted {
		if err := w.writeHeader(); err != nil {
			return err
		}
		if err := w.states.Set(ctx, w.jobKey, StateHeaderWritten); err != nil {
			return err
		}
	}

	if err := w.appendScratch(); err != nil {
		return err
	}
	if err := os.Remove(w.path + ".tmp"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove scratch file: %w", err)
	}
	if err := w.states.Set(ctx, w.jobKey, StateComplete); err != nil {
		return err
	}
	w.log.Info("report written", "path", w.path, "contigs", len(w.contigs))
	return nil
}

func (w *ReportWriter) writeHeader() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	fmt.Fprintln(buf, fileFormatLine)
	for _, name := range sortedContigs(w.contigs) {
		original := w.contigs[name]
		if original != "" && original != name {
			fmt.Fprintf(buf, "##contig=<ID=%s,Description=\"%s\">\n", name, original)
		} else {
			fmt.Fprintf(buf, "##contig=<ID=%s>\n", name)
		}
	}
	fmt.Fprintln(buf, columnHeader)
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}
	return nil
}

func sortedContigs(contigs map[string]string) []string {
	names := make([]string, 0, len(contigs))
	for name := range contigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w *ReportWriter) appendScratch() error {
	scratch, err := os.Open(w.path + ".tmp")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open scratch file: %w", err)
	}
	defer scratch.Close()

	out, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report for append: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, scratch); err != nil {
		return fmt.Errorf("append report body: %w", err)
	}
	return nil
}
