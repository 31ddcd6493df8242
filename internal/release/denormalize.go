// Package release turns registry contents into the deterministic variant
// report published for an assembly. Records are denormalized into VCF-style
// alleles, contig names are reconciled to one naming standard, and the file
// is assembled in two phases so an interrupted run resumes without writing
// the header twice.
package release

import (
	"fmt"

	"varreg/internal/fasta"
	"varreg/internal/variant/models"
)

// Denormalize rewrites an empty-allele (INDEL-style) record into the
// context-base form the report uses: the reference base immediately before
// the variant is fetched from the assembly sequence, the start is moved onto
// it, and both alleles are prefixed with it. Records whose alleles are both
// non-empty pass through unchanged.
//
// A contig missing from the FASTA source is fatal for the record: the typed
// *fasta.ContigNotFoundError aborts report generation for it rather than
// emitting coordinates that cannot be verified.
func Denormalize(v models.SubmittedVariant, fa fasta.Reader) (models.SubmittedVariant, error) {
	if v.Reference != "" && v.Alternate != "" {
		return v, nil
	}
	if !fa.HasContig(v.Contig) {
		return v, &fasta.ContigNotFoundError{Contig: v.Contig}
	}

	if v.Start > 1 {
		base, err := fa.BaseAt(v.Contig, v.Start-1)
		if err != nil {
			return v, fmt.Errorf("context base for ss%d: %w", v.Accession, err)
		}
		v.Start--
		v.Reference = string(base) + v.Reference
		v.Alternate = string(base) + v.Alternate
		return v, nil
	}

	// Variant at position 1 has no preceding base; the context base is taken
	// after the event instead and the start stays put.
	after := v.Start + int64(len(v.Reference))
	base, err := fa.BaseAt(v.Contig, after)
	if err != nil {
		return v, fmt.Errorf("context base for ss%d: %w", v.Accession, err)
	}
	v.Reference += string(base)
	v.Alternate += string(base)
	return v, nil
}
