package release

import (
	"fmt"
	"strings"

	"varreg/internal/variant/models"
)

// NamedAllelesError marks a record whose reference and alternate are both
// named alleles. There is no way to express such a record in the report, so
// it is a per-record data inconsistency rather than a skippable condition.
type NamedAllelesError struct {
	Accession uint64
}

func (e *NamedAllelesError) Error() string {
	return fmt.Sprintf("ss%d has named alleles on both reference and alternate", e.Accession)
}

// NormalizeNamed converts legacy named alleles like "(ALU_INS)" into the
// symbolic form "<ALU_INS>". A named reference is swapped onto the alternate
// side first, since symbolic alleles are only valid there.
func NormalizeNamed(v models.SubmittedVariant) (models.SubmittedVariant, error) {
	refNamed := isNamed(v.Reference)
	altNamed := isNamed(v.Alternate)
	if refNamed && altNamed {
		return v, &NamedAllelesError{Accession: v.Accession}
	}
	if refNamed {
		v.Reference, v.Alternate = v.Alternate, v.Reference
		altNamed = true
	}
	if altNamed {
		v.Alternate = "<" + strings.TrimSuffix(strings.TrimPrefix(v.Alternate, "("), ")") + ">"
	}
	return v, nil
}

func isNamed(allele string) bool {
	return strings.HasPrefix(allele, "(") && strings.HasSuffix(allele, ")") && len(allele) > 2
}

// isSymbolic reports whether an allele is already in angle-bracket form;
// symbolic alleles are never denormalized against the assembly sequence.
func isSymbolic(allele string) bool {
	return strings.HasPrefix(allele, "<") && strings.HasSuffix(allele, ">")
}
