// Package models holds the registry's record types. Clustered and submitted
// variants are kept as two independent keyed tables with an explicit
// back-reference; cross-record mutation happens only in the clustering
// resolvers so the object graph never needs traversal.
package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// VariantType classifies a variant by its alleles.
type VariantType string

const (
	TypeSNV                VariantType = "SNV"
	TypeMNV                VariantType = "MNV"
	TypeInsertion          VariantType = "INS"
	TypeDeletion           VariantType = "DEL"
	TypeIndel              VariantType = "INDEL"
	TypeSequenceAlteration VariantType = "SEQUENCE_ALTERATION"
)

// Status tracks the lifecycle of a clustered variant. Records are never
// physically deleted; merge and deprecation only flip the status and append
// an operation record.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusMerged     Status = "MERGED"
	StatusDeprecated Status = "DEPRECATED"
)

// CanonicalKey is the locus identity: two clustered variants denote the same
// locus iff their canonical keys are equal.
type CanonicalKey struct {
	Assembly string
	Contig   string
	Start    int64
	Type     VariantType
}

// Hash returns the hashed form of the key used as the registry's unique
// index for active clustered variants.
func (k CanonicalKey) Hash() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s_%s_%d_%s", k.Assembly, k.Contig, k.Start, k.Type)))
	return hex.EncodeToString(sum[:])
}

// ClusteredVariant is the canonical identifier (RS) for a locus + type.
type ClusteredVariant struct {
	Accession  uint64
	Assembly   string
	Contig     string
	Start      int64
	Type       VariantType
	Validated  bool
	Status     Status
	MergedInto *uint64
	CreatedAt  time.Time
}

// Key returns the canonical key the accession was assigned for.
func (c ClusteredVariant) Key() CanonicalKey {
	return CanonicalKey{Assembly: c.Assembly, Contig: c.Contig, Start: c.Start, Type: c.Type}
}

// AccessionID implements Accessioned.
func (c ClusteredVariant) AccessionID() uint64 { return c.Accession }

// SubmittedVariant is a single submission's observation (SS). It is owned by
// the clustered variant it references; merges rewrite ClusteredAccession,
// never the submitted variant's own identity.
type SubmittedVariant struct {
	Accession           uint64
	ProjectAccession    string
	Assembly            string
	Contig              string
	Start               int64
	Reference           string
	Alternate           string
	ClusteredAccession  *uint64
	SupportedByEvidence bool
	AssemblyMatch       bool
	AllelesMatch        bool
	Validated           bool
	CreatedAt           time.Time
}

// AccessionID implements Accessioned.
func (s SubmittedVariant) AccessionID() uint64 { return s.Accession }

// Key derives the canonical locus key for this observation.
func (s SubmittedVariant) Key() CanonicalKey {
	return CanonicalKey{
		Assembly: s.Assembly,
		Contig:   s.Contig,
		Start:    s.Start,
		Type:     Classify(s.Reference, s.Alternate),
	}
}

// Hash identifies the submitted variant record itself (not its locus).
func (s SubmittedVariant) Hash() string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s_%s_%s_%d_%s_%s",
		s.Assembly, s.ProjectAccession, s.Contig, s.Start, s.Reference, s.Alternate)))
	return hex.EncodeToString(sum[:])
}

// Accessioned is the capability shared by both record kinds; generic helpers
// (dedup, sorting) key on it instead of a type switch.
type Accessioned interface {
	AccessionID() uint64
}

// Located is implemented by records that map to a canonical locus.
type Located interface {
	Key() CanonicalKey
}

// Classify derives the variant type from the alleles. Named alleles (wrapped
// in parentheses, e.g. "(ALU_INS)") come from legacy submissions and have no
// base-level representation.
func Classify(reference, alternate string) VariantType {
	if isNamed(reference) || isNamed(alternate) {
		return TypeSequenceAlteration
	}
	switch {
	case len(reference) == 0 && len(alternate) == 0:
		return TypeIndel
	case len(reference) == 0:
		return TypeInsertion
	case len(alternate) == 0:
		return TypeDeletion
	case len(reference) == 1 && len(alternate) == 1:
		return TypeSNV
	case len(reference) == len(alternate):
		return TypeMNV
	default:
		return TypeIndel
	}
}

func isNamed(allele string) bool {
	return strings.HasPrefix(allele, "(") && strings.HasSuffix(allele, ")")
}
