package contig

import "fmt"

// NamingStandard selects which of the competing contig naming conventions a
// caller wants in its output.
type NamingStandard string

const (
	SequenceName     NamingStandard = "SEQUENCE_NAME"
	AssignedMolecule NamingStandard = "ASSIGNED_MOLECULE"
	GenBank          NamingStandard = "INSDC"
	RefSeq           NamingStandard = "REFSEQ"
	UCSC             NamingStandard = "UCSC"
	NoReplacement    NamingStandard = "NO_REPLACEMENT"
)

// ParseNamingStandard converts a config string into a NamingStandard.
func ParseNamingStandard(s string) (NamingStandard, error) {
	switch NamingStandard(s) {
	case SequenceName, AssignedMolecule, GenBank, RefSeq, UCSC, NoReplacement:
		return NamingStandard(s), nil
	}
	return "", fmt.Errorf("unknown contig naming standard %q", s)
}
