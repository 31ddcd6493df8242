package contig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assemblyReport = `# Assembly name:  Test_1.0
# Sequence-Name	Sequence-Role	Assigned-Molecule	Assigned-Molecule-Location/Type	GenBank-Accn	Relationship	RefSeq-Accn	Assembly-Unit	Sequence-Length	UCSC-style-name
1	assembled-molecule	1	Chromosome	CM000093.4	=	NC_006088.4	Primary Assembly	196202544	chr1
2	assembled-molecule	2	Chromosome	CM000094.4	=	NC_006089.4	Primary Assembly	149560735	chr2
3	assembled-molecule	3	Chromosome	CM000095.4	<>	NC_006090.4	Primary Assembly	110046744	chr3
4	assembled-molecule	4	Chromosome	na	<>	NC_006091.4	Primary Assembly	90731748	chr4
scaffold_1	unlocalized-scaffold	1	Chromosome	AADN04000814.1	=	NW_003763476.1	Primary Assembly	89619	na
`

func newTestMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := NewMapping(strings.NewReader(assemblyReport), nil)
	require.NoError(t, err)
	return m
}

func TestResolveByAnyName(t *testing.T) {
	m := newTestMapping(t)

	for _, name := range []string{"1", "CM000093.4", "NC_006088.4", "chr1"} {
		set, ok := m.Resolve(name)
		require.True(t, ok, "expected %s to resolve", name)
		assert.Equal(t, "CM000093.4", set.GenBank)
	}

	_, ok := m.Resolve("chrUn")
	assert.False(t, ok)
}

func TestAssignedMoleculeIndexedOnlyForAssembledMolecules(t *testing.T) {
	m := newTestMapping(t)

	// "1" is shared by chromosome 1 and an unlocalized scaffold; the
	// chromosome row wins because scaffolds never index their molecule.
	set, ok := m.Resolve("1")
	require.True(t, ok)
	assert.Equal(t, "CM000093.4", set.GenBank)

	set, ok = m.Resolve("scaffold_1")
	require.True(t, ok)
	assert.Equal(t, "AADN04000814.1", set.GenBank)
}

func TestSynonymForRoundTrip(t *testing.T) {
	m := newTestMapping(t)

	refseq, ok := m.SynonymFor("CM000093.4", RefSeq)
	require.True(t, ok)
	assert.Equal(t, "NC_006088.4", refseq)

	genbank, ok := m.SynonymFor(refseq, GenBank)
	require.True(t, ok)
	assert.Equal(t, "CM000093.4", genbank)
}

func TestSynonymForRefusesNonIdenticalGenBankRefSeqSwap(t *testing.T) {
	m := newTestMapping(t)

	t.Run("genbank to refseq", func(t *testing.T) {
		_, ok := m.SynonymFor("CM000095.4", RefSeq)
		assert.False(t, ok)
	})

	t.Run("refseq to genbank", func(t *testing.T) {
		_, ok := m.SynonymFor("NC_006090.4", GenBank)
		assert.False(t, ok)
	})

	t.Run("ucsc to refseq does not cross the identity boundary", func(t *testing.T) {
		name, ok := m.SynonymFor("chr3", RefSeq)
		require.True(t, ok)
		assert.Equal(t, "NC_006090.4", name)
	})
}

func TestSynonymForMissingAlias(t *testing.T) {
	m := newTestMapping(t)

	// Chromosome 4 has no GenBank accession in the report.
	_, ok := m.SynonymFor("chr4", GenBank)
	assert.False(t, ok)
}

func TestSynonymForNoReplacement(t *testing.T) {
	m := newTestMapping(t)

	name, ok := m.SynonymFor("anything", NoReplacement)
	require.True(t, ok)
	assert.Equal(t, "anything", name)
}

func TestEquivalentContigFallsBackAndWarnsOnce(t *testing.T) {
	m := newTestMapping(t)

	assert.Equal(t, "chrUn", m.EquivalentContig("chrUn", GenBank))
	assert.Equal(t, "chrUn", m.EquivalentContig("chrUn", GenBank))
	assert.Equal(t, "CM000095.4", m.EquivalentContig("CM000095.4", RefSeq))

	assert.Len(t, m.warned, 2)
}

func TestParseNamingStandard(t *testing.T) {
	got, err := ParseNamingStandard("REFSEQ")
	require.NoError(t, err)
	assert.Equal(t, RefSeq, got)

	_, err = ParseNamingStandard("ENSEMBL")
	assert.Error(t, err)
}
