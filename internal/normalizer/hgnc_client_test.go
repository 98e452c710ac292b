package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHGNCArchive(t *testing.T) {
	data := "hgnc_id\tsymbol\tstatus\talias_symbol\tprev_symbol\n" +
		"HGNC:1100\tBRCA1\tApproved\tBRCC1|IRIS\tBRCAI\n" +
		"HGNC:9008\tPKD1\tApproved\t\t\n"

	records, err := parseHGNCArchive(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "HGNC:1100", records[0].HGNCID)
	assert.Equal(t, "BRCA1", records[0].ApprovedSymbol)
	assert.Equal(t, []string{"BRCC1", "IRIS"}, records[0].AliasSymbols)
	assert.Equal(t, []string{"BRCAI"}, records[0].PreviousSymbols)

	assert.Equal(t, "PKD1", records[1].ApprovedSymbol)
	assert.Nil(t, records[1].AliasSymbols)
}

func TestParseHGNCArchiveSkipsBlankLines(t *testing.T) {
	data := "hgnc_id\tsymbol\tstatus\talias_symbol\tprev_symbol\n" +
		"HGNC:1100\tBRCA1\tApproved\t\t\n" +
		"\n" +
		"HGNC:9008\tPKD1\tApproved\t\t\n"

	records, err := parseHGNCArchive(strings.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDedupeStringsKeepOrder(t *testing.T) {
	deduped := dedupeStringsKeepOrder([]string{"A", "B", "A", "C"})
	assert.Equal(t, []string{"A", "B", "C"}, deduped)
}

func TestSameStringSet(t *testing.T) {
	assert.True(t, sameStringSet([]string{"A", "B"}, []string{"B", "A"}))
	assert.False(t, sameStringSet([]string{"A"}, []string{"A", "B"}))
}
