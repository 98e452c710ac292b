package sources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUploadJSONMergesByGene(t *testing.T) {
	body := `[
		{"gene_identifier": "PKD1", "panels": ["NephroPanel"], "providers": ["Blueprint"]},
		{"gene_identifier": "PKD1", "panels": ["RenalPanel"], "providers": ["Invitae"]},
		{"gene_identifier": "COL4A5", "panels": ["Alport"], "providers": ["Blueprint"]}
	]`

	records, err := ParseUpload(UploadFormatJSON, strings.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, records, 2)

	byGene := map[string]int{}
	for _, r := range records {
		byGene[r.GeneIdentifier] = int(r.EvidenceData["panel_count"].(float64))
	}
	assert.Equal(t, 2, byGene["PKD1"])
	assert.Equal(t, 1, byGene["COL4A5"])
}

func TestParseUploadCSVParsesHeaderAndRows(t *testing.T) {
	body := "gene_identifier,panel_name,provider_name\nPKD1,NephroPanel,Blueprint\nPKD1,RenalPanel,Invitae\n"

	records, err := ParseUpload(UploadFormatCSV, strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PKD1", records[0].GeneIdentifier)
	assert.Equal(t, float64(2), records[0].EvidenceData["panel_count"])
	assert.Equal(t, float64(2), records[0].EvidenceData["provider_count"])
}

func TestParseUploadTSVParsesHeaderAndRows(t *testing.T) {
	body := "gene_identifier\tpanel_name\tprovider_name\nCOL4A5\tAlport\tBlueprint\n"

	records, err := ParseUpload(UploadFormatTSV, strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "COL4A5", records[0].GeneIdentifier)
}

func TestParseUploadCSVMissingGeneColumnErrors(t *testing.T) {
	body := "panel_name,provider_name\nNephroPanel,Blueprint\n"
	_, err := ParseUpload(UploadFormatCSV, strings.NewReader(body))
	assert.Error(t, err)
}

func TestParseUploadUnsupportedFormatErrors(t *testing.T) {
	_, err := ParseUpload(UploadFormat("xml"), strings.NewReader(""))
	assert.Error(t, err)
}
