package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	payload, err := exporter.Render(Dataset{
		Headers: []string{"Name", "Balance"},
		Rows: []map[string]string{
			{"Name": "Amina Yusuf", "Balance": "60.00"},
			{"Name": "Joseph Okoro", "Balance": "0.00"},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name,Balance", lines[0])
	assert.Equal(t, "Amina Yusuf,60.00", lines[1])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}

func TestPDFReceiptRender(t *testing.T) {
	exporter := NewPDFExporter()
	payload, err := exporter.RenderReceipt("Fee Payment Receipt", [][2]string{
		{"Transaction ID", "TXN-20250410120000-abcd"},
		{"Amount", "25.00"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}
