package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"certificate_number", "status"},
		Rows: []map[string]string{
			{"certificate_number": "BR/OROMIA/03/2015/00001", "status": "draft"},
			{"status": "approved"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "certificate_number,status\nBR/OROMIA/03/2015/00001,draft\n,approved\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestCertificateRendererProducesPDF(t *testing.T) {
	out, err := NewCertificateRenderer().Render(Certificate{
		Title:    "Birth Certificate",
		Number:   "BR/OROMIA/03/2015/00001",
		IssuedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Fields:   []CertificateField{{Label: "Child", Value: "Abel Tesfaye"}, {Label: "Gender"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCertificateRendererRequiresNumber(t *testing.T) {
	_, err := NewCertificateRenderer().Render(Certificate{Title: "Birth Certificate"})
	require.Error(t, err)
}
