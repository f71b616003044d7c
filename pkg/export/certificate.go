package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateField is one labelled line printed on a certificate.
type CertificateField struct {
	Label string
	Value string
}

// Certificate holds everything printed on an issued vital-event certificate.
type Certificate struct {
	Title          string
	Number         string
	Authority      string
	IssuedAt       time.Time
	EthiopianDate  string
	Fields         []CertificateField
	ApprovedByName string
}

// CertificateRenderer renders certificates as single page A4 PDFs.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render lays out the certificate header, the field table and the approval footer.
func (r *CertificateRenderer) Render(cert Certificate) ([]byte, error) {
	if cert.Number == "" {
		return nil, fmt.Errorf("certificate number required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	authority := cert.Authority
	if authority == "" {
		authority = "Vital Events Registration Agency"
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, authority, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 12, strings.ToUpper(cert.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, "Certificate No. "+cert.Number, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 10)
	for _, field := range cert.Fields {
		value := field.Value
		if value == "" {
			value = "-"
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(65, 8, tr(field.Label), "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, tr(value), "1", 1, "", false, 0, "")
	}

	pdf.Ln(10)
	issued := cert.IssuedAt
	if issued.IsZero() {
		issued = time.Now().UTC()
	}
	pdf.SetFont("Arial", "I", 9)
	issuedLine := "Issued on " + issued.Format("2006-01-02")
	if cert.EthiopianDate != "" {
		issuedLine += " (" + cert.EthiopianDate + ")"
	}
	pdf.CellFormat(0, 6, tr(issuedLine), "", 1, "", false, 0, "")
	if cert.ApprovedByName != "" {
		pdf.CellFormat(0, 6, tr("Approved by "+cert.ApprovedByName), "", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
