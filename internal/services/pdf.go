package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/go-pdf/fpdf"
)

// PDFRenderer turns invoices and contracts into PDF documents. Output is a
// function of the record alone: document dates come from the record.
type PDFRenderer struct {
	brand string
}

func NewPDFRenderer(brand string) *PDFRenderer {
	if brand == "" {
		brand = "FreelanceHub"
	}
	return &PDFRenderer{brand: brand}
}

func (r *PDFRenderer) newDoc(title string, stamp time.Time) (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(title, true)
	pdf.SetCreator(r.brand, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func (r *PDFRenderer) RenderInvoice(inv *models.Invoice) ([]byte, error) {
	pdf, tr := r.newDoc("Invoice "+inv.InvoiceNumber, inv.CreatedAt)

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(r.brand), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr("Invoice "+inv.InvoiceNumber), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Issue date", inv.IssueDate.Format("2006-01-02")},
		{"Due date", inv.DueDate.Format("2006-01-02")},
		{"Bill to", inv.ClientEmail},
		{"Status", inv.Status},
	}
	for _, m := range meta {
		pdf.CellFormat(35, 6, tr(m[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(m[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// line items
	widths := []float64{90, 20, 30, 30}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range []string{"Description", "Qty", "Rate", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 8, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range inv.LineItems {
		pdf.CellFormat(widths[0], 7, tr(truncate(item.Description, 55)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, formatQuantity(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%.2f", item.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, fmt.Sprintf("%.2f", item.Amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	totals := [][2]string{
		{"Subtotal", fmt.Sprintf("%.2f", inv.Subtotal)},
		{fmt.Sprintf("Tax (%g%%)", inv.TaxRate*100), fmt.Sprintf("%.2f", inv.TaxAmount)},
		{"Total", fmt.Sprintf("%.2f", inv.TotalAmount)},
	}
	for i, t := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(widths[0]+widths[1]+widths[2], 7, t[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, t[1], "", 1, "R", false, 0, "")
	}

	if strings.TrimSpace(inv.Notes) != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	return output(pdf)
}

func (r *PDFRenderer) RenderContract(c *models.Contract, p *models.Project) ([]byte, error) {
	stamp := c.CreatedAt
	if c.ClientSignedAt != nil && c.FreelancerSignedAt != nil {
		stamp = latest(*c.ClientSignedAt, *c.FreelancerSignedAt)
	}
	pdf, tr := r.newDoc("Contract "+c.Title, stamp)

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(c.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Project: "+p.Title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(body), "", "L", false)
		pdf.Ln(3)
	}

	section("Scope", c.Scope)
	section("Deliverables", c.Deliverables)
	section("Payment terms", c.PaymentTerms)
	section("Revision policy", c.RevisionPolicy)

	var pricing []string
	if c.FixedPrice > 0 {
		pricing = append(pricing, fmt.Sprintf("Fixed price: %.2f", c.FixedPrice))
	}
	if c.HourlyRate > 0 {
		pricing = append(pricing, fmt.Sprintf("Hourly rate: %.2f", c.HourlyRate))
	}
	if c.EnableBillableHours && c.MaxBillableHours > 0 {
		pricing = append(pricing, fmt.Sprintf("Billable hours capped at %g", c.MaxBillableHours))
	}
	pricing = append(pricing, "Payment policy: "+c.PaymentPolicy)
	section("Pricing", strings.Join(pricing, "\n"))

	if len(c.Milestones) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, "Milestones", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for i, m := range c.Milestones {
			line := fmt.Sprintf("%d. %s  %.2f", i+1, m.Title, m.Amount)
			if m.DueDate != nil {
				line += "  (due " + m.DueDate.Format("2006-01-02") + ")"
			}
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
		}
		pdf.Ln(3)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Signatures", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Freelancer: "+signatureLine(c.FreelancerSignature, c.FreelancerSignedAt)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Client: "+signatureLine(c.ClientSignature, c.ClientSignedAt)), "", 1, "L", false, 0, "")

	return output(pdf)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func signatureLine(signature string, at *time.Time) string {
	if at == nil {
		return "not signed"
	}
	return fmt.Sprintf("%s (signed %s)", signature, at.UTC().Format("2006-01-02 15:04 MST"))
}

func formatQuantity(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%.2f", q)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
