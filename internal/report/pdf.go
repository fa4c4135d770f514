package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"fleet-status-backend/internal/aggregate"
)

// WritePDF writes a one-page summary: KPI tiles, per-status breakdown and the per-period table.
func WritePDF(w io.Writer, meta Meta, summary aggregate.Summary, periods aggregate.PeriodReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("") // cp1252 for the core fonts

	generatedAt := meta.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	// Title band
	pdf.SetFont("Arial", "B", 20)
	pdf.SetFillColor(240, 240, 240)
	pdf.Rect(10, 10, 190, 15, "F")
	pdf.SetXY(10, 12)
	pdf.Cell(190, 10, tr("Relatório operacional"))
	pdf.Ln(18)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 7, tr("Ativo:"))
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(150, 7, tr(meta.Machine))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(40, 7, tr("Gerado em:"))
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(150, 7, generatedAt.In(meta.location()).Format("2006-01-02 15:04"))
	pdf.Ln(12)

	section(pdf, tr("Indicadores"))
	kpis := []struct {
		label string
		value string
	}{
		{"Horas totais", fmt.Sprintf("%.2f h", summary.TotalHours)},
		{"Horas operacionais", fmt.Sprintf("%.2f h", summary.OperationalHours)},
		{"Horas de downtime", fmt.Sprintf("%.2f h", summary.DowntimeHours)},
		{"Taxa de operabilidade", fmt.Sprintf("%.2f %%", summary.OperabilityRate)},
		{"Média diária operacional", fmt.Sprintf("%.2f h", summary.AvgDailyOperational)},
		{"Eventos de downtime", fmt.Sprintf("%d", summary.EventCount)},
		{"Perda total", fmt.Sprintf("R$ %.2f", summary.TotalLoss)},
		{"Receita total", fmt.Sprintf("R$ %.2f", summary.TotalRevenue)},
	}
	pdf.SetFont("Arial", "", 10)
	for _, k := range kpis {
		pdf.Cell(70, 6, tr(k.label))
		pdf.Cell(60, 6, tr(k.value))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	section(pdf, tr("Distribuição por status"))
	tableHeader(pdf, tr, []string{"Status", "Horas", "%"}, []float64{90, 50, 50})
	pdf.SetFont("Arial", "", 9)
	for _, s := range summary.Breakdown {
		pdf.Cell(90, 6, tr(s.Status.Label()))
		pdf.Cell(50, 6, fmt.Sprintf("%.2f", s.Hours))
		pdf.Cell(50, 6, fmt.Sprintf("%.2f", s.Percentage))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	title := "Por competência"
	if periods.Key == aggregate.ByMonth {
		title = "Por mês"
	}
	section(pdf, tr(title))
	widths := []float64{30, 35, 35, 30, 30, 30}
	tableHeader(pdf, tr, []string{"Período", "Operação (h)", "Inoperância (h)", "Operação %", "Inoper. %", "Dias"}, widths)
	pdf.SetFont("Arial", "", 9)
	for _, p := range periods.Periods {
		pdf.Cell(widths[0], 6, p.Period)
		pdf.Cell(widths[1], 6, fmt.Sprintf("%.2f", p.Operational))
		pdf.Cell(widths[2], 6, fmt.Sprintf("%.2f", p.Inoperability))
		pdf.Cell(widths[3], 6, fmt.Sprintf("%.2f", p.OperationalPercent))
		pdf.Cell(widths[4], 6, fmt.Sprintf("%.2f", p.InoperabilityPercent))
		pdf.Cell(widths[5], 6, fmt.Sprintf("%d", p.Days))
		pdf.Ln(6)
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.Cell(widths[0]+widths[1]+widths[2], 6, tr("Média de operação"))
	pdf.Cell(widths[3], 6, fmt.Sprintf("%.2f", periods.Average))
	pdf.Ln(6)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(10, pdf.GetY(), 190, 10, "F")
	pdf.SetXY(10, pdf.GetY()+2)
	pdf.Cell(190, 8, title)
	pdf.Ln(12)
}

func tableHeader(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64) {
	pdf.SetFillColor(230, 230, 230)
	pdf.SetFont("Arial", "B", 9)
	pdf.Rect(10, pdf.GetY(), 190, 8, "F")
	pdf.SetXY(10, pdf.GetY())
	for i, c := range cols {
		pdf.Cell(widths[i], 8, tr(c))
	}
	pdf.Ln(8)
}
