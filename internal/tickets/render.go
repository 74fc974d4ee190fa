package tickets

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/utils"

	"github.com/phpdave11/gofpdf"
)

type Renderer struct {
	Venue    string
	Timezone string
	Currency string
}

// Render prints the kitchen ticket of an order: one row per line with its
// quantity, notes and kitchen status, followed by the order total.
func (r Renderer) Render(order floor.Order) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	venue := strings.TrimSpace(r.Venue)
	if venue != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 7, tr(venue), "", 1, "C", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 7, fmt.Sprintf("Kitchen ticket #%d", order.ID), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 5, tr(order.TableIdentity), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Placed: %s", utils.FormatInTimezone(order.CreatedAt, r.Timezone)), "", 1, "C", false, 0, "")
	if order.SettledAt != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Settled: %s", utils.FormatInTimezone(*order.SettledAt, r.Timezone)), "", 1, "C", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Items", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, line := range order.Lines {
		pdf.CellFormat(95, 5, tr(fmt.Sprintf("%dx %s", line.Quantity, line.Name)), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, strings.ToUpper(string(line.Status)), "", 1, "R", false, 0, "")
		if line.Notes != nil && strings.TrimSpace(*line.Notes) != "" {
			pdf.MultiCell(0, 4, tr("Notes: "+*line.Notes), "", "L", false)
		}
		if line.AcceptedAt != nil {
			timing := "Started " + utils.ClockInTimezone(*line.AcceptedAt, r.Timezone)
			if line.CompletedAt != nil {
				timing += "  Done " + utils.ClockInTimezone(*line.CompletedAt, r.Timezone)
			}
			pdf.CellFormat(0, 4, timing, "", 1, "L", false, 0, "")
		}
		pdf.CellFormat(0, 4, utils.FormatCurrency(line.UnitPrice*float64(line.Quantity), r.Currency), "", 1, "R", false, 0, "")
		pdf.Ln(1)
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, "Total: "+utils.FormatCurrency(order.Total(), r.Currency), "T", 1, "R", false, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func Filename(order floor.Order) string {
	identity := strings.Trim(unsafeFilename.ReplaceAllString(order.TableIdentity, "_"), "_")
	if identity == "" {
		return fmt.Sprintf("ticket_%d.pdf", order.ID)
	}
	return fmt.Sprintf("ticket_%d_%s.pdf", order.ID, identity)
}
