package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/types"
)

// Report formats
const (
	formatText = "text"
	formatJSON = "json"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	failedStyle  = cellStyle.Foreground(lipgloss.Color("#EF4444"))
	skippedStyle = cellStyle.Foreground(lipgloss.Color("#6C7280"))
	totalStyle   = cellStyle.Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB500"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7280"))
)

func renderReport(w io.Writer, r *model.TcoReport, format string, showTx bool) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := io.WriteString(w, renderText(r, showTx))
	return err
}

func renderText(r *model.TcoReport, showTx bool) string {
	var b strings.Builder

	title := fmt.Sprintf("%s on %s", types.Action(r.Action).Title(), r.Chain)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("1 %s = $%s  gas price %s gwei  price at %s",
		r.NativeSymbol, r.NativeUSDPrice, gwei(r.GasPrice), r.PriceFetchedAt.UTC().Format(time.RFC3339))))
	b.WriteString("\n")

	headers := []string{"Step", "Status", "Gas", "Gas Price (gwei)", "Cost (" + r.NativeSymbol + ")", "Cost (USD)"}
	if showTx {
		headers = append(headers, "Tx")
	}

	rows := make([][]string, 0, len(r.Steps)+1)
	for _, s := range r.Steps {
		row := []string{
			s.Name,
			string(s.Status),
			fmt.Sprint(s.Estimate.GasUsed),
			gwei(s.Estimate.GasPrice),
			s.Estimate.CostInNativeCurrency,
			s.Estimate.CostInUSD,
		}
		if showTx {
			row = append(row, s.TxHash)
		}
		rows = append(rows, row)
	}

	total := []string{
		"Total",
		fmt.Sprintf("%d/%d ok", len(r.Steps)-len(r.FailedSteps()), len(r.Steps)),
		fmt.Sprint(r.Totals.TotalGasUsed),
		"",
		r.Totals.TotalCostInNativeCurrency,
		r.Totals.TotalCostInUSD,
	}
	if showTx {
		total = append(total, "")
	}
	rows = append(rows, total)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == len(rows)-1:
				return totalStyle
			case row >= 0 && row < len(r.Steps) && r.Steps[row].Status == model.StatusFailed:
				return failedStyle
			case row >= 0 && row < len(r.Steps) && r.Steps[row].Status == model.StatusSkipped:
				return skippedStyle
			default:
				return cellStyle
			}
		})
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, s := range r.FailedSteps() {
		b.WriteString(failedStyle.Render(fmt.Sprintf("%s: %s", s.Name, s.Error)))
		b.WriteString("\n")
	}
	for _, w := range r.Warnings {
		b.WriteString(warnStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("completed in %s", r.Elapsed.Round(time.Millisecond))))
	b.WriteString("\n")
	return b.String()
}

func gwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}
