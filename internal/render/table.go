// Package render prints normalized responses for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/shopspring/decimal"

	"github.com/alex-user-go/luxsearch/internal/search/types"
)

const maxCellWidth = 40

// Table writes rows as space-aligned columns. Widths are measured in
// terminal cells so wide characters line up.
func Table(w io.Writer, headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			row[i] = runewidth.Truncate(row[i], maxCellWidth, "…")
			if cw := runewidth.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	if err := writeRow(w, headers, widths); err != nil {
		return err
	}
	sep := make([]string, len(widths))
	for i, wd := range widths {
		sep[i] = strings.Repeat("-", wd)
	}
	if err := writeRow(w, sep, widths); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	var sb strings.Builder
	for i, wd := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(widths)-1 {
			sb.WriteString(cell)
			break
		}
		sb.WriteString(runewidth.FillRight(cell, wd))
		sb.WriteString("  ")
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	return err
}

// Items writes the response items as a table followed by the narrative and notes.
func Items(w io.Writer, resp types.Response) error {
	if len(resp.Items) == 0 {
		if _, err := fmt.Fprintln(w, "no results"); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(resp.Items))
		for _, it := range resp.Items {
			rows = append(rows, []string{
				str(it.Name),
				money(it.Price),
				it.Currency,
				str(it.City),
				num(it.Stars),
				num(it.Rating),
				it.Source,
			})
		}
		headers := []string{"NAME", "PRICE", "CUR", "CITY", "STARS", "RATING", "SOURCE"}
		if err := Table(w, headers, rows); err != nil {
			return err
		}
	}

	if resp.Narrative != "" {
		if _, err := fmt.Fprintf(w, "\n%s\n", resp.Narrative); err != nil {
			return err
		}
	}
	if c := resp.Meta.Counts; c != nil && c.UnderBudget != nil && c.TotalIn != nil {
		if _, err := fmt.Fprintf(w, "%d of %d under budget\n", *c.UnderBudget, *c.TotalIn); err != nil {
			return err
		}
	}
	return nil
}

func str(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func money(f *float64) string {
	if f == nil {
		return "-"
	}
	return decimal.NewFromFloat(*f).StringFixed(2)
}

func num(f *float64) string {
	if f == nil {
		return "-"
	}
	return decimal.NewFromFloat(*f).String()
}
