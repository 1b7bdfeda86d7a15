package google

import (
	"fmt"
	"strings"

	"payments/internal/core"
	ports "payments/internal/sheets"
)

// sheetRange builds an A1 range, quoting the tab name.
func sheetRange(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toRows(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = toStrings(v)
	}
	return rows
}

func toValues(records []core.PaymentRecord) [][]any {
	out := make([][]any, 0, len(records)+1)
	out = append(out, cells(ports.Header()))
	for _, r := range records {
		out = append(out, cells(ports.EncodeRow(r)))
	}
	return out
}

func cells(row []string) []any {
	out := make([]any, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}
