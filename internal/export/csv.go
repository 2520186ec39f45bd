package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV 表头加每轮一行，UTF-8
func WriteCSV(w io.Writer, d Dataset) (Stats, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(d.Aggregated)); err != nil {
		return Stats{}, fmt.Errorf("write csv header: %w", err)
	}

	rows := Rows(d)
	for _, r := range rows {
		if err := cw.Write(r.Fields(d.Aggregated)); err != nil {
			return Stats{}, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return Stats{}, fmt.Errorf("flush csv: %w", err)
	}
	return Stats{Rows: len(rows)}, nil
}
