package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

type ExportData struct {
	Run   RunMetadata `json:"run"`
	Ticks []Tick      `json:"ticks"`
}

func ExportJSON(w io.Writer, meta RunMetadata, ticks []Tick) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Run: meta, Ticks: ticks})
}

func WriteCSV(w io.Writer, ticks []Tick) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range ticks {
		if err := cw.Write(t.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadCSV(r io.Reader) ([]Tick, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []Tick{}, nil
	}
	ticks := make([]Tick, 0, len(records)-1)
	for i, rec := range records[1:] {
		t, err := parseTick(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: row %d: %w", i+1, err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}
