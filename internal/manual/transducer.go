// Package manual imports manually collected well data from the transducer
// workbook, one sheet per well. The workbook is maintained by field staff and
// carries a 13-row preamble before the column header.
package manual

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gsi-monitoring/piezosync/internal/timeseries"
)

const (
	preambleRows = 13
	localTime    = "America/New_York"
	sheetLayout  = "2006-01-02 15:04:05"
)

// Schema describes the workbook's fields for upload.
var Schema = timeseries.Schema{
	Names: map[string]string{
		"temperature":     "Temperature (C)",
		"conductivity":    "Conductivity (µS | cm)",
		"water_elevation": "Water Elevation (ft)",
	},
	Units: map[string]string{
		"temperature":     "C",
		"conductivity":    "µS/cm",
		"water_elevation": "ft",
	},
}

var wantedColumns = []string{"Date/Time", "TEMPERATURE", "CONDUCTIVITY", "compensated elevation"}

// ReadTransducerSheet loads one well's sheet from the workbook. Sheet
// timestamps are naive US/Eastern and are normalized to UTC before entering
// the batch; rows at or after start are kept, rows with no compensated
// elevation are dropped.
func ReadTransducerSheet(path, sheet string, start time.Time) (*timeseries.Batch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) <= preambleRows {
		return nil, fmt.Errorf("sheet %q has no header after the preamble", sheet)
	}

	header := rows[preambleRows]
	columns := make(map[string]int, len(wantedColumns))
	for i, cell := range header {
		for _, want := range wantedColumns {
			if strings.TrimSpace(cell) == want {
				columns[want] = i
			}
		}
	}
	for _, want := range wantedColumns {
		if _, ok := columns[want]; !ok {
			return nil, fmt.Errorf("sheet %q is missing column %q", sheet, want)
		}
	}

	eastern, err := time.LoadLocation(localTime)
	if err != nil {
		return nil, err
	}

	batch := timeseries.NewBatch()
	for _, row := range rows[preambleRows+1:] {
		elevation, ok := cellFloat(row, columns["compensated elevation"])
		if !ok {
			continue
		}

		rawTS := cellString(row, columns["Date/Time"])
		if rawTS == "" {
			continue
		}
		local, err := time.ParseInLocation(sheetLayout, rawTS, eastern)
		if err != nil {
			return nil, fmt.Errorf("parse sheet timestamp %q: %w", rawTS, err)
		}
		utc := local.UTC()
		if utc.Before(start) {
			continue
		}

		// A blank temperature or conductivity cell is recorded as zero so
		// every row carries the full field set.
		temperature, _ := cellFloat(row, columns["TEMPERATURE"])
		conductivity, _ := cellFloat(row, columns["CONDUCTIVITY"])

		ts := timeseries.FormatTime(utc)
		batch.SetValue(ts, "temperature", temperature)
		batch.SetValue(ts, "conductivity", conductivity)
		batch.SetValue(ts, "water_elevation", elevation)
	}
	return batch, nil
}

func cellString(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func cellFloat(row []string, i int) (float64, bool) {
	s := cellString(row, i)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
