package sim

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{"timestamp", "level", "bid_price", "bid_volume", "ask_price", "ask_volume"}

// ReadCSV parses rows from CSV with the columns
// timestamp,level,bid_price,bid_volume,ask_price,ask_volume. A header line
// is optional. Lines sharing a timestamp form one row, ordered by level;
// timestamps must not decrease.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true

	var (
		rows   []Row
		levels map[int]Level
		line   int
	)
	flush := func() {
		if len(rows) == 0 || levels == nil {
			return
		}
		maxLevel := 0
		for n := range levels {
			maxLevel = max(maxLevel, n)
		}
		ordered := make([]Level, 0, len(levels))
		for n := 1; n <= maxLevel; n++ {
			if lvl, ok := levels[n]; ok {
				ordered = append(ordered, lvl)
			}
		}
		rows[len(rows)-1].Levels = ordered
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], csvHeader[0]) {
			continue
		}
		ts, lvlNo, lvl, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if n := len(rows); n == 0 || rows[n-1].Timestamp != ts {
			if n > 0 && ts < rows[n-1].Timestamp {
				return nil, fmt.Errorf("csv line %d: timestamp %d before %d", line, ts, rows[n-1].Timestamp)
			}
			flush()
			rows = append(rows, Row{Timestamp: ts})
			levels = make(map[int]Level)
		}
		if _, dup := levels[lvlNo]; dup {
			return nil, fmt.Errorf("csv line %d: duplicate level %d at %d", line, lvlNo, ts)
		}
		levels[lvlNo] = lvl
	}
	flush()
	return rows, nil
}

func parseRecord(rec []string) (int64, int, Level, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return 0, 0, Level{}, fmt.Errorf("timestamp: %w", err)
	}
	n, err := strconv.Atoi(rec[1])
	if err != nil || n < 1 {
		return 0, 0, Level{}, fmt.Errorf("level %q must be a positive integer", rec[1])
	}
	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(rec[2+i], 64)
		if err != nil {
			return 0, 0, Level{}, fmt.Errorf("%s: %w", csvHeader[2+i], err)
		}
		if v < 0 {
			return 0, 0, Level{}, fmt.Errorf("%s: negative value %v", csvHeader[2+i], v)
		}
		vals[i] = v
	}
	return ts, n, Level{BidPrice: vals[0], BidVolume: vals[1], AskPrice: vals[2], AskVolume: vals[3]}, nil
}

// WriteCSV writes rows in the format ReadCSV accepts, header included.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, row := range rows {
		for i, lvl := range row.Levels {
			rec := []string{
				strconv.FormatInt(row.Timestamp, 10), strconv.Itoa(i + 1),
				f(lvl.BidPrice), f(lvl.BidVolume), f(lvl.AskPrice), f(lvl.AskVolume),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
