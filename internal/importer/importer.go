// Package importer turns agency CSV and XLSX extracts into raw reward records.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	ErrNoFiles           = errors.New("no_files")
	ErrUnsupportedFormat = errors.New("unsupported_format")
	ErrMissingColumns    = errors.New("missing_columns")
	ErrEmptyFile         = errors.New("empty_file")
)

// MissingColumnsError names the file and the fields no header matched.
type MissingColumnsError struct {
	File    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMissingColumns, e.File, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// File is one uploaded extract.
type File struct {
	Name string
	Body io.Reader
}

// Result is the merged content of every imported file. Coercion rows index
// Records.
type Result struct {
	Records   []rewarddomain.RawRecord
	Coercions []rewarddomain.CoercionEvent
	Files     int
}

type Importer struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Importer {
	return &Importer{log: log.Named("importer")}
}

// Import reads every file and concatenates their rows in file order.
func (i *Importer) Import(ctx context.Context, files []File) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	res := &Result{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readRows(f)
		if err != nil {
			return nil, err
		}
		before := len(res.Records)
		if err := res.appendRows(f.Name, rows); err != nil {
			return nil, err
		}
		res.Files++
		i.log.Debug("extract imported",
			zap.String("file", f.Name),
			zap.Int("records", len(res.Records)-before),
		)
	}

	if len(res.Coercions) > 0 {
		i.log.Warn("extract values coerced", zap.Int("coercions", len(res.Coercions)))
	}
	return res, nil
}

func readRows(f File) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(f.Name)); ext {
	case ".csv", ".txt":
		return readCSV(f.Body)
	case ".xlsx", ".xlsm":
		return readXLSX(f.Body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffSeparator(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

// sniffSeparator picks the most frequent candidate separator of the header line.
func sniffSeparator(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	best, count := ',', 0
	for _, sep := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(line, string(sep)); n > count {
			best, count = sep, n
		}
	}
	return best
}

func readXLSX(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	// Raw values keep dates as serial numbers instead of locale formatting.
	return book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func (res *Result) appendRows(name string, rows [][]string) error {
	header := -1
	for i, row := range rows {
		if !blank(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	idx, missing := matchColumns(rows[header])
	if len(missing) > 0 {
		return &MissingColumnsError{File: name, Columns: missing}
	}

	for _, row := range rows[header+1:] {
		if blank(row) {
			continue
		}
		res.appendRecord(idx, row)
	}
	return nil
}

func (res *Result) appendRecord(idx map[string]int, row []string) {
	cell := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	pos := len(res.Records)
	rec := rewarddomain.RawRecord{
		Period:    cell(ColPeriod),
		CreatorID: cell(ColCreatorID),
		Username:  cell(ColUsername),
		Group:     cell(ColGroup),
		Agent:     cell(ColAgent),
		Status:    cell(ColStatus),
	}
	// Spreadsheets often store ids as numbers.
	if strings.ContainsAny(rec.CreatorID, ".eE") {
		if id, err := strconv.ParseFloat(rec.CreatorID, 64); err == nil && id == float64(int64(id)) {
			rec.CreatorID = strconv.FormatInt(int64(id), 10)
		}
	}
	key := rec.CreatorID
	if key == "" {
		key = rec.Username
	}

	number := func(col string) *float64 {
		raw := cell(col)
		v, ok := parseNumber(raw)
		if !ok {
			res.Coercions = append(res.Coercions, rewarddomain.CoercionEvent{Row: pos, Key: key, Field: col, Raw: raw})
		}
		return rewarddomain.Float64(v)
	}
	rec.Diamonds = number(ColDiamonds)
	rec.LiveHours = number(ColLiveHours)
	rec.LiveDays = number(ColLiveDays)

	if raw := cell(ColRelationDate); raw != "" {
		d, ok := parseDate(raw)
		if !ok {
			res.Coercions = append(res.Coercions, rewarddomain.CoercionEvent{Row: pos, Key: key, Field: ColRelationDate, Raw: raw})
		}
		rec.RelationDate = d
	}

	res.Records = append(res.Records, rec)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
