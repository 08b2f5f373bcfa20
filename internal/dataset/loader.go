package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kshedden/datareader"

	"marstat/internal/logging"
)

// Options controls how a file is read.
type Options struct {
	Schema Schema
	// MissingValues are tokens treated as missing. In binary formats a cell
	// flagged missing is stored as MissingValues[0] (or "NA" when empty) so
	// the recoder sees one representation.
	MissingValues []string
}

func (o Options) missingLabel() string {
	if len(o.MissingValues) > 0 {
		return o.MissingValues[0]
	}
	return "NA"
}

func (o Options) isMissing(v string) bool {
	return slices.Contains(o.MissingValues, strings.TrimSpace(v))
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV, nil
	case ".dta":
		return Stata, nil
	case ".sas7bdat":
		return SAS7BDAT, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads the dataset at path. The schema is validated against the file
// header before any row is parsed.
func Load(path string, opts Options) (*Table, error) {
	logger := logging.New("loader")

	format, err := DetectFormat(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "detect format", Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "read", Err: err}
	}

	var records []Record
	switch format {
	case CSV:
		records, err = parseCSV(data, opts)
	case Stata:
		var r statReader
		r, err = datareader.NewStataReader(bytes.NewReader(data))
		if err == nil {
			records, err = parseStat(r, opts)
		}
	case SAS7BDAT:
		var r statReader
		r, err = datareader.NewSAS7BDATReader(bytes.NewReader(data))
		if err == nil {
			records, err = parseStat(r, opts)
		}
	}
	if err != nil {
		return nil, &IOError{Path: path, Op: "parse " + string(format), Err: err}
	}

	sum := sha256.Sum256(data)
	t := &Table{
		Path:    path,
		Format:  format,
		Hash:    hex.EncodeToString(sum[:]),
		Records: records,
	}
	logger.Info("dataset loaded", "path", path, "format", format, "rows", t.Len(), "hash", t.Hash[:12])
	return t, nil
}

// columnIndex resolves every schema column in header, failing with
// ErrSchema naming all absent columns.
func columnIndex(header []string, s Schema) ([4]int, error) {
	var idx [4]int
	var missing []string
	for i, col := range s.Columns() {
		j := slices.IndexFunc(header, func(h string) bool { return strings.TrimSpace(h) == col })
		if j < 0 {
			missing = append(missing, col)
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: missing column(s) %s", ErrSchema, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseCSV(data []byte, opts Options) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.ReuseRecord = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file, no header row", ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// strip a UTF-8 BOM some spreadsheet exports prepend
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx, err := columnIndex(header, opts.Schema)
	if err != nil {
		return nil, err
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		rec := Record{
			MaritalStatus: row[idx[1]],
			Income:        row[idx[2]],
			PopCenter:     row[idx[3]],
		}
		rawAge := row[idx[0]]
		if opts.isMissing(rawAge) {
			rec.AgeMissing = true
		} else {
			age, err := parseAge(rawAge)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %v", ErrMalformed, line, opts.Schema.Age, err)
			}
			rec.Age = age
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseAge accepts integers and integral decimals ("45", "45.0").
func parseAge(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("age %q is not a number", s)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("age %q is not an integer", s)
	}
	return int(f), nil
}

// statReader is the subset of datareader.StatfileReader used here.
type statReader interface {
	ColumnNames() []string
	Read(int) ([]*datareader.Series, error)
}

func parseStat(r statReader, opts Options) ([]Record, error) {
	idx, err := columnIndex(r.ColumnNames(), opts.Schema)
	if err != nil {
		return nil, err
	}
	series, err := r.Read(-1)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	cols := make([][]string, 4)
	for i, j := range idx {
		if j >= len(series) {
			return nil, fmt.Errorf("%w: column %d not returned by reader", ErrMalformed, j)
		}
		cols[i], err = seriesStrings(series[j], opts.missingLabel())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", series[j].Name, err)
		}
	}

	n := len(cols[0])
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		rec := Record{
			MaritalStatus: cols[1][i],
			Income:        cols[2][i],
			PopCenter:     cols[3][i],
		}
		if opts.isMissing(cols[0][i]) || cols[0][i] == opts.missingLabel() {
			rec.AgeMissing = true
		} else {
			age, err := parseAge(cols[0][i])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", ErrMalformed, i+1, opts.Schema.Age, err)
			}
			rec.Age = age
		}
		out[i] = rec
	}
	return out, nil
}

// seriesStrings renders a datareader column as strings, substituting
// missingLabel for cells the reader flags missing.
func seriesStrings(s *datareader.Series, missingLabel string) ([]string, error) {
	miss := s.Missing()
	isMiss := func(i int) bool { return miss != nil && miss[i] }
	num := func(f float64) string {
		if math.IsNaN(f) {
			return missingLabel
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	var out []string
	switch v := s.Data().(type) {
	case []string:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = strings.TrimSpace(x)
		}
	case []float64:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = num(x)
		}
	case []float32:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = num(float64(x))
		}
	case []int64:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.FormatInt(x, 10)
		}
	case []int32:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.FormatInt(int64(x), 10)
		}
	case []int16:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.FormatInt(int64(x), 10)
		}
	case []int8:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = strconv.FormatInt(int64(x), 10)
		}
	case []time.Time:
		out = make([]string, len(v))
		for i, x := range v {
			out[i] = x.Format(time.DateOnly)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported column type %T", ErrMalformed, v)
	}
	for i := range out {
		if isMiss(i) {
			out[i] = missingLabel
		}
	}
	return out, nil
}
