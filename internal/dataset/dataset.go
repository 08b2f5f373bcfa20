// Package dataset loads survey respondent tables from CSV, Stata (.dta) and
// SAS (.sas7bdat) files into typed records.
package dataset

import (
	"errors"
	"fmt"
)

// Format identifies the on-disk encoding of a dataset.
type Format string

const (
	CSV      Format = "csv"
	Stata    Format = "dta"
	SAS7BDAT Format = "sas7bdat"
)

var (
	// ErrSchema means a required column is absent from the file header.
	ErrSchema = errors.New("schema mismatch")
	// ErrMalformed means a value could not be parsed as its column type.
	ErrMalformed = errors.New("malformed value")
	// ErrUnsupportedFormat means the file extension maps to no reader.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// IOError reports a dataset that is missing, unreadable, or malformed.
// Every failure returned by Load is an *IOError.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Schema maps the four analysis fields to column names in the file.
type Schema struct {
	Age           string
	MaritalStatus string
	Income        string
	PopCenter     string
}

// Columns returns the column names in field order.
func (s Schema) Columns() []string {
	return []string{s.Age, s.MaritalStatus, s.Income, s.PopCenter}
}

// Record is one survey respondent. Categorical fields hold the raw label,
// which may be a missing-value token; the recoder decides what to drop.
type Record struct {
	Age           int
	AgeMissing    bool
	MaritalStatus string
	Income        string
	PopCenter     string
}

// Table is a loaded dataset. Hash is the hex SHA-256 of the file bytes and
// identifies the input in the fit cache.
type Table struct {
	Path    string
	Format  Format
	Hash    string
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }
