package csvimport

import (
	"errors"
	"fmt"
)

// Import error codes
const (
	ErrCodeInvalidFile     = "ERR_IMPORT_INVALID_FILE"
	ErrCodeEmptyFile       = "ERR_IMPORT_EMPTY_FILE"
	ErrCodeFileTooLarge    = "ERR_IMPORT_FILE_TOO_LARGE"
	ErrCodeInvalidEncoding = "ERR_IMPORT_INVALID_ENCODING"
	ErrCodeMissingHeader   = "ERR_IMPORT_MISSING_HEADER"
	ErrCodeMalformedRow    = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeRequiredField   = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeInvalidValue    = "ERR_IMPORT_INVALID_VALUE"
	ErrCodeDuplicateInFile = "ERR_IMPORT_DUPLICATE_IN_FILE"
	ErrCodeTooManyRows     = "ERR_IMPORT_TOO_MANY_ROWS"
)

var (
	// ErrEmptyFile is returned when the upload has no content
	ErrEmptyFile = errors.New("CSV file is empty")

	// ErrInvalidEncoding is returned when the upload is not UTF-8
	ErrInvalidEncoding = errors.New("CSV file must be UTF-8 encoded")

	// ErrMissingHeader is returned when the upload has no header row
	ErrMissingHeader = errors.New("CSV file missing header row")

	// ErrNoDataRows is returned when the upload has a header and nothing else
	ErrNoDataRows = errors.New("CSV file contains no data rows")

	// ErrFileTooLarge is returned when the upload exceeds the size limit
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
)

// RowError points at a problem in one line of the upload
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ErrorCode maps a file level error to its import code
func ErrorCode(err error) string {
	var re *RowError
	switch {
	case errors.As(err, &re):
		return re.Code
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrNoDataRows):
		return ErrCodeEmptyFile
	case errors.Is(err, ErrInvalidEncoding):
		return ErrCodeInvalidEncoding
	case errors.Is(err, ErrMissingHeader):
		return ErrCodeMissingHeader
	case errors.Is(err, ErrFileTooLarge):
		return ErrCodeFileTooLarge
	default:
		return ErrCodeInvalidFile
	}
}
