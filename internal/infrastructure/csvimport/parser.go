package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Parser reads a parent spreadsheet row by row, keyed by normalized header
type Parser struct {
	delimiter  rune
	headerMap  map[string]int
	headers    []string
	currentRow int
	totalRows  int
	reader     *csv.Reader
	bufReader  *bufio.Reader
	trimSpace  bool
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// Delimiters are the field separators an upload may use, by form value
var Delimiters = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
}

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) ParserOption {
	return func(p *Parser) {
		p.delimiter = d
	}
}

// NewParser strips a UTF-8 BOM and rejects empty or non UTF-8 input
func NewParser(r io.Reader, opts ...ParserOption) (*Parser, error) {
	p := &Parser{
		delimiter: ',',
		headerMap: make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.bufReader = bufio.NewReader(r)

	head, err := p.bufReader.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if bytes.HasPrefix(head, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = p.bufReader.Discard(3)
	}

	if err := validateUTF8(p.bufReader); err != nil {
		return nil, err
	}

	p.reader = csv.NewReader(p.bufReader)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1

	return p, nil
}

func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return ErrEmptyFile
	}
	// the peek window may split a multi-byte rune
	if len(content) == checkSize {
		for i := 0; i < utf8.UTFMax && len(content) > 0 && !utf8.Valid(content); i++ {
			content = content[:len(content)-1]
		}
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

// ParseHeader reads the header row and resolves column aliases
func (p *Parser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	p.currentRow = 1

	p.headers = make([]string, len(record))
	for i, h := range record {
		key := CanonicalColumn(h)
		p.headers[i] = key
		if key == "" {
			continue
		}
		if _, dup := p.headerMap[key]; !dup {
			p.headerMap[key] = i
		}
	}
	if len(p.headerMap) == 0 {
		return ErrMissingHeader
	}
	return nil
}

// Headers returns the canonical header names in file order
func (p *Parser) Headers() []string {
	return p.headers
}

// HasHeader reports whether a canonical column is present
func (p *Parser) HasHeader(name string) bool {
	_, ok := p.headerMap[name]
	return ok
}

// Row is one data line of the upload
type Row struct {
	LineNumber int
	Data       map[string]string
	RawFields  []string
}

// Get returns the value of a canonical column
func (r *Row) Get(column string) string {
	return r.Data[column]
}

// IsEmpty reports whether every field is blank
func (r *Row) IsEmpty() bool {
	for _, v := range r.RawFields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadRow returns the next row or io.EOF
func (p *Parser) ReadRow() (*Row, error) {
	if p.headers == nil {
		if err := p.ParseHeader(); err != nil {
			return nil, err
		}
	}

	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.currentRow++
	if err != nil {
		return nil, &RowError{
			Row:     p.currentRow,
			Code:    ErrCodeMalformedRow,
			Message: fmt.Sprintf("failed to parse row: %v", err),
		}
	}
	p.totalRows++

	row := &Row{
		LineNumber: p.currentRow,
		Data:       make(map[string]string, len(p.headerMap)),
		RawFields:  record,
	}
	for key, i := range p.headerMap {
		if i >= len(record) {
			row.Data[key] = ""
			continue
		}
		v := record[i]
		if p.trimSpace {
			v = strings.TrimSpace(v)
		}
		row.Data[key] = v
	}
	return row, nil
}

// TotalRows returns the number of data rows read so far
func (p *Parser) TotalRows() int {
	return p.totalRows
}

// MissingHeaders lists required canonical columns absent from the header
func (p *Parser) MissingHeaders(required []string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}
