package csvimport

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParser(t *testing.T) {
	t.Run("rejects empty input", func(t *testing.T) {
		_, err := NewParser(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrEmptyFile)

		_, err = NewParser(strings.NewReader("  \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("rejects non utf-8 input", func(t *testing.T) {
		_, err := NewParser(bytes.NewReader([]byte{'n', 'a', 'm', 'e', '\n', 0xff, 0xfe, 0xfd}))
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})

	t.Run("strips byte order mark", func(t *testing.T) {
		p, err := NewParser(bytes.NewReader(append([]byte{0xEF, 0xBB, 0xBF}, []byte("Name,Email\nJane,jane@example.com\n")...)))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())
		assert.Equal(t, []string{"name", "email"}, p.Headers())
	})

	t.Run("semicolon delimiter", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("Name;Email\nJane Doe;jane@example.com\n"), WithDelimiter(Delimiters["semicolon"]))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())
		assert.Equal(t, []string{"name", "email"}, p.Headers())
	})

	t.Run("accepts multi-byte rune across the peek window", func(t *testing.T) {
		body := "name\n" + strings.Repeat("a", 4090) + "é\n"
		_, err := NewParser(strings.NewReader(body))
		assert.NoError(t, err)
	})
}

func TestParser_ParseHeader(t *testing.T) {
	t.Run("resolves aliases", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("Full Name, E-mail ,Mobile,Lead Source,Student Name\n"))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())

		assert.Equal(t, []string{"name", "email", "phone", "source", "child_name"}, p.Headers())
		assert.True(t, p.HasHeader("email"))
		assert.Empty(t, p.MissingHeaders(RequiredColumns))
	})

	t.Run("first duplicate column wins", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("name,parent name\nA,B\n"))
		require.NoError(t, err)
		row, err := p.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "A", row.Get("name"))
	})

	t.Run("blank header row", func(t *testing.T) {
		p, err := NewParser(strings.NewReader(",,\nA,B,C\n"))
		require.NoError(t, err)
		assert.ErrorIs(t, p.ParseHeader(), ErrMissingHeader)
	})

	t.Run("reports missing required columns", func(t *testing.T) {
		p, err := NewParser(strings.NewReader("email\n"))
		require.NoError(t, err)
		require.NoError(t, p.ParseHeader())
		assert.Equal(t, []string{"name"}, p.MissingHeaders(RequiredColumns))
	})
}

func TestParser_ReadRow(t *testing.T) {
	p, err := NewParser(strings.NewReader("name,email,phone\n  Jane Doe ,jane@example.com\n,,\nJohn,john@example.com,0123\n"))
	require.NoError(t, err)

	row, err := p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "Jane Doe", row.Get("name"))
	assert.Equal(t, "", row.Get("phone"))

	row, err = p.ReadRow()
	require.NoError(t, err)
	assert.True(t, row.IsEmpty())

	row, err = p.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 4, row.LineNumber)
	assert.Equal(t, "0123", row.Get("phone"))

	_, err = p.ReadRow()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, p.TotalRows())
}

func TestCanonicalColumn(t *testing.T) {
	tests := map[string]string{
		"Name":             "name",
		" Email Address ":  "email",
		"phone-number":     "phone",
		"Date of Birth":    "child_dob",
		"Year Group":       "child_year_group",
		"favourite colour": "favourite_colour",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalColumn(in), in)
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeEmptyFile, ErrorCode(ErrEmptyFile))
	assert.Equal(t, ErrCodeEmptyFile, ErrorCode(ErrNoDataRows))
	assert.Equal(t, ErrCodeInvalidEncoding, ErrorCode(ErrInvalidEncoding))
	assert.Equal(t, ErrCodeMissingHeader, ErrorCode(ErrMissingHeader))
	assert.Equal(t, ErrCodeFileTooLarge, ErrorCode(ErrFileTooLarge))
	assert.Equal(t, ErrCodeMalformedRow, ErrorCode(&RowError{Row: 3, Code: ErrCodeMalformedRow}))
	assert.Equal(t, ErrCodeInvalidFile, ErrorCode(io.ErrUnexpectedEOF))

	re := &RowError{Row: 3, Column: "email", Message: "bad"}
	assert.Equal(t, "row 3, column 'email': bad", re.Error())
	re.Column = ""
	assert.Equal(t, "row 3: bad", re.Error())
}
