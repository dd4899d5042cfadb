// Package decode resolves attachment payloads into a uniform text stream.
// Format-specific handling stops here; the extractor only ever sees text.
package decode

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ErrDecodeFailure means every fallback encoding was exhausted. Non-fatal:
// callers treat the document as empty.
var ErrDecodeFailure = errors.New("decode: all encodings exhausted")

// AttachmentResolver fetches attachment bytes from the object store.
type AttachmentResolver interface {
	Resolve(ctx context.Context, ref string) (data []byte, name string, err error)
}

// Alternate encodings tried in fixed order when the payload is not UTF-8.
var fallbackEncodings = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
	charmap.ISO8859_15,
}

// Text decodes raw bytes into a UTF-8 string, falling back through the
// alternate encodings before giving up.
func Text(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return "", ErrDecodeFailure
}

// Attachment decodes a named payload according to its format and returns a
// uniform text stream.
func Attachment(data []byte, name string) (string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return decodeCSV(data)
	case ".json":
		return decodeJSON(data)
	case ".zip":
		return decodeZip(data)
	default:
		return Text(data)
	}
}

// decodeCSV flattens rows into pipe-joined lines so column boundaries
// survive into the extraction pass.
func decodeCSV(data []byte) (string, error) {
	text, err := Text(data)
	if err != nil {
		return "", err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	var lines []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Malformed CSV still carries credentials; fall back to raw text.
			return text, nil
		}
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n"), nil
}

func decodeJSON(data []byte) (string, error) {
	text, err := Text(data)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text, nil
	}
	return buf.String(), nil
}

// decodeZip extracts text-bearing members and concatenates them under a
// per-file header.
func decodeZip(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	var parts []string
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !textMember(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text, err := Text(content)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s", file.Name, text))
	}
	return strings.Join(parts, "\n"), nil
}

func textMember(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".csv", ".json", ".log":
		return true
	}
	return false
}
