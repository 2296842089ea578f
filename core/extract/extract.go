package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

// Format is a supported upload format.
type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
)

// DetectFormat resolves the format from the declared content type, falling back to the file extension.
func DetectFormat(contentType string, filename string) (Format, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mediaType == "application/pdf":
			return FormatPDF, nil
		case strings.HasPrefix(mediaType, "text/"):
			return FormatText, nil
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".txt", ".text", ".md":
		return FormatText, nil
	}

	return "", fmt.Errorf("%w: content type %q, file %q", model.ErrUnsupportedFormat, contentType, filename)
}

// ExtractText returns the plain text of an upload. Plain text is decoded as UTF-8 with
// invalid bytes dropped. The result may be empty for unreadable input, callers must reject that.
func ExtractText(data []byte, contentType string, filename string) (string, error) {
	format, err := DetectFormat(contentType, filename)
	if err != nil {
		return "", helper.NewError("detect format", err)
	}

	switch format {
	case FormatPDF:
		text, err := extractPDF(data)
		if err != nil {
			return "", helper.NewError("extract pdf", err)
		}
		return text, nil
	default:
		return decodeUTF8(data), nil
	}
}

func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func extractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	return decodeUTF8(out), nil
}
