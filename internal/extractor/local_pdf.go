package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ledongthuc/pdf"
)

// LocalPDFExtractor extracts text in-process without a Tika server. It only
// understands PDF and plain text; Word uploads need the Tika path.
type LocalPDFExtractor struct{}

var _ TextExtractor = (*LocalPDFExtractor)(nil)

// NewLocalPDFExtractor creates the in-process extractor, used as the
// fallback when no Tika server is configured.
func NewLocalPDFExtractor() *LocalPDFExtractor {
	return &LocalPDFExtractor{}
}

// ExtractText parses the PDF bytes directly.
func (e *LocalPDFExtractor) ExtractText(ctx context.Context, reader io.Reader, contentType string, resourceName string) (string, map[string]interface{}, error) {
	switch contentType {
	case ContentTypePDF, ContentTypePlainText:
	default:
		return "", nil, &ErrUnsupportedContentType{ContentType: contentType}
	}

	startTime := time.Now()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, fmt.Errorf("read document: %w", err)
	}

	metadata := map[string]interface{}{
		"extraction_time": time.Now().Format(time.RFC3339),
		"source_name":     resourceName,
	}

	if contentType == ContentTypePlainText {
		text := string(data)
		metadata["text_length"] = len(text)
		metadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()
		return text, metadata, nil
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", metadata, fmt.Errorf("open PDF: %w", err)
	}

	textReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", metadata, fmt.Errorf("extract PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", metadata, fmt.Errorf("read PDF text: %w", err)
	}

	text := buf.String()
	metadata["text_length"] = len(text)
	metadata["page_count"] = pdfReader.NumPage()
	metadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()
	return text, metadata, nil
}
