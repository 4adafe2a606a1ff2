// Package extractor turns uploaded CV documents into plain text.
package extractor

import (
	"context"
	"fmt"
	"io"
)

// Supported upload content types.
const (
	ContentTypePDF         = "application/pdf"
	ContentTypeWordLegacy  = "application/msword"
	ContentTypeWordOpenXML = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypePlainText   = "text/plain"
)

// ErrUnsupportedContentType is returned for uploads outside the accepted set.
type ErrUnsupportedContentType struct {
	ContentType string
}

func (e *ErrUnsupportedContentType) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// IsSupportedContentType reports whether an upload can be extracted.
func IsSupportedContentType(contentType string) bool {
	switch contentType {
	case ContentTypePDF, ContentTypeWordLegacy, ContentTypeWordOpenXML, ContentTypePlainText:
		return true
	default:
		return false
	}
}

// TextExtractor extracts plain text from a document stream.
type TextExtractor interface {
	// ExtractText reads the document and returns its text plus extraction
	// metadata. The content type tells the extractor how to treat the bytes.
	ExtractText(ctx context.Context, reader io.Reader, contentType string, resourceName string) (string, map[string]interface{}, error)
}
