package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedContentType(t *testing.T) {
	assert.True(t, IsSupportedContentType(ContentTypePDF))
	assert.True(t, IsSupportedContentType(ContentTypeWordLegacy))
	assert.True(t, IsSupportedContentType(ContentTypeWordOpenXML))
	assert.True(t, IsSupportedContentType(ContentTypePlainText))
	assert.False(t, IsSupportedContentType("image/png"))
	assert.False(t, IsSupportedContentType("application/zip"))
	assert.False(t, IsSupportedContentType(""))
}

func TestTikaExtractor_ExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tika":
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, ContentTypePDF, r.Header.Get("Content-Type"))
			assert.Equal(t, "text/plain", r.Header.Get("Accept"))
			assert.Equal(t, "cv.pdf", r.Header.Get("X-Tika-Resource-Name"))
			_, _ = w.Write([]byte("John Doe\njohn@example.com\n"))
		case "/meta":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"xmpTPg:NPages":"2","dc:title":"CV","X-Unimportant":"x"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	e := NewTikaExtractor(server.URL)
	text, metadata, err := e.ExtractText(context.Background(), strings.NewReader("%PDF-1.4 fake"), ContentTypePDF, "cv.pdf")

	require.NoError(t, err)
	assert.Contains(t, text, "John Doe")
	assert.Equal(t, "2", metadata["xmpTPg:NPages"])
	assert.Equal(t, "CV", metadata["dc:title"])
	assert.NotContains(t, metadata, "X-Unimportant")
}

func TestTikaExtractor_RejectsUnsupportedContentType(t *testing.T) {
	e := NewTikaExtractor("http://localhost:9998")
	_, _, err := e.ExtractText(context.Background(), strings.NewReader("x"), "image/png", "photo.png")

	require.Error(t, err)
	var unsupported *ErrUnsupportedContentType
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "image/png", unsupported.ContentType)
}

func TestTikaExtractor_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	e := NewTikaExtractor(server.URL)
	_, _, err := e.ExtractText(context.Background(), strings.NewReader("broken"), ContentTypePDF, "cv.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestTikaExtractor_MetadataFailureIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/meta" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("extracted text"))
	}))
	defer server.Close()

	e := NewTikaExtractor(server.URL)
	text, metadata, err := e.ExtractText(context.Background(), strings.NewReader("doc"), ContentTypeWordOpenXML, "cv.docx")

	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)
	assert.Equal(t, "cv.docx", metadata["source_name"])
}

func TestLocalPDFExtractor_PlainText(t *testing.T) {
	e := NewLocalPDFExtractor()
	text, metadata, err := e.ExtractText(context.Background(), strings.NewReader("raw cv text"), ContentTypePlainText, "cv.txt")

	require.NoError(t, err)
	assert.Equal(t, "raw cv text", text)
	assert.Equal(t, len("raw cv text"), metadata["text_length"])
}

func TestLocalPDFExtractor_RejectsWord(t *testing.T) {
	e := NewLocalPDFExtractor()
	_, _, err := e.ExtractText(context.Background(), strings.NewReader("doc"), ContentTypeWordLegacy, "cv.doc")

	var unsupported *ErrUnsupportedContentType
	require.True(t, errors.As(err, &unsupported))
}
