package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"match-engine-go/internal/logger"
)

// TikaExtractor extracts text via an Apache Tika server. Tika handles all of
// the accepted content types, PDF and both Word formats included.
type TikaExtractor struct {
	// ServerURL is the Tika endpoint, e.g. http://localhost:9998
	ServerURL string
	// Client is the HTTP client, configurable through options.
	Client *http.Client

	extractMetadata    bool
	extractAnnotations bool
}

// TikaOption customizes a TikaExtractor.
type TikaOption func(*TikaExtractor)

// WithMetadata toggles the second /meta call per document.
func WithMetadata(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractMetadata = extract
	}
}

// WithAnnotations toggles extraction of PDF annotation text.
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		e.Client.Timeout = timeout
	}
}

var _ TextExtractor = (*TikaExtractor)(nil)

// NewTikaExtractor creates a Tika-backed extractor.
func NewTikaExtractor(serverURL string, options ...TikaOption) *TikaExtractor {
	e := &TikaExtractor{
		ServerURL: serverURL,
		Client: &http.Client{
			Timeout: 60 * time.Second,
		},
		extractMetadata:    true,
		extractAnnotations: true,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// ExtractText sends the document to Tika's /tika endpoint in plain-text mode.
func (e *TikaExtractor) ExtractText(ctx context.Context, reader io.Reader, contentType string, resourceName string) (string, map[string]interface{}, error) {
	if !IsSupportedContentType(contentType) {
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", metadata, fmt.Errorf("build Tika request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")
	if resourceName != "" {
		req.Header.Set("X-Tika-Resource-Name", resourceName)
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", metadata, fmt.Errorf("send request to Tika server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", metadata, fmt.Errorf("tika server returned status %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", metadata, fmt.Errorf("read Tika response: %w", err)
	}
	text := string(textBytes)

	metadata["text_length"] = len(text)
	metadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	if e.extractMetadata {
		if docMeta, metaErr := e.fetchMetadata(ctx, data, contentType, resourceName); metaErr == nil {
			for k, v := range docMeta {
				if isImportantMetadata(k) {
					metadata[k] = v
				}
			}
		} else {
			logger.Warn().Err(metaErr).Str("resource", resourceName).Msg("Tika metadata extraction failed, keeping base metadata")
		}
	}

	return text, metadata, nil
}

func (e *TikaExtractor) fetchMetadata(ctx context.Context, data []byte, contentType string, resourceName string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/meta", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build Tika metadata request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if resourceName != "" {
		req.Header.Set("X-Tika-Resource-Name", resourceName)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send metadata request to Tika server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika server returned status %d", resp.StatusCode)
	}

	var metadata map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decode metadata JSON: %w", err)
	}
	return metadata, nil
}

func isImportantMetadata(key string) bool {
	importantKeys := map[string]bool{
		"pdf:PDFVersion":  true,
		"xmpTPg:NPages":   true,
		"dcterms:created": true,
		"language":        true,
		"dc:title":        true,
		"Content-Type":    true,
	}
	return importantKeys[key]
}
