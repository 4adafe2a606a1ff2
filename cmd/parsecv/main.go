// Command parsecv runs the extraction and parsing pipeline against a local
// file without any backing services. Useful for tuning the keyword catalog.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"match-engine-go/internal/extractor"
	"match-engine-go/internal/parser"
	"match-engine-go/internal/textutil"
)

var (
	filePath = pflag.StringP("file", "f", "", "path to the document (required)")
	mode     = pflag.StringP("mode", "m", "cv", "what to parse: cv or jd")
	tikaURL  = pflag.String("tika", "", "Tika server URL; empty uses the local extractor")
	rawOnly  = pflag.Bool("raw", false, "print the extracted text instead of the parsed result")
)

func main() {
	pflag.Parse()
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		pflag.Usage()
		os.Exit(1)
	}

	file, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	defer file.Close()

	var textExtractor extractor.TextExtractor
	if *tikaURL != "" {
		textExtractor = extractor.NewTikaExtractor(*tikaURL, extractor.WithTimeout(30*time.Second))
	} else {
		textExtractor = extractor.NewLocalPDFExtractor()
	}

	ctx := context.Background()
	text, _, err := textExtractor.ExtractText(ctx, file, contentTypeFor(*filePath), filepath.Base(*filePath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: extract text: %v\n", err)
		os.Exit(1)
	}
	normalized := textutil.Normalize(text)

	if *rawOnly {
		fmt.Println(normalized)
		return
	}

	catalog := parser.DefaultCatalog()
	var result interface{}
	switch *mode {
	case "cv":
		result = parser.NewCandidateProfileParser(catalog).Parse(normalized)
	case "jd":
		result = parser.NewRequirementsParser(catalog).Parse(normalized)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown mode %q, expected cv or jd\n", *mode)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: marshal result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractor.ContentTypePDF
	case ".doc":
		return extractor.ContentTypeWordLegacy
	case ".docx":
		return extractor.ContentTypeWordOpenXML
	default:
		return extractor.ContentTypePlainText
	}
}
