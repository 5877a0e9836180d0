package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// supportedMimeTypes are the upload formats the pipeline has an adapter for.
// Anything else still gets processed, but only by the fallback tier, so the
// API warns rather than rejects.
var supportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"text/plain":      true,
	"text/csv":        true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
}

// IsSupportedMimeType reports whether a primary extraction tier exists for
// the MIME type.
func IsSupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[normalizeMime(mimeType)]
}

// DetectMimeType returns the declared MIME type, or sniffs the content when
// the declaration is missing or generic.
func DetectMimeType(declared string, content []byte) string {
	declared = normalizeMime(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return normalizeMime(http.DetectContentType(content))
}

// ValidateUpload checks the basic shape of an incoming document.
func ValidateUpload(fileName string, content []byte, maxSize int64) error {
	if strings.TrimSpace(fileName) == "" {
		return fmt.Errorf("file name is required")
	}
	if len(content) == 0 {
		return fmt.Errorf("file content is empty")
	}
	if maxSize > 0 && int64(len(content)) > maxSize {
		return fmt.Errorf("file exceeds maximum size of %d bytes", maxSize)
	}
	return nil
}

// normalizeMime strips parameters such as charset and lowercases the type.
func normalizeMime(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
