package internal

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxAttachmentBytes is the largest attachment accepted
const DefaultMaxAttachmentBytes = 102400

// AttachmentExtension returns the lowercased extension used for validation.
// A name without a dot is treated as its own extension.
func AttachmentExtension(filename string) string {
	name := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		name = filename[i+1:]
	}
	return "." + strings.ToLower(name)
}

// ValidateAttachment checks a file against the backend's allowed types and the size limit
func ValidateAttachment(filename string, size int, allowed map[string][]string, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}

	ext := AttachmentExtension(filename)
	if mimes, ok := allowed[ext]; !ok || len(mimes) == 0 {
		return &ValidationError{
			Field:  "extension",
			Value:  filename,
			Reason: fmt.Sprintf("file type %s is not allowed", ext),
		}
	}

	if size > maxBytes {
		return &ValidationError{
			Field: "size",
			Value: filename,
			Reason: fmt.Sprintf("%s exceeds the %s limit",
				humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxBytes))),
		}
	}
	return nil
}
