package aggregator

import (
	"fmt"
	"strings"
)

// Photo validation limits. The photo cap matches the platform's album size
// policy; the size guard matches the Bot API download limit.
const (
	MinPhotos       = 1
	MaxPhotos       = 5
	MaxPhotoBytes   = 20 << 20
	MaxDisplayOrder = MaxPhotos - 1
)

// allowedMIMETypes are the photo content types accepted for analysis.
var allowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// ValidationError carries the user-facing message for a rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidatePhotoCount enforces the 1..5 photo policy.
func ValidatePhotoCount(n int) error {
	if n < MinPhotos {
		return &ValidationError{Message: "at least one photo is required"}
	}
	if n > MaxPhotos {
		return &ValidationError{Message: "Maximum 5 photos per message for better calorie estimation"}
	}
	return nil
}

// ValidateDisplayOrder enforces the 0-based position bound within an album.
func ValidateDisplayOrder(i int) error {
	if i < 0 || i > MaxDisplayOrder {
		return &ValidationError{
			Message: fmt.Sprintf("display order must be between 0 and %d", MaxDisplayOrder),
		}
	}
	return nil
}

// ValidateMIMEType accepts jpeg, png, and webp photos only.
func ValidateMIMEType(mimeType string) error {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if _, ok := allowedMIMETypes[normalized]; !ok {
		return &ValidationError{
			Message: fmt.Sprintf("unsupported photo type %q, use jpeg, png, or webp", mimeType),
		}
	}
	return nil
}

// ValidateFileSize rejects photos over the download limit.
func ValidateFileSize(sizeBytes int64) error {
	if sizeBytes > MaxPhotoBytes {
		return &ValidationError{Message: "photo exceeds the 20 MB size limit"}
	}
	return nil
}
