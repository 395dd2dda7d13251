package bot

import (
	"errors"
	"net/http"
	"strings"
)

// IsPermissionDenied reports whether err is a platform refusal: the bot was
// blocked, kicked, or lacks rights to post in the target chat. These count as
// permission blocks in telemetry, not delivery bugs.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.ErrorCode == http.StatusForbidden {
		return true
	}
	// Telegram reports some rights problems as 400 with a telltale description.
	desc := strings.ToLower(apiErr.Description)
	return strings.Contains(desc, "not enough rights") ||
		strings.Contains(desc, "bot was blocked") ||
		strings.Contains(desc, "bot was kicked") ||
		strings.Contains(desc, "have no rights")
}
