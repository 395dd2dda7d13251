package privacy

import "regexp"

// Failure notices sent to users must not leak internal identifiers. Captions
// are user-authored and stay; file ids, job ids, and URLs are stripped.
var (
	fileIDRe = regexp.MustCompile(`\b(?:file|photo)[-_][A-Za-z0-9_-]{4,}\b`)
	uuidRe   = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	urlRe    = regexp.MustCompile(`https?://\S+`)
)

// RedactFailureNotice removes internal identifiers from a user-facing
// failure message.
func RedactFailureNotice(msg string) string {
	msg = urlRe.ReplaceAllString(msg, "[link removed]")
	msg = uuidRe.ReplaceAllString(msg, "[id removed]")
	msg = fileIDRe.ReplaceAllString(msg, "[file removed]")
	return msg
}
