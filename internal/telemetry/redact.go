package telemetry

import "regexp"

const redactedMark = "[REDACTED]"

// secretPatterns matches secret-bearing substrings in free-form strings.
// Templates keep the leading capture so the line still shows what kind of
// secret was scrubbed.
var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// key/value assignments for api keys, auth tokens and secrets
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)\s*[:=]\s*"?[A-Za-z0-9_\-./+=]{16,}"?`), "${1}" + redactedMark},
	// Authorization: Bearer <token>
	{regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9_\-./+=]{16,}`), "${1}" + redactedMark},
	// telegram bot tokens: numeric id, colon, 35 char secret
	{regexp.MustCompile(`\b\d{8,10}:[A-Za-z0-9_-]{35}\b`), redactedMark},
	// token/secret assignments holding a UUID
	{regexp.MustCompile(`(?i)(token|secret)\s*[:=]\s*"?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}"?`), "${1}" + redactedMark},
}

// redactSecrets scrubs secret material from s, leaving ordinary text alone.
func redactSecrets(s string) string {
	if s == "" {
		return s
	}
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}
