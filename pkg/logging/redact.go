package logging

import "regexp"

// Redactor scrubs credential material out of log text. Upstream errors
// routinely echo request headers or URLs, so every message passes through
// here before being written.
type Redactor struct {
	patterns []*regexp.Regexp
}

const mask = "[REDACTED]"

// NewRedactor builds the default pattern set: bearer tokens, api-key
// headers and query params, and the well-known key-prefix formats of the
// providers this service talks to.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._~+/-]{8,}=*`),
			regexp.MustCompile(`(?i)(api[_-]?key["':\s=]+)[a-z0-9._-]{8,}`),
			regexp.MustCompile(`(?i)(x-api-key["':\s=]+)[a-z0-9._-]{8,}`),
			regexp.MustCompile(`(?i)([?&](?:key|token|api_key|apikey)=)[^&\s"']+`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{16,}`),
			regexp.MustCompile(`sk-or-[a-zA-Z0-9_-]{16,}`),
			regexp.MustCompile(`(?i)(authorization["':\s=]+)[^\s"',;]{8,}`),
		},
	}
}

// Redact returns text with any recognized secret replaced by a mask.
func (r *Redactor) Redact(text string) string {
	if r == nil || text == "" {
		return text
	}
	for _, p := range r.patterns {
		text = p.ReplaceAllStringFunc(text, func(match string) string {
			groups := p.FindStringSubmatch(match)
			if len(groups) > 1 && groups[1] != "" {
				return groups[1] + mask
			}
			return mask
		})
	}
	return text
}
