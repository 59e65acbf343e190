// Package validate implements the transport boundary's input contract,
// grounded on original_source/agents/security/validation.py and
// sanitization.py: URL/SSRF checks, competitor dedup+cap, language
// whitelist, and a prompt-injection pattern scan over free-text fields.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// MaxCompetitors caps the number of competitor URLs accepted per request.
const MaxCompetitors = 10

// MaxIndustryContextLen caps the free-text industry_context field.
const MaxIndustryContextLen = 500

var allowedLanguages = map[string]bool{"fi": true, "en": true, "sv": true}

// injectionPatterns is a reduced, Go-regexp-safe rendering of
// sanitization.py's PromptSanitizer.INJECTION_PATTERNS: the instruction-
// override, role-manipulation, jailbreak, and special-token families that
// matter for a short industry_context field. The SQL/base64 families don't
// apply here since this text never reaches a query or decoder.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|prior\s+|previous\s+)?instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+|prior\s+|previous\s+)?instructions?`),
	regexp.MustCompile(`(?i)forget\s+(all\s+|prior\s+|previous\s+)?instructions?`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?(you\s+(are|were)\s+)?`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`<\|(system|user|assistant|im_start|im_end|endoftext)\|>`),
	regexp.MustCompile(`\[INST\]|\[/INST\]`),
	regexp.MustCompile(`<<SYS>>|<</SYS>>`),
}

// Error reports which field of an analysis request failed validation.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Field, e.Message)
}

func fieldErr(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Request is the raw, transport-facing analysis request body.
type Request struct {
	URL             string
	CompetitorURLs  []string
	Language        string
	IndustryContext string
	UserID          string
}

// Normalized is a Request after validation and normalization: the URL has
// a scheme, competitor URLs are deduplicated and capped, and the language
// is lower-cased.
type Normalized struct {
	URL             string
	CompetitorURLs  []string
	Language        string
	IndustryContext string
	UserID          string
}

// AnalysisRequest validates and normalizes req, returning the first field
// error encountered.
func AnalysisRequest(req Request) (Normalized, error) {
	mainURL, err := normalizeURL(req.URL)
	if err != nil {
		return Normalized{}, fieldErr("url", "%v", err)
	}
	if err := checkPublicHostname(mainURL); err != nil {
		return Normalized{}, fieldErr("url", "%v", err)
	}

	lang := strings.ToLower(strings.TrimSpace(req.Language))
	if lang == "" {
		lang = "fi"
	}
	if !allowedLanguages[lang] {
		return Normalized{}, fieldErr("language", "must be one of fi, en, sv")
	}

	mainHost := mainURL.Hostname()
	competitors := make([]string, 0, len(req.CompetitorURLs))
	seen := map[string]bool{mainHost: true}
	for _, raw := range req.CompetitorURLs {
		if len(competitors) >= MaxCompetitors {
			break
		}
		u, err := normalizeURL(raw)
		if err != nil {
			continue // skip invalid competitor URLs silently, per the original
		}
		if err := checkPublicHostname(u); err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if seen[host] {
			continue
		}
		seen[host] = true
		competitors = append(competitors, u.String())
	}

	ctx := strings.TrimSpace(req.IndustryContext)
	if len(ctx) > MaxIndustryContextLen {
		ctx = ctx[:MaxIndustryContextLen]
	}
	if m := findInjection(ctx); m != "" {
		return Normalized{}, fieldErr("industry_context", "contains a disallowed pattern: %s", m)
	}

	userID := strings.TrimSpace(req.UserID)
	if userID != "" {
		for _, r := range userID {
			if !(r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return Normalized{}, fieldErr("user_id", "must contain only letters, digits, dash and underscore")
			}
		}
		if len(userID) > 100 {
			userID = userID[:100]
		}
	}

	return Normalized{
		URL:             mainURL.String(),
		CompetitorURLs:  competitors,
		Language:        lang,
		IndustryContext: ctx,
		UserID:          userID,
	}, nil
}

func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("must not be empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("must use http or https")
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("must have a hostname")
	}
	if !strings.Contains(u.Hostname(), ".") {
		return nil, fmt.Errorf("must have a domain with a TLD")
	}
	return u, nil
}

// checkPublicHostname rejects localhost, link-local, RFC1918, and cloud
// metadata addresses, mirroring validation.py's blocked_patterns list but
// checked against the parsed/resolved IP rather than string prefixes where
// possible.
func checkPublicHostname(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "metadata.google.internal" {
		return fmt.Errorf("cannot point to an internal address")
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname, not a literal IP: resolve it so a DNS name that
		// points at an internal address is still caught.
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil // unresolvable is not this function's concern
		}
		ip = ips[0]
	}
	if isBlockedIP(ip) {
		return fmt.Errorf("cannot point to an internal/local address")
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return true
	}
	return false
}

func findInjection(s string) string {
	for _, p := range injectionPatterns {
		if p.MatchString(s) {
			return p.String()
		}
	}
	return ""
}
