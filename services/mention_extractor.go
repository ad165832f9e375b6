// services/mention_extractor.go
package services

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"mvdan.cc/xurls/v2"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

// bytes of surrounding text kept on each side of the first occurrence
const mentionContextRadius = 120

var (
	markdownLinkPattern = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	relaxedURLPattern   = xurls.Relaxed()
	imageExtensions     = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".svg", ".webp"}
)

type mentionExtractor struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

func NewMentionExtractor() MentionExtractor {
	return &mentionExtractor{patterns: make(map[string]*regexp.Regexp)}
}

// Extract counts case-insensitive, non-overlapping brand occurrences and
// collects the cited URLs of one response. Structured sources reported by the
// provider come first in the citation list.
func (e *mentionExtractor) Extract(responseText string, brands []string, structured []common.SourceRef) *Extraction {
	result := &Extraction{}

	seenBrands := make(map[string]bool, len(brands))
	for _, brand := range brands {
		if strings.TrimSpace(brand) == "" || seenBrands[brand] {
			continue
		}
		seenBrands[brand] = true

		matches := e.pattern(brand).FindAllStringIndex(responseText, -1)
		if len(matches) == 0 {
			continue
		}
		result.Mentions = append(result.Mentions, &MentionHit{
			Brand:   brand,
			Count:   len(matches),
			Context: contextWindow(responseText, matches[0][0], matches[0][1]),
		})
	}

	result.Citations = extractCitations(responseText, structured)
	return result
}

func (e *mentionExtractor) pattern(brand string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.patterns[brand]
	e.mu.RUnlock()
	if ok {
		return re
	}

	re = brandPattern(brand)
	e.mu.Lock()
	e.patterns[brand] = re
	e.mu.Unlock()
	return re
}

// brandPattern anchors a word boundary only on sides where the brand itself
// starts or ends with a word character, so "C++" and ".io" still match.
func brandPattern(brand string) *regexp.Regexp {
	trimmed := strings.TrimSpace(brand)

	var b strings.Builder
	b.WriteString(`(?i)`)
	if isWordByte(trimmed[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(trimmed))
	if isWordByte(trimmed[len(trimmed)-1]) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// contextWindow returns the text around [start, end), clipped to rune
// boundaries, with whitespace collapsed and … marking truncation.
func contextWindow(text string, start, end int) string {
	lo := start - mentionContextRadius
	if lo < 0 {
		lo = 0
	}
	for lo < start && !utf8.RuneStart(text[lo]) {
		lo++
	}

	hi := end + mentionContextRadius
	if hi > len(text) {
		hi = len(text)
	}
	for hi > end && hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi--
	}

	snippet := strings.Join(strings.Fields(text[lo:hi]), " ")
	if lo > 0 {
		snippet = "…" + snippet
	}
	if hi < len(text) {
		snippet += "…"
	}
	return snippet
}

func extractCitations(responseText string, structured []common.SourceRef) []*ExtractedCitation {
	var citations []*ExtractedCitation
	index := make(map[string]*ExtractedCitation)

	add := func(rawURL, title string) {
		cleaned, domain, ok := normalizeCitationURL(rawURL)
		if !ok {
			return
		}
		if existing, seen := index[cleaned]; seen {
			if existing.Title == nil && title != "" {
				t := title
				existing.Title = &t
			}
			return
		}
		citation := &ExtractedCitation{URL: cleaned, Domain: domain}
		if title != "" {
			t := title
			citation.Title = &t
		}
		index[cleaned] = citation
		citations = append(citations, citation)
	}

	for _, src := range structured {
		add(src.URL, strings.TrimSpace(src.Title))
	}

	titles := make(map[string]string)
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(responseText, -1) {
		if cleaned, _, ok := normalizeCitationURL(m[2]); ok {
			if _, exists := titles[cleaned]; !exists {
				titles[cleaned] = strings.TrimSpace(m[1])
			}
		}
	}

	for _, match := range relaxedURLPattern.FindAllString(responseText, -1) {
		cleaned, _, ok := normalizeCitationURL(match)
		if !ok {
			continue
		}
		add(match, titles[cleaned])
	}
	return citations
}

// normalizeCitationURL cleans a URL the same way for every source: scheme
// added when missing, www. and utm_* parameters removed, trailing slash
// trimmed. Images and hosts without a dot are rejected.
func normalizeCitationURL(raw string) (string, string, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, ".,;:!?")
	if raw == "" {
		return "", "", false
	}
	if !strings.Contains(raw, "://") {
		if strings.Contains(raw, "@") {
			return "", "", false // e-mail address
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" || !strings.Contains(host, ".") {
		return "", "", false
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	pathLower := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(pathLower, ext) {
			return "", "", false
		}
	}

	q := u.Query()
	for param := range q {
		if strings.HasPrefix(strings.ToLower(param), "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return strings.TrimRight(u.String(), "/"), host, true
}
