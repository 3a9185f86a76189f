package tags

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/social-publisher/internal/models"
)

// blockMarker identifies content authored in the block editor. Block markup
// needs extra paragraph-spacing normalization after shortcode stripping.
const blockMarker = "<!-- wp:"

var (
	tagPattern       = regexp.MustCompile(`\{(.+?)\}`)
	wordLimitPattern = regexp.MustCompile(`(.*?)\((.*?)_words\)`)
	charLimitPattern = regexp.MustCompile(`(.*?)\((.*?)\)`)
	blankRunPattern  = regexp.MustCompile(`(?s)(?:(?:\r\n|\r|\n)\s*){2}`)
	breakTagPattern  = regexp.MustCompile(`(?i)<br(\s+)?/?>`)
)

// excludedFromLimits lists tags whose values must never be truncated; cutting
// them would corrupt the data (e.g. a URL would become malformed)
var excludedFromLimits = map[string]bool{
	"date":              true,
	"url":               true,
	"id":                true,
	"author_user_email": true,
	"author_user_url":   true,
}

// TagFunc computes a replacement value for an extension-registered tag
type TagFunc func(item *models.ContentItem) string

// ExpandFunc is a pluggable inline macro expansion step, applied once after
// tag substitution
type ExpandFunc func(text string) string

// Resolver substitutes {tag} placeholders in status messages with content
// item data. A resolver lives for one dispatch cycle: replacement values and
// resolved tags are memoized for its lifetime and never persisted.
type Resolver struct {
	item     *models.ContentItem
	siteName string
	expand   ExpandFunc

	extra map[string]TagFunc

	// Lazily built base tag values, and per-cycle cache of fully resolved
	// replacements keyed by the literal braced tag text
	replacements map[string]string
	resolved     map[string]string
}

// NewResolver creates a resolver bound to one content item for one dispatch cycle
func NewResolver(item *models.ContentItem, siteName string) *Resolver {
	return &Resolver{
		item:     item,
		siteName: siteName,
		extra:    make(map[string]TagFunc),
		resolved: make(map[string]string),
	}
}

// RegisterTag registers an extension tag. Registered tags take part in
// substitution like any built-in tag.
func (r *Resolver) RegisterTag(name string, fn TagFunc) {
	r.extra[name] = fn
}

// SetExpansion sets the inline macro expansion hook
func (r *Resolver) SetExpansion(fn ExpandFunc) {
	r.expand = fn
}

// ResolveText substitutes all {tag} placeholders in message with item data.
// characterLimit is the target network's maximum message length (0 means
// unlimited); it is made available to expansion hooks but the resolver never
// hard-cuts the assembled message itself.
func (r *Resolver) ResolveText(message string, characterLimit int) string {
	_ = characterLimit

	if r.replacements == nil {
		r.replacements = r.buildReplacements()
	}

	matches := tagPattern.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return message
	}

	for _, match := range matches {
		braced, inner := match[0], match[1]

		// Already resolved for this cycle (possibly by a previous status message)
		if _, ok := r.resolved[braced]; ok {
			continue
		}

		name, wordLimit, charLimit := parseTag(inner)

		replacement := r.replacements[name]

		if !excludedFromLimits[name] {
			if wordLimit > 0 {
				replacement = applyWordLimit(replacement, wordLimit)
			} else if charLimit > 0 {
				replacement = applyCharacterLimit(replacement, charLimit)
			}
		}

		r.resolved[braced] = strings.TrimSpace(replacement)
	}

	text := message
	for braced, replacement := range r.resolved {
		text = strings.ReplaceAll(text, braced, replacement)
	}

	// Inline macro expansion runs after tag substitution
	if r.expand != nil {
		text = r.expand(text)
	}

	// Remove double spaces. A single pass, and removal rather than collapsing
	// to one space; long-standing behavior that configured messages rely on.
	text = strings.ReplaceAll(text, "  ", "")

	return text
}

// parseTag splits a bracketed tag body into its base name and an optional
// word or character limit. A malformed numeric suffix means no limit.
func parseTag(inner string) (name string, wordLimit, charLimit int) {
	if m := wordLimitPattern.FindStringSubmatch(inner); m != nil {
		return m[1], absInt(m[2]), 0
	}
	if m := charLimitPattern.FindStringSubmatch(inner); m != nil {
		return m[1], 0, absInt(m[2])
	}
	return inner, 0, 0
}

// absInt parses a non-negative integer, returning 0 for anything malformed
func absInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// applyWordLimit keeps the first limit whitespace-delimited words, with no
// trailing ellipsis
func applyWordLimit(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}

// applyCharacterLimit hard-truncates text to limit bytes. No word-boundary
// awareness and no ellipsis; messages depend on this exact cut.
func applyCharacterLimit(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit]
}

// buildReplacements computes every supported base tag value for the bound item
func (r *Resolver) buildReplacements() map[string]string {
	item := r.item

	replacements := map[string]string{
		"sitename":            r.siteName,
		"title":               ExtractTitle(item),
		"excerpt":             ExtractExcerpt(item),
		"content":             ExtractContent(item),
		"date":                formatDate(item.PublishedAt),
		"url":                 strings.TrimRight(item.Permalink, "/"),
		"id":                  strconv.FormatInt(item.ID, 10),
		"author_display_name": item.AuthorName,
		"author_user_email":   item.AuthorEmail,
		"author_user_url":     item.AuthorURL,
	}

	for name, fn := range r.extra {
		replacements[name] = fn(item)
	}

	return replacements
}
