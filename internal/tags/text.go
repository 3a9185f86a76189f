package tags

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/social-publisher/internal/models"
)

var shortcodePattern = regexp.MustCompile(`\[[^\[\]]*\]`)

// ExtractTitle returns the item title with shortcodes and markup stripped and
// HTML entities decoded
func ExtractTitle(item *models.ContentItem) string {
	return stripTags(stripShortcodes(item.Title))
}

// ExtractExcerpt returns the item excerpt, falling back to the body when the
// item has no excerpt, with shortcodes and markup stripped and entities decoded
func ExtractExcerpt(item *models.ContentItem) string {
	excerpt := item.Excerpt
	if excerpt == "" {
		excerpt = item.Content
	}

	excerpt = stripShortcodes(excerpt)
	excerpt = stripTags(excerpt)

	return strings.TrimSpace(excerpt)
}

// ExtractContent returns the item body with shortcodes and markup stripped and
// entities decoded. Block-editor content additionally has runs of blank lines
// collapsed to a single blank line and <br> markup converted to newlines,
// since stripping block comment wrappers leaves double or triple breaklines.
func ExtractContent(item *models.ContentItem) string {
	content := stripShortcodes(item.Content)

	if strings.Contains(item.Content, blockMarker) {
		content = blankRunPattern.ReplaceAllString(content, "\n\n")
		content = breakTagPattern.ReplaceAllString(content, "\n")
	}

	content = stripTags(content)

	return strings.TrimSpace(content)
}

// stripShortcodes removes [shortcode] style inline markers
func stripShortcodes(s string) string {
	return shortcodePattern.ReplaceAllString(s, "")
}

// stripTags removes HTML markup and decodes entities, keeping text nodes only
func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

// formatDate renders the {date} tag, e.g. "03rd April 2025"
func formatDate(t time.Time) string {
	day := t.Day()
	return fmt.Sprintf("%02d%s %s %d", day, ordinalSuffix(day), t.Month().String(), t.Year())
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
