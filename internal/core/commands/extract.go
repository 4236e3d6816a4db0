// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands provides the concrete pipeline stages of the reel-match
// workflow. This file holds the pure extraction logic that turns rendered
// HTML into a SourceContent: an ordered cascade of matchers (embedded JSON
// fields, then meta tags, then the document title), caption quote extraction,
// and video-URL discovery from the embedded rendition manifest.
package commands

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

// renderedPage bundles the raw HTML with its parsed document so each matcher
// can pick whichever representation suits it. Doc may be nil when the HTML
// did not parse; matchers must tolerate that.
type renderedPage struct {
	html string
	doc  *goquery.Document
}

func newRenderedPage(rawHTML string) *renderedPage {
	page := &renderedPage{html: rawHTML}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err == nil {
		page.doc = doc
	}
	return page
}

// matcher is one pure extraction attempt. It returns nil when its pattern is
// absent; cascades evaluate matchers in order until the first non-nil result.
type matcher func(p *renderedPage) *string

// firstMatch runs the cascade and returns the first hit.
func firstMatch(p *renderedPage, matchers ...matcher) *string {
	for _, m := range matchers {
		if v := m(p); v != nil && len(*v) > 0 {
			return v
		}
	}
	return nil
}

var jsonFieldPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, field := range []string{"title", "description", "caption", "username"} {
		jsonFieldPatterns[field] = regexp.MustCompile(`"` + field + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	}
}

// jsonField matches a string-valued field inside the structured JSON that
// platforms embed in their pages, decoding the JSON escapes.
func jsonField(field string) matcher {
	pattern := jsonFieldPatterns[field]
	return func(p *renderedPage) *string {
		m := pattern.FindStringSubmatch(p.html)
		if m == nil {
			return nil
		}
		value := unescapeJSONValue(m[1])
		if len(strings.TrimSpace(value)) == 0 {
			return nil
		}
		return &value
	}
}

// metaTag matches the content attribute of the first meta tag satisfying any
// of the given selectors.
func metaTag(selectors ...string) matcher {
	return func(p *renderedPage) *string {
		if p.doc == nil {
			return nil
		}
		for _, selector := range selectors {
			if content, ok := p.doc.Find(selector).First().Attr("content"); ok && len(strings.TrimSpace(content)) > 0 {
				return &content
			}
		}
		return nil
	}
}

// documentTitle is the last-resort matcher: the text of the <title> element.
func documentTitle(p *renderedPage) *string {
	if p.doc == nil {
		return nil
	}
	title := strings.TrimSpace(p.doc.Find("title").First().Text())
	if len(title) == 0 {
		return nil
	}
	return &title
}

// unescapeJSONValue decodes the escape sequences of a JSON string literal
// body, including encoded slashes and \uXXXX sequences.
func unescapeJSONValue(in string) string {
	if unquoted, err := strconv.Unquote(`"` + in + `"`); err == nil {
		return unquoted
	}
	// Fall back to the handful of escapes the manifests actually use.
	r := strings.NewReplacer(`\/`, `/`, `\"`, `"`, `\\`, `\`)
	return r.Replace(in)
}

// Quote markers used by caption conventions. Opening and closing sets cover
// both straight and typographic quotes.
var (
	captionOpenMarkers  = []string{`"`, "“"}
	captionCloseMarkers = []string{`"`, "”"}
)

// extractQuotedSpan returns the content between the FIRST pair of quote
// markers in s. Extraction stops at the first closing marker: nested quotes
// inside the caption are not balanced, so an embedded quoted phrase truncates
// the result. That behavior is relied upon by existing extracted data and
// must not change without product sign-off.
func extractQuotedSpan(s string) (string, bool) {
	openIdx := -1
	openLen := 0
	for _, marker := range captionOpenMarkers {
		if idx := strings.Index(s, marker); idx >= 0 && (openIdx < 0 || idx < openIdx) {
			openIdx = idx
			openLen = len(marker)
		}
	}
	if openIdx < 0 {
		return "", false
	}

	rest := s[openIdx+openLen:]
	closeIdx := -1
	for _, marker := range captionCloseMarkers {
		if idx := strings.Index(rest, marker); idx >= 0 && (closeIdx < 0 || idx < closeIdx) {
			closeIdx = idx
		}
	}
	if closeIdx < 0 {
		return "", false
	}
	return rest[:closeIdx], true
}

// refineCaption applies the caption convention to an extracted title or
// description: when a quoted span exists, the span is the authoritative
// value. HTML entities are decoded AFTER span extraction, so an encoded
// quote inside the caption does not terminate it. No whitespace is trimmed
// from the decoded value; trailing non-breaking spaces are content.
func refineCaption(raw string) string {
	if span, ok := extractQuotedSpan(raw); ok {
		return html.UnescapeString(span)
	}
	return html.UnescapeString(raw)
}

// authorFromTitle recovers the author handle from the platform's
// "{author} on {Platform}: ..." title convention.
func authorFromTitle(title string) *string {
	idx := strings.Index(title, " on ")
	if idx <= 0 {
		return nil
	}
	author := strings.TrimSpace(title[:idx])
	if len(author) == 0 || strings.ContainsAny(author, "\"“”") {
		return nil
	}
	return &author
}

var (
	renditionManifestPattern = regexp.MustCompile(`"video_versions"\s*:\s*\[\s*\{[^\]]*?"url"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// videoURLFromPage locates the direct video URL: the first entry of the
// embedded rendition manifest wins, with its encoded slashes and ampersands
// unescaped; otherwise the video meta tags are consulted, rejecting schemes
// a plain fetch cannot retrieve (blob: and friends).
func videoURLFromPage(p *renderedPage) *string {
	if m := renditionManifestPattern.FindStringSubmatch(p.html); m != nil {
		value := unescapeJSONValue(m[1])
		if len(value) > 0 {
			return &value
		}
	}

	meta := metaTag(
		`meta[property="og:video"]`,
		`meta[property="og:video:url"]`,
		`meta[property="og:video:secure_url"]`,
		`meta[name="twitter:player:stream"]`,
	)(p)
	if meta == nil {
		return nil
	}
	lowered := strings.ToLower(strings.TrimSpace(*meta))
	if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
		return nil
	}
	return meta
}

// extractSourceContent runs the full cascade over rendered HTML and produces
// the SourceContent for the given source URL. It never fails; a page where
// nothing matched simply yields all-nil fields, and the caller decides
// whether that is fatal.
func extractSourceContent(rawHTML string, sourceURL string) *model.SourceContent {
	page := newRenderedPage(rawHTML)

	title := firstMatch(page,
		jsonField("title"),
		metaTag(`meta[property="og:title"]`, `meta[name="twitter:title"]`),
		documentTitle,
	)
	description := firstMatch(page,
		jsonField("caption"),
		jsonField("description"),
		metaTag(`meta[name="description"]`, `meta[property="og:description"]`, `meta[name="twitter:description"]`),
	)

	var author *string
	if a := firstMatch(page, jsonField("username")); a != nil {
		decoded := html.UnescapeString(*a)
		author = &decoded
	} else if title != nil {
		author = authorFromTitle(*title)
	}

	if title != nil {
		refined := refineCaption(*title)
		title = &refined
	}
	if description != nil {
		refined := refineCaption(*description)
		description = &refined
	}

	return &model.SourceContent{
		Title:       title,
		Description: description,
		Author:      author,
		VideoURL:    videoURLFromPage(page),
		SourceURL:   sourceURL,
	}
}
