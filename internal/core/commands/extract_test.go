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

// Tests for the HTML extraction cascade: matcher ordering, caption quote
// extraction with entity decoding, author recovery, and video URL discovery.
package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sourceURL = "https://www.instagram.com/reel/Cxy123abc/"

func TestExtractTitleCascadeOrdering(t *testing.T) {
	// The embedded JSON field outranks og:title, which outranks <title>.
	page := `<html><head>
		<title>document title</title>
		<meta property="og:title" content="meta title" />
		<script>{"title":"json title"}</script>
	</head><body></body></html>`

	content := extractSourceContent(page, sourceURL)
	if assert.NotNil(t, content.Title) {
		assert.Equal(t, "json title", *content.Title)
	}
}

func TestExtractTitleFallsBackToMetaThenDocumentTitle(t *testing.T) {
	withMeta := `<html><head><title>document title</title><meta property="og:title" content="meta title" /></head></html>`
	content := extractSourceContent(withMeta, sourceURL)
	if assert.NotNil(t, content.Title) {
		assert.Equal(t, "meta title", *content.Title)
	}

	titleOnly := `<html><head><title>document title</title></head></html>`
	content = extractSourceContent(titleOnly, sourceURL)
	if assert.NotNil(t, content.Title) {
		assert.Equal(t, "document title", *content.Title)
	}
}

func TestExtractDescriptionPrefersCaptionField(t *testing.T) {
	page := `<html><head>
		<meta name="description" content="meta description" />
		<script>{"caption":"the caption","description":"the description"}</script>
	</head></html>`

	content := extractSourceContent(page, sourceURL)
	if assert.NotNil(t, content.Description) {
		assert.Equal(t, "the caption", *content.Description)
	}
}

func TestExtractEmptyPageYieldsNilFields(t *testing.T) {
	content := extractSourceContent("<html><head></head><body></body></html>", sourceURL)
	assert.Nil(t, content.Title)
	assert.Nil(t, content.Description)
	assert.Nil(t, content.Author)
	assert.Nil(t, content.VideoURL)
	assert.Equal(t, sourceURL, content.SourceURL)
}

func TestRefineCaptionExtractsQuotedSpanAndDecodesEntities(t *testing.T) {
	// Entities are decoded AFTER span extraction, and nothing is trimmed:
	// the trailing non-breaking space survives.
	refined := refineCaption(`alice on Platform: "Hello &amp; welcome&nbsp;"`)
	assert.Equal(t, "Hello & welcome\u00a0", refined)
}

func TestRefineCaptionHandlesTypographicQuotes(t *testing.T) {
	refined := refineCaption("bob on Platform: “Morning run”")
	assert.Equal(t, "Morning run", refined)
}

func TestRefineCaptionWithoutQuotesDecodesWholeString(t *testing.T) {
	assert.Equal(t, "Fish & Chips", refineCaption("Fish &amp; Chips"))
}

func TestExtractQuotedSpanStopsAtFirstClosingMarker(t *testing.T) {
	// Nested quotes are not balanced: an embedded quoted phrase truncates
	// the span at its opening marker.
	span, ok := extractQuotedSpan(`caption: "visit "The Spot" downtown"`)
	assert.True(t, ok)
	assert.Equal(t, "visit ", span)

	_, ok = extractQuotedSpan("no markers here")
	assert.False(t, ok)

	_, ok = extractQuotedSpan(`unterminated "span`)
	assert.False(t, ok)
}

func TestAuthorFromTitle(t *testing.T) {
	author := authorFromTitle("alice on Platform: some caption")
	if assert.NotNil(t, author) {
		assert.Equal(t, "alice", *author)
	}

	// A quote character before " on " means the prefix is caption text, not
	// a handle.
	assert.Nil(t, authorFromTitle(`"thoughts on life" by someone`))
	assert.Nil(t, authorFromTitle("no separator here"))
}

func TestExtractAuthorPrefersUsernameField(t *testing.T) {
	page := `<html><head>
		<title>alice on Platform: "hi"</title>
		<script>{"username":"real_author"}</script>
	</head></html>`

	content := extractSourceContent(page, sourceURL)
	if assert.NotNil(t, content.Author) {
		assert.Equal(t, "real_author", *content.Author)
	}
}

func TestVideoURLFromRenditionManifest(t *testing.T) {
	// The first rendition wins, with JSON escapes decoded.
	page := `<html><body><script>
		{"video_versions":[{"width":1080,"url":"https:\/\/cdn.example.com\/v\/hi.mp4?tok&sig=1"},{"url":"https:\/\/cdn.example.com\/v\/lo.mp4"}]}
	</script></body></html>`

	content := extractSourceContent(page, sourceURL)
	if assert.NotNil(t, content.VideoURL) {
		assert.Equal(t, "https://cdn.example.com/v/hi.mp4?tok&sig=1", *content.VideoURL)
	}
}

func TestVideoURLFallsBackToMetaTags(t *testing.T) {
	page := `<html><head><meta property="og:video" content="https://cdn.example.com/v/clip.mp4" /></head></html>`
	content := extractSourceContent(page, sourceURL)
	if assert.NotNil(t, content.VideoURL) {
		assert.Equal(t, "https://cdn.example.com/v/clip.mp4", *content.VideoURL)
	}
}

func TestVideoURLRejectsUnfetchableSchemes(t *testing.T) {
	page := `<html><head><meta property="og:video" content="blob:https://example.com/uuid" /></head></html>`
	content := extractSourceContent(page, sourceURL)
	assert.Nil(t, content.VideoURL)
}
