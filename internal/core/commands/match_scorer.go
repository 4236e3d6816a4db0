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
// workflow. This file defines the deterministic match scorer. Each candidate
// receives a duration score and a title-similarity score; the weighted total
// must clear a fixed threshold for the candidate to be accepted. The weights
// (0.6 duration, 0.4 title) and the 0.5 threshold are business constants, not
// configuration.
package commands

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mediareel/go-reel-match/internal/core/cor"
	"github.com/mediareel/go-reel-match/internal/core/model"
)

const (
	durationWeight = 0.6
	titleWeight    = 0.4
	matchThreshold = 0.5
)

// MatchScorer selects the best-scoring search candidate above the threshold.
type MatchScorer struct {
	cor.BaseCommand
}

// NewMatchScorer is the constructor for the MatchScorer command.
func NewMatchScorer(name string) *MatchScorer {
	return &MatchScorer{BaseCommand: *cor.NewBaseCommand(name)}
}

// IsExecutable requires an active run that produced candidates.
func (c *MatchScorer) IsExecutable(context cor.Context) bool {
	run := GetPipelineRun(context)
	return runIsActive(context) && len(run.Candidates) > 0
}

// Execute scores every candidate and keeps the running best. Replacement
// happens only on a strictly greater score, so ties resolve to the
// first-seen candidate. No candidate clearing the threshold is a soft
// failure: the run continues as a partial result.
func (c *MatchScorer) Execute(context cor.Context) {
	run := GetPipelineRun(context)
	run.State = model.StateScoring

	var refDuration *float64
	if run.Duration != nil {
		refDuration = &run.Duration.Seconds
	}
	refText := referenceText(run)

	best := selectBestMatch(run.Candidates, refDuration, refText)
	if best == nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		err := &model.FindMatchError{Reason: model.ReasonNoMatchAboveThreshold}
		slog.InfoContext(context.GetContext(), "no candidate above match threshold", "candidates", len(run.Candidates))
		run.RecordFailure(c.GetName(), err.Reason, err.Error())
		context.Add(c.GetOutputParam(), run)
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	run.BestMatch = best
	run.State = model.StateReCrawlingMatch
	context.Add(c.GetOutputParam(), run)
}

// referenceText is the text candidates are compared against: the extracted
// title when present, else the transcript.
func referenceText(run *model.PipelineRun) *string {
	if run.Source != nil && run.Source.Title != nil && len(*run.Source.Title) > 0 {
		return run.Source.Title
	}
	if run.Transcript != nil && len(run.Transcript.Text) > 0 {
		return &run.Transcript.Text
	}
	return nil
}

// selectBestMatch scores all candidates and returns the best one above the
// threshold, or nil.
func selectBestMatch(candidates []*model.SearchCandidate, refDuration *float64, refText *string) *model.MatchResult {
	var best *model.MatchResult
	for _, candidate := range candidates {
		scored := scoreCandidate(candidate, refDuration, refText)
		if best == nil || scored.MatchScore > best.MatchScore {
			best = scored
		}
	}
	if best == nil || best.MatchScore <= matchThreshold {
		return nil
	}
	return best
}

// scoreCandidate computes the weighted score for one candidate. A component
// that cannot be computed contributes 0; its weight is NOT redistributed.
func scoreCandidate(candidate *model.SearchCandidate, refDuration *float64, refText *string) *model.MatchResult {
	durationScore := 0.0
	if refDuration != nil && candidate.DurationText != nil {
		if candidateDuration := parseDurationText(*candidate.DurationText); candidateDuration != nil {
			durationScore = durationSimilarity(*refDuration, *candidateDuration)
		}
	}

	titleScore := 0.0
	if refText != nil && len(candidate.Snippet) > 0 {
		titleScore = calculateSimilarity(*refText, candidate.Snippet)
	}

	return &model.MatchResult{
		SearchCandidate: *candidate,
		DurationScore:   durationScore,
		TitleScore:      titleScore,
		MatchScore:      durationWeight*durationScore + titleWeight*titleScore,
	}
}

// parseDurationText parses the three textual duration shapes search engines
// attach to video results: bare seconds ("45" / "45s"), minutes:seconds, and
// hours:minutes:seconds. Anything else yields nil.
func parseDurationText(text string) *float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return nil
	}

	if len(parts) == 1 {
		bare := strings.TrimSuffix(parts[0], "s")
		seconds, err := strconv.ParseFloat(strings.TrimSpace(bare), 64)
		if err != nil || seconds < 0 {
			return nil
		}
		return &seconds
	}

	total := 0.0
	for _, part := range parts {
		component, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || component < 0 {
			return nil
		}
		total = total*60 + component
	}
	return &total
}

// durationSimilarity is 1 - |diff| / max(ref, candidate), floored at 0.
func durationSimilarity(ref, candidate float64) float64 {
	longest := math.Max(ref, candidate)
	if longest <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(ref-candidate)/longest)
}

// calculateSimilarity compares the reference text against a candidate
// snippet, in priority order: exact match after normalization, snippet
// substring after stripping ellipsis fringes, raw containment, and finally
// normalized Levenshtein similarity.
func calculateSimilarity(reference, snippet string) float64 {
	a := strings.ToLower(strings.TrimSpace(reference))
	b := strings.ToLower(strings.TrimSpace(snippet))
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if a == b {
		return 1.0
	}

	// Search snippets arrive fringed with ellipsis markers and punctuation;
	// strip them and check substring containment in both directions.
	stripped := strings.TrimFunc(b, func(r rune) bool {
		return !isWordRune(r)
	})
	if len(stripped) > 0 && (strings.Contains(a, stripped) || strings.Contains(stripped, a)) {
		return 1.0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	return levenshteinSimilarity(a, b)
}

func isWordRune(r rune) bool {
	return r == '_' ||
		('a' <= r && r <= 'z') ||
		('A' <= r && r <= 'Z') ||
		('0' <= r && r <= '9') ||
		r > 127 && r != '…'
}

// levenshteinSimilarity is 1 - editDistance/max(len1, len2) over runes.
func levenshteinSimilarity(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(ra, rb))/float64(longest)
}

// levenshteinDistance computes the edit distance with a two-row rolling
// table.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = minInt(
				previous[j]+1,      // deletion
				current[j-1]+1,     // insertion
				previous[j-1]+cost, // substitution
			)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

func minInt(values ...int) int {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}
