package approval

import "strings"

// Revision categories. The scorer result is a hint for the revision agent,
// not a strict classifier.
const (
	CategoryTone         = "tone"
	CategoryLength       = "length"
	CategoryCallToAction = "call_to_action"
	CategoryVisual       = "visual"
	CategoryPlatform     = "platform"
	CategoryAudience     = "audience"
	CategoryBrand        = "brand"
	CategoryContent      = "content"
)

// Scorer maps free-text revision feedback to a category.
type Scorer interface {
	Score(feedback string) string
}

// KeywordScorer counts keyword matches per category; the category with the
// most matches wins and ties fall back to a default.
type KeywordScorer struct {
	keywords map[string][]string
	tieBreak string
}

// NewKeywordScorer returns a scorer with the built-in keyword sets and the
// given tie-break category.
func NewKeywordScorer(tieBreak string) *KeywordScorer {
	return &KeywordScorer{
		tieBreak: tieBreak,
		keywords: map[string][]string{
			CategoryTone: {
				"tone", "formal", "casual", "friendly", "professional",
				"playful", "serious", "voice",
			},
			CategoryLength: {
				"shorter", "longer", "length", "concise", "brief",
				"expand", "wordy", "too long", "too short",
			},
			CategoryCallToAction: {
				"call to action", "cta", "button", "click", "sign up",
				"buy now", "urgency",
			},
			CategoryVisual: {
				"image", "visual", "color", "colour", "photo", "picture",
				"brighter", "darker", "composition", "background",
			},
			CategoryPlatform: {
				"instagram", "facebook", "tiktok", "linkedin", "twitter",
				"platform", "story format",
			},
			CategoryAudience: {
				"audience", "demographic", "younger", "older", "target",
				"gen z", "millennial",
			},
			CategoryBrand: {
				"brand", "logo", "identity", "guidelines", "on-brand",
				"off-brand",
			},
			CategoryContent: {
				"content", "copy", "text", "message", "wording",
				"rewrite", "headline",
			},
		},
	}
}

// Score returns the best-matching category for the feedback text.
func (s *KeywordScorer) Score(feedback string) string {
	text := strings.ToLower(feedback)

	best, bestCount, tied := s.tieBreak, 0, false
	for _, category := range []string{
		CategoryTone, CategoryLength, CategoryCallToAction, CategoryVisual,
		CategoryPlatform, CategoryAudience, CategoryBrand, CategoryContent,
	} {
		count := 0
		for _, kw := range s.keywords[category] {
			count += strings.Count(text, kw)
		}
		switch {
		case count > bestCount:
			best, bestCount, tied = category, count, false
		case count == bestCount && count > 0 && category != best:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return s.tieBreak
	}
	return best
}
