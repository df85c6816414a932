package detail

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Property categories derived from listing text, in priority order:
// when an address matches several keywords the most specific wins.
var categories = []struct {
	Name     string
	Keywords []string
}{
	{"new build", []string{"new build", "new home", "off-plan", "off plan"}},
	{"detached", []string{"detached house", "detached bungalow", "detached"}},
	{"semi-detached", []string{"semi-detached", "semi detached"}},
	{"terraced", []string{"terraced", "terrace", "end of terrace", "mid terrace"}},
	{"bungalow", []string{"bungalow"}},
	{"maisonette", []string{"maisonette", "duplex"}},
	{"flat", []string{"flat", "apartment", "studio", "penthouse"}},
	{"house", []string{"house", "cottage", "mews"}},
}

// Classifier buckets listing text into a property category using a
// multi-pattern matcher, so classifying a few thousand listings per feed
// refresh stays cheap.
type Classifier struct {
	matcher *ahocorasick.Matcher
	// label[i] is the category of dictionary entry i.
	label []string
	// rank per category name, lower is higher priority.
	rank map[string]int
}

func NewClassifier() *Classifier {
	var dict []string
	var label []string
	rank := make(map[string]int, len(categories))
	for i, cat := range categories {
		rank[cat.Name] = i
		for _, kw := range cat.Keywords {
			dict = append(dict, kw)
			label = append(label, cat.Name)
		}
	}
	return &Classifier{
		matcher: ahocorasick.NewStringMatcher(dict),
		label:   label,
		rank:    rank,
	}
}

// Classify returns the best-matching category for the given listing
// text, or "" when nothing matches.
func (c *Classifier) Classify(text string) string {
	hits := c.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	best := ""
	for _, h := range hits {
		name := c.label[h]
		if best == "" || c.rank[name] < c.rank[best] {
			best = name
		}
	}
	return best
}
