package detail

import "testing"

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text string
		want string
	}{
		{"2 bedroom flat for sale in Pimlico", "flat"},
		{"Stunning penthouse apartment with river views", "flat"},
		{"3 bed semi-detached house", "semi-detached"},
		{"Semi Detached family home", "semi-detached"},
		{"Charming end of terrace cottage", "terraced"},
		{"Detached bungalow with large garden", "detached"},
		{"Brand new build apartment, off-plan", "new build"},
		{"Spacious maisonette over two floors", "maisonette"},
		{"Victorian MEWS property", "house"},
		{"Commercial unit to let", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}

// When several categories match, the more specific one wins regardless
// of keyword order in the text.
func TestClassifyPriority(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text string
		want string
	}{
		{"detached house", "detached"},
		{"house, detached", "detached"},
		{"new build detached house", "new build"},
		{"terraced house with studio flat annex", "terraced"},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}
