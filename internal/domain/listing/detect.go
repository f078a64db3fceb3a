package listing

import (
	"regexp"
	"strings"
)

var wordYearRe = regexp.MustCompile(`\b(18|19|20)\d{2}\b`)

// knownLocations is a small gazetteer of places that show up on postcard titles.
var knownLocations = []string{
	"New York", "Paris", "London", "Tokyo", "Berlin", "Rome", "Madrid",
	"USA", "France", "UK", "Japan", "Germany", "Italy", "Spain",
	"Chicago", "San Francisco", "Los Angeles", "Boston", "Washington",
	"California", "Florida", "Texas", "New Jersey",
}

// DetectYear returns the first standalone year between 1800 and 2099 in text.
func DetectYear(text string) string {
	return wordYearRe.FindString(text)
}

// DetectLocation returns the first known place name mentioned in text.
func DetectLocation(text string) string {
	lower := strings.ToLower(text)
	for _, loc := range knownLocations {
		if strings.Contains(lower, strings.ToLower(loc)) {
			return loc
		}
	}
	return ""
}
