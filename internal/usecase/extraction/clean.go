package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NoTextSentinel is the reply the vision model is instructed to give for images without text.
const NoTextSentinel = "NO_TEXT_FOUND"

const minTextLength = 3

// Phrasings models use instead of the sentinel. Matched against lowercased text.
var noTextPatterns = compileAll(
	`no text (found|detected|visible|present|identified)`,
	`(cannot|couldn't|could not|unable to) (detect|find|see|identify|read) (any )?text`,
	`(no|not) (any|a single)? (visible|readable|detectable|recognizable) text`,
	`the image (does not|doesn't) contain any (visible|readable) text`,
	`i (can't|cannot|am unable to) (read|see|detect|extract|find) (any )?text`,
	`(i'm sorry|unfortunately)`,
	`i don't see any text`,
	`there is no (text|writing)`,
	`(image|postcard) (contains|has) no text`,
	`not able to extract`,
	`not clear enough`,
)

var (
	codeFenceRe     = regexp.MustCompile("(?s)```.*?```")
	prefixRe        = regexp.MustCompile(`^(Text:|The text reads:|Visible text:|Postcard text:|The postcard shows:)`)
	annotationRe    = regexp.MustCompile(`\[.*?\]|\(.*?\)`)
	noteLineRe      = regexp.MustCompile(`(?m)Note:.*?$`)
	manyNewlinesRe  = regexp.MustCompile(`\n{3,}`)
	commentaryRe    = regexp.MustCompile(`(?i)(\[|\(|\{\s*)(note|comment|text is|appears to be|might be|seems to be|text quality|partially visible).*?(\]|\)|\})\s*`)
	apologyRe       = regexp.MustCompile(`(?i)(I'm sorry|Unfortunately).*?(visible|available|detected|found|present)\.?`)
	blankLineRunsRe = regexp.MustCompile(`\n{2,}`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// CleanResponse turns a raw model reply into transcribed text.
// The boolean is false when the reply means the image has no readable text.
func CleanResponse(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if strings.EqualFold(text, NoTextSentinel) {
		return "", false
	}

	lower := strings.ToLower(text)
	for _, re := range noTextPatterns {
		if re.MatchString(lower) {
			return "", false
		}
	}

	text = codeFenceRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(prefixRe.ReplaceAllString(text, ""))
	text = annotationRe.ReplaceAllString(text, "")
	text = noteLineRe.ReplaceAllString(text, "")
	text = manyNewlinesRe.ReplaceAllString(text, "\n\n")
	text = commentaryRe.ReplaceAllString(text, "")
	text = apologyRe.ReplaceAllString(text, "")

	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}

	if utf8.RuneCountInString(text) < minTextLength {
		return "", false
	}
	return text, true
}

// normalizeLineBreaks collapses blank lines before text is stored on a listing.
func normalizeLineBreaks(text string) string {
	return strings.TrimSpace(blankLineRunsRe.ReplaceAllString(text, "\n"))
}
