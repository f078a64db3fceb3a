package listing

import "encoding/json"

// State is the text extraction status of a single image.
type State int

// Extraction states.
const (
	// NotProcessed means extraction has not run (or has not finished) for the image.
	NotProcessed State = iota
	// ProcessedNoText means extraction ran and found nothing readable.
	ProcessedNoText
	// ProcessedWithText means extraction produced text.
	ProcessedWithText
)

func (s State) String() string {
	switch s {
	case ProcessedNoText:
		return "no_text"
	case ProcessedWithText:
		return "text"
	default:
		return "pending"
	}
}

// Enrichment is the extraction outcome for one image.
type Enrichment struct {
	state State
	text  string
}

// Pending returns an enrichment that has not been processed.
func Pending() Enrichment { return Enrichment{} }

// NoText returns a processed enrichment without text.
func NoText() Enrichment { return Enrichment{state: ProcessedNoText} }

// WithText returns a processed enrichment carrying text.
// Empty text collapses to NoText.
func WithText(text string) Enrichment {
	if text == "" {
		return NoText()
	}
	return Enrichment{state: ProcessedWithText, text: text}
}

// State returns the extraction status.
func (e Enrichment) State() State { return e.state }

// Text returns the extracted text (empty unless ProcessedWithText).
func (e Enrichment) Text() string { return e.text }

// IsProcessed reports whether extraction has completed for the image.
func (e Enrichment) IsProcessed() bool { return e.state != NotProcessed }

// HasText reports whether extraction produced text.
func (e Enrichment) HasText() bool { return e.state == ProcessedWithText }

// MarshalJSON encodes NotProcessed as null, ProcessedNoText as "" and text as a string.
func (e Enrichment) MarshalJSON() ([]byte, error) {
	if e.state == NotProcessed {
		return []byte("null"), nil
	}
	return json.Marshal(e.text)
}
