package postcards

import "github.com/cardscout/postcards/internal/domain/listing"

// ExtractionState reports whether image text was read from a picture.
type ExtractionState string

// Extraction states.
const (
	// Pending means the image has not been processed yet.
	Pending ExtractionState = "pending"
	// NoText means the image was processed and carries no readable text.
	NoText ExtractionState = "no_text"
	// HasText means text was read from the image.
	HasText ExtractionState = "text"
)

// ImageText is the extraction outcome for one image.
type ImageText struct {
	State ExtractionState
	Text  string
}

// Listing is a postcard offer from one marketplace.
type Listing struct {
	Source           string
	Title            string
	ImageURL         string
	AdditionalImages []string
	Price            float64
	Currency         string
	URL              string
	AffiliateURL     string
	Description      string
	Date             string
	Location         string

	ImageText           ImageText
	AdditionalImageText []ImageText
}

func fromView(v listing.View) Listing {
	l := Listing{
		Source:           v.Source,
		Title:            v.Title,
		ImageURL:         v.ImageURL,
		AdditionalImages: v.AdditionalImages,
		Price:            v.Price,
		Currency:         v.Currency,
		URL:              v.Link,
		AffiliateURL:     v.AffiliateLink,
		Description:      v.Description,
		Date:             v.Date,
		Location:         v.Location,
		ImageText:        ImageText{State: Pending},
	}
	if v.ImageText != nil {
		l.ImageText = fromEnrichment(*v.ImageText)
	}
	if len(v.AdditionalImageText) > 0 {
		l.AdditionalImageText = make([]ImageText, len(v.AdditionalImageText))
		for i, e := range v.AdditionalImageText {
			l.AdditionalImageText[i] = fromEnrichment(e)
		}
	}
	return l
}

func fromEnrichment(e listing.Enrichment) ImageText {
	switch {
	case e.HasText():
		return ImageText{State: HasText, Text: e.Text()}
	case e.IsProcessed():
		return ImageText{State: NoText}
	default:
		return ImageText{State: Pending}
	}
}
