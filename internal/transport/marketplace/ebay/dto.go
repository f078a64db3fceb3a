package ebay

import "strings"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []itemSummary `json:"itemSummaries"`
	Warnings      []apiWarning  `json:"warnings"`
}

type apiWarning struct {
	ErrorID  int    `json:"errorId"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

type image struct {
	ImageURL string `json:"imageUrl"`
}

type money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type itemLocation struct {
	City            string `json:"city"`
	StateOrProvince string `json:"stateOrProvince"`
	Country         string `json:"country"`
}

func (l itemLocation) label() string {
	var parts []string
	for _, p := range []string{l.City, l.StateOrProvince, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type itemSummary struct {
	ItemID                string       `json:"itemId"`
	Title                 string       `json:"title"`
	Subtitle              string       `json:"subtitle"`
	Image                 image        `json:"image"`
	AdditionalImages      []image      `json:"additionalImages"`
	GalleryPlusPictureURL string       `json:"galleryPlusPictureURL"`
	Price                 money        `json:"price"`
	ItemWebURL            string       `json:"itemWebUrl"`
	ItemLocation          itemLocation `json:"itemLocation"`
}

// additionalImages returns the extra photos, falling back to the gallery-plus
// picture when the item lists none.
func (it itemSummary) additionalImages() []string {
	var out []string
	for _, img := range it.AdditionalImages {
		if img.ImageURL != "" {
			out = append(out, img.ImageURL)
		}
	}
	if len(out) > 0 {
		return out
	}
	if it.GalleryPlusPictureURL != "" {
		return []string{it.GalleryPlusPictureURL}
	}
	return nil
}
