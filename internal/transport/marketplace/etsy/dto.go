package etsy

type searchResponse struct {
	Count   int      `json:"count"`
	Results []result `json:"results"`
}

type result struct {
	ListingID   int64   `json:"listing_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Price       money   `json:"price"`
	Images      []image `json:"images"`
}

// money is an Etsy amount expressed in minor units.
type money struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

func (m money) value() float64 {
	d := m.Divisor
	if d <= 0 {
		d = defaultCentDivisor
	}
	return float64(m.Amount) / float64(d)
}

type image struct {
	URL570xN string `json:"url_570xN"`
}
