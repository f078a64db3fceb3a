// Package postcards provides an embeddable client that searches vintage
// postcard listings across eBay, Etsy and HipPostcard and reads the text
// printed on the postcard images with a vision model.
//
//	client, _ := postcards.New(ctx,
//	    postcards.WithEtsy(os.Getenv("ETSY_API_KEY"), "", ""),
//	    postcards.WithHipPostcard(""),
//	    postcards.WithOpenAI(os.Getenv("OPENAI_API_KEY"), ""),
//	)
//	defer client.Close()
//
//	res, _ := client.Search(ctx, "paris eiffel tower",
//	    postcards.YearRange(1900, 1930),
//	    postcards.SortBy(postcards.SortPriceAsc),
//	)
//	_ = res.Wait(ctx) // optional: let background extraction finish
//	for _, l := range res.Listings() {
//	    fmt.Println(l.Title, l.ImageText.Text)
//	}
package postcards
