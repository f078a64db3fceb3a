package chi

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/domain/search/request"
)

// errorCode is the machine-readable error kind in error responses.
type errorCode string

const (
	codeBadRequest       errorCode = "bad_request"
	codeNotFound         errorCode = "not_found"
	codeMethodNotAllowed errorCode = "method_not_allowed"
	codeValidationFailed errorCode = "validation_failed"
	codeNotConfigured    errorCode = "not_configured"
	codeImageDownload    errorCode = "image_download_failed"
	codePlaceholderImage errorCode = "placeholder_image"
	codeProviderError    errorCode = "provider_error"
	codeInternalError    errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// searchFilters is bound as given. Normalization (unknown sort order, long
// location) happens in filter.New.
type searchFilters struct {
	YearMin  *int     `json:"year_min"`
	YearMax  *int     `json:"year_max"`
	Location *string  `json:"location"`
	PriceMin *float64 `json:"price_min"`
	PriceMax *float64 `json:"price_max"`
	SortBy   string   `json:"sort_by"`
}

type searchRequest struct {
	Query   string         `json:"query" validate:"required,max=512"`
	Filters *searchFilters `json:"filters"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
}

type searchResponse struct {
	Results        []listing.View  `json:"results"`
	Total          int             `json:"total"`
	Page           int             `json:"page"`
	Limit          int             `json:"limit"`
	EnhancedQuery  *string         `json:"enhanced_query"`
	FiltersApplied *filter.Applied `json:"filters_applied"`
}

type suggestResponse struct {
	Suggestions   []string `json:"suggestions"`
	OriginalQuery string   `json:"original_query"`
}

type extractionRequest struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

type extractionResponse struct {
	Status        string `json:"status"`
	ImageURL      string `json:"image_url"`
	ExtractedText string `json:"extracted_text"`
	TextLength    int    `json:"text_length"`
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

type welcomeResponse struct {
	Message string `json:"message"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into one client-facing line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "url":
			msgs = append(msgs, fe.Field()+" must be a valid URL")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// searchRequestFromQuery binds the GET search parameters. The query-string
// variant always carries a filter set, possibly empty.
func searchRequestFromQuery(q url.Values) (searchRequest, error) {
	var (
		req         = searchRequest{Filters: &searchFilters{}}
		f           = req.Filters
		sortBy      *string
		page, limit *int
	)

	// Optional parameters bind through a pointer to a pointer.
	params := []struct {
		name     string
		required bool
		dest     any
	}{
		{"query", true, &req.Query},
		{"year_min", false, &f.YearMin},
		{"year_max", false, &f.YearMax},
		{"location", false, &f.Location},
		{"price_min", false, &f.PriceMin},
		{"price_max", false, &f.PriceMax},
		{"sort_by", false, &sortBy},
		{"page", false, &page},
		{"limit", false, &limit},
	}
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, p.required, p.name, q, p.dest); err != nil {
			return searchRequest{}, fmt.Errorf("invalid parameter %s", p.name)
		}
	}

	if sortBy != nil {
		f.SortBy = *sortBy
	}
	if page != nil {
		req.Page = *page
	}
	if limit != nil {
		req.Limit = *limit
	}
	return req, nil
}

func (r searchRequest) toDomain() (request.Request, error) {
	var filters *filter.Filters
	if r.Filters != nil {
		filters = filter.New(filter.Params{
			YearMin:  r.Filters.YearMin,
			YearMax:  r.Filters.YearMax,
			Location: r.Filters.Location,
			PriceMin: r.Filters.PriceMin,
			PriceMax: r.Filters.PriceMax,
			SortBy:   filter.SortBy(r.Filters.SortBy),
		})
	}
	return request.New(r.Query, filters, r.Page, r.Limit)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
