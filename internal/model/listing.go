package model

import (
	"strings"
	"time"
)

// Listing represents a single real-estate listing scraped from the portal.
// Fields are kept as raw strings because the CSV artifact is string-typed
// and the merge rules treat "empty" semantically (see IsEmptyValue).
// Parsed numeric views live in the extract package, not here.
//
// Design decision: We use a flat struct with explicit fields rather than a
// map[string]string because:
//  1. Field names are stable (they come from the portal's data model)
//  2. Typed access avoids typo bugs in the pipeline and storage layers
//  3. The CSV layer still needs a map view, provided by Fields()
type Listing struct {
	// URL is the canonical listing page URL. It is the primary key in
	// both the CSV artifact and the crawl database.
	URL string `json:"url"`

	// === Card fields (available on search result pages) ===

	// Title is the listing headline.
	Title string `json:"title,omitempty"`

	// Price is the raw advertised price text (e.g. "R$ 450.000").
	Price string `json:"price,omitempty"`

	// Location is the neighbourhood/city text from the card.
	Location string `json:"location,omitempty"`

	// Area is the raw usable-area text (e.g. "120 m²").
	Area string `json:"area,omitempty"`

	// Bedrooms is the bedroom count as displayed.
	Bedrooms string `json:"bedrooms,omitempty"`

	// Bathrooms is the bathroom count as displayed.
	Bathrooms string `json:"bathrooms,omitempty"`

	// === Deep-search fields (only available on the listing detail page) ===

	// FullAddress is the complete street address.
	FullAddress string `json:"full_address,omitempty"`

	// FullDescription is the advertiser's full description text.
	FullDescription string `json:"full_description,omitempty"`

	// AdvertiserName is the advertiser or agency name.
	AdvertiserName string `json:"advertiser_name,omitempty"`

	// AdvertiserCode is the advertiser's own reference code.
	AdvertiserCode string `json:"advertiser_code,omitempty"`

	// ZapCode is the portal's internal listing code.
	ZapCode string `json:"zap_code,omitempty"`

	// PhonePartial is the partially revealed contact phone number.
	PhonePartial string `json:"phone_partial,omitempty"`

	// HasWhatsApp records whether the advertiser offers WhatsApp contact.
	// Stored as text ("true"/"false"/"") so an unknown value is
	// distinguishable from a known negative.
	HasWhatsApp string `json:"has_whatsapp,omitempty"`

	// IPTU is the annual property tax text.
	IPTU string `json:"iptu,omitempty"`

	// CondoFee is the monthly condominium fee text.
	CondoFee string `json:"condo_fee,omitempty"`

	// Suites is the suite count as displayed.
	Suites string `json:"suites,omitempty"`

	// FloorLevel is the floor the unit is on.
	FloorLevel string `json:"floor_level,omitempty"`

	// === Images ===

	// Images contains remote image URLs discovered on the detail page.
	Images []string `json:"images,omitempty"`

	// ImagesLocal contains paths of downloaded images, relative to the
	// output directory.
	ImagesLocal []string `json:"images_local,omitempty"`

	// === Timestamps ===

	// ScrapedAt is when the card data was first collected.
	ScrapedAt time.Time `json:"scraped_at,omitempty"`

	// DeepScrapedAt is when the detail page was last scraped.
	DeepScrapedAt time.Time `json:"deep_scraped_at,omitempty"`
}

// deepSearchIndicators are the fields that are only populated by a deep
// scrape of the listing detail page. A listing with fewer than two of
// these filled still needs a deep scrape.
var deepSearchIndicators = []string{
	"full_address",
	"full_description",
	"advertiser_name",
	"advertiser_code",
	"zap_code",
	"phone_partial",
	"has_whatsapp",
	"iptu",
	"condo_fee",
	"suites",
	"floor_level",
}

// DeepSearchIndicators returns the CSV field names that indicate deep-search
// completion. The returned slice must not be modified.
func DeepSearchIndicators() []string {
	return deepSearchIndicators
}

// IsEmptyValue reports whether a scraped value carries no information.
// Besides the empty string, the placeholder texts "none", "null", and
// "false" count as empty; they appear in CSVs written by earlier versions.
func IsEmptyValue(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "" || v == "none" || v == "null" || v == "false"
}

// FilledIndicators counts how many deep-search indicator fields carry a
// non-empty value.
func (l *Listing) FilledIndicators() int {
	fields := l.Fields()
	count := 0
	for _, name := range deepSearchIndicators {
		if !IsEmptyValue(fields[name]) {
			count++
		}
	}
	return count
}

// NeedsDeepSearch reports whether the listing still needs a detail-page
// scrape. The threshold is two filled indicators: a single filled field is
// treated as noise (e.g. a card that happened to include the zap code).
func (l *Listing) NeedsDeepSearch() bool {
	return l.FilledIndicators() < 2
}

// Merge copies non-empty fields from other into l. Existing non-empty
// values are never overwritten by empty incoming values; non-empty incoming
// values always win because deep-scrape data is fresher than card data.
//
// It returns the names of fields that were updated (had a previous value)
// and added (were previously empty), for logging.
func (l *Listing) Merge(other *Listing) (updated, added []string) {
	mine := l.Fields()
	for name, incoming := range other.Fields() {
		if name == "url" || IsEmptyValue(incoming) {
			continue
		}
		previous := mine[name]
		if previous == incoming {
			continue
		}
		l.setField(name, incoming)
		if IsEmptyValue(previous) {
			added = append(added, name)
		} else {
			updated = append(updated, name)
		}
	}

	// Image slices merge by replacement: a deep scrape always sees the
	// complete carousel, so a non-empty incoming set is authoritative.
	if len(other.Images) > 0 {
		l.Images = other.Images
	}
	if len(other.ImagesLocal) > 0 {
		l.ImagesLocal = other.ImagesLocal
	}
	if !other.ScrapedAt.IsZero() && l.ScrapedAt.IsZero() {
		l.ScrapedAt = other.ScrapedAt
	}
	if !other.DeepScrapedAt.IsZero() {
		l.DeepScrapedAt = other.DeepScrapedAt
	}
	return updated, added
}

// FieldNames lists the scalar CSV field names in canonical column order.
var FieldNames = []string{
	"url",
	"title",
	"price",
	"location",
	"area",
	"bedrooms",
	"bathrooms",
	"full_address",
	"full_description",
	"advertiser_name",
	"advertiser_code",
	"zap_code",
	"phone_partial",
	"has_whatsapp",
	"iptu",
	"condo_fee",
	"suites",
	"floor_level",
	"images",
	"images_local",
	"scraped_at",
	"deep_scraped_at",
}

// Fields returns the listing as a field-name → value map, the view the CSV
// storage layer works with. Slices are joined with ", " and timestamps are
// formatted as RFC 3339; zero timestamps map to the empty string.
func (l *Listing) Fields() map[string]string {
	m := map[string]string{
		"url":              l.URL,
		"title":            l.Title,
		"price":            l.Price,
		"location":         l.Location,
		"area":             l.Area,
		"bedrooms":         l.Bedrooms,
		"bathrooms":        l.Bathrooms,
		"full_address":     l.FullAddress,
		"full_description": l.FullDescription,
		"advertiser_name":  l.AdvertiserName,
		"advertiser_code":  l.AdvertiserCode,
		"zap_code":         l.ZapCode,
		"phone_partial":    l.PhonePartial,
		"has_whatsapp":     l.HasWhatsApp,
		"iptu":             l.IPTU,
		"condo_fee":        l.CondoFee,
		"suites":           l.Suites,
		"floor_level":      l.FloorLevel,
		"images":           strings.Join(l.Images, ", "),
		"images_local":     strings.Join(l.ImagesLocal, ", "),
	}
	if !l.ScrapedAt.IsZero() {
		m["scraped_at"] = l.ScrapedAt.Format(time.RFC3339)
	} else {
		m["scraped_at"] = ""
	}
	if !l.DeepScrapedAt.IsZero() {
		m["deep_scraped_at"] = l.DeepScrapedAt.Format(time.RFC3339)
	} else {
		m["deep_scraped_at"] = ""
	}
	return m
}

// setField writes a scalar field by its CSV name. Unknown names are ignored
// so that extra CSV columns survive round-trips without breaking.
func (l *Listing) setField(name, value string) {
	switch name {
	case "url":
		l.URL = value
	case "title":
		l.Title = value
	case "price":
		l.Price = value
	case "location":
		l.Location = value
	case "area":
		l.Area = value
	case "bedrooms":
		l.Bedrooms = value
	case "bathrooms":
		l.Bathrooms = value
	case "full_address":
		l.FullAddress = value
	case "full_description":
		l.FullDescription = value
	case "advertiser_name":
		l.AdvertiserName = value
	case "advertiser_code":
		l.AdvertiserCode = value
	case "zap_code":
		l.ZapCode = value
	case "phone_partial":
		l.PhonePartial = value
	case "has_whatsapp":
		l.HasWhatsApp = value
	case "iptu":
		l.IPTU = value
	case "condo_fee":
		l.CondoFee = value
	case "suites":
		l.Suites = value
	case "floor_level":
		l.FloorLevel = value
	case "images":
		l.Images = SplitList(value)
	case "images_local":
		l.ImagesLocal = SplitList(value)
	case "scraped_at":
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			l.ScrapedAt = t
		}
	case "deep_scraped_at":
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			l.DeepScrapedAt = t
		}
	}
}

// ListingFromFields reconstructs a Listing from a CSV row map.
func ListingFromFields(fields map[string]string) *Listing {
	l := &Listing{}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		l.setField(name, value)
	}
	return l
}

// SplitList splits a comma-joined CSV cell back into a slice.
// Empty cells return nil.
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// portalHost is the host all scrapeable URLs must belong to.
const portalHost = "zapimoveis.com.br"

// searchPathMarkers identify search/browse pages as opposed to individual
// listing pages.
var searchPathMarkers = []string{"/venda/", "/aluguel/", "/busca", "/pesquisa"}

// IsListingURL reports whether rawURL points at an individual listing page.
// Listing pages live under /imovel/ on the portal host and are never search
// pages.
func IsListingURL(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" || !strings.Contains(u, portalHost) {
		return false
	}
	if !strings.Contains(u, "/imovel/") {
		return false
	}
	for _, marker := range searchPathMarkers {
		if strings.Contains(u, marker) {
			return false
		}
	}
	return true
}

// IsSearchURL reports whether rawURL points at a search results page.
func IsSearchURL(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	return strings.Contains(u, "/venda/") || strings.Contains(u, "/aluguel/")
}
