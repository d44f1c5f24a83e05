package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zapscraper/internal/model"
)

// ListingExtractor reads deep-search fields from a listing detail page.
type ListingExtractor struct {
	selectors SelectorSet
}

// NewListingExtractor creates a detail-page extractor with the given
// selectors.
func NewListingExtractor(selectors SelectorSet) *ListingExtractor {
	return &ListingExtractor{selectors: selectors}
}

// Extract parses a detail page into a listing carrying the deep-search
// fields. CSS selectors are tried first; the JSON-LD structured data
// block fills any fields the selectors missed.
func (e *ListingExtractor) Extract(page *model.Page) (*model.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Raw))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	listing := &model.Listing{
		URL:             page.URL,
		FullAddress:     CleanText(doc.Find(e.selectors.FullAddress).First().Text()),
		FullDescription: CleanText(doc.Find(e.selectors.FullDescription).First().Text()),
		AdvertiserName:  CleanText(doc.Find(e.selectors.AdvertiserName).First().Text()),
		AdvertiserCode:  cleanCode(doc.Find(e.selectors.AdvertiserCode).First().Text()),
		ZapCode:         cleanCode(doc.Find(e.selectors.ZapCode).First().Text()),
		IPTU:            CleanText(doc.Find(e.selectors.IPTU).First().Text()),
		CondoFee:        CleanText(doc.Find(e.selectors.CondoFee).First().Text()),
		Suites:          CleanText(doc.Find(e.selectors.Suites).First().Text()),
		FloorLevel:      CleanText(doc.Find(e.selectors.FloorLevel).First().Text()),
		DeepScrapedAt:   time.Now(),
	}

	listing.Images = e.carouselImages(doc, base)
	e.applyJSONLD(doc, listing)

	// WhatsApp contact is advertised through a dedicated button.
	if doc.Find("button[data-cy='whatsapp-btn'], a[href*='wa.me'], a[href*='whatsapp']").Length() > 0 {
		listing.HasWhatsApp = "true"
	}

	return listing, nil
}

// carouselImages collects unique image URLs from the photo carousel.
// Lazy-loaded images keep the real URL in data-src or srcset.
func (e *ListingExtractor) carouselImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var images []string

	doc.Find(e.selectors.CarouselImage).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			src, _ = img.Attr("data-src")
		}
		if src == "" {
			if srcset, ok := img.Attr("srcset"); ok {
				src = firstSrcset(srcset)
			}
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		abs := resolveURL(base, src)
		if !seen[abs] {
			seen[abs] = true
			images = append(images, abs)
		}
	})
	return images
}

// firstSrcset returns the first URL in a srcset attribute.
func firstSrcset(srcset string) string {
	first := strings.Split(srcset, ",")[0]
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// jsonLD mirrors the subset of the schema.org block the portal embeds.
type jsonLD struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     struct {
		StreetAddress   string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressRegion   string `json:"addressRegion"`
	} `json:"address"`
	Image []string `json:"image"`
}

// applyJSONLD fills empty fields from the page's JSON-LD block.
// Selector-extracted values always win; structured data only backfills.
func (e *ListingExtractor) applyJSONLD(doc *goquery.Document, listing *model.Listing) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var ld jsonLD
		if err := json.Unmarshal([]byte(script.Text()), &ld); err != nil {
			return true // try the next block
		}
		switch ld.Type {
		case "Product", "Residence", "Apartment", "House", "SingleFamilyResidence", "RealEstateListing":
		default:
			return true
		}

		if listing.Title == "" {
			listing.Title = CleanText(ld.Name)
		}
		if listing.FullDescription == "" {
			listing.FullDescription = CleanText(ld.Description)
		}
		if listing.FullAddress == "" {
			parts := make([]string, 0, 3)
			for _, p := range []string{ld.Address.StreetAddress, ld.Address.AddressLocality, ld.Address.AddressRegion} {
				if p = CleanText(p); p != "" {
					parts = append(parts, p)
				}
			}
			listing.FullAddress = strings.Join(parts, ", ")
		}
		if len(listing.Images) == 0 && len(ld.Image) > 0 {
			listing.Images = ld.Image
		}
		return false
	})
}

// cleanCode extracts the listing code from texts like "Código: ZAP123".
func cleanCode(text string) string {
	text = CleanText(text)
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}
