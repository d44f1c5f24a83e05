package extract

// SelectorSet holds the CSS selectors used by the extractors. The
// defaults track the portal's current markup; individual selectors can
// be overridden through the site config when the markup changes.
type SelectorSet struct {
	// Card matches one listing card on a search results page.
	Card string

	// CardLink matches the anchor holding the listing URL inside a card.
	CardLink string

	// Title, Price, Location, Area, Bedrooms, Bathrooms match the card
	// summary fields.
	Title     string
	Price     string
	Location  string
	Area      string
	Bedrooms  string
	Bathrooms string

	// NextPage matches the pagination link to the following results page.
	NextPage string

	// Detail-page selectors.
	FullAddress     string
	FullDescription string
	AdvertiserName  string
	AdvertiserCode  string
	ZapCode         string
	IPTU            string
	CondoFee        string
	Suites          string
	FloorLevel      string
	CarouselImage   string
}

// DefaultSelectors returns the selector set for the portal's current
// markup.
func DefaultSelectors() SelectorSet {
	return SelectorSet{
		Card:      "div[data-cy='rp-property-cd'], li[data-cy='rp-property-cd']",
		CardLink:  "a[href*='/imovel/']",
		Title:     "h2[data-cy='rp-cardProperty-location-txt'], .card__title",
		Price:     "div[data-cy='rp-cardProperty-price-txt'] p, .card__price",
		Location:  "p[data-cy='rp-cardProperty-street-txt'], .card__address",
		Area:      "p[data-cy='rp-cardProperty-propertyArea-txt'], .card__area",
		Bedrooms:  "p[data-cy='rp-cardProperty-bedroomQuantity-txt'], .card__bedrooms",
		Bathrooms: "p[data-cy='rp-cardProperty-bathroomQuantity-txt'], .card__bathrooms",
		NextPage:  "button[aria-label='Próxima página'], a[rel='next']",

		FullAddress:     "span[data-cy='listing-address'], .address__info",
		FullDescription: "p[data-cy='listing-description'], .description__text",
		AdvertiserName:  "p[data-cy='advertiser-name'], .advertiser-info__name",
		AdvertiserCode:  "span[data-cy='advertiser-code'], .advertiser-info__code",
		ZapCode:         "span[data-cy='listing-code'], .listing-code",
		IPTU:            "span[data-cy='listing-iptu'], .price__iptu",
		CondoFee:        "span[data-cy='listing-condo-fee'], .price__condominium",
		Suites:          "p[data-cy='listing-suites'], .amenities__suites",
		FloorLevel:      "span[data-cy='listing-floor'], .amenities__floor",
		CarouselImage:   "ul[data-cy='carousel-photos'] img, .carousel__image img",
	}
}

// Override replaces named selectors from a site-config map. Unknown
// names are ignored so old config files keep working.
func (s SelectorSet) Override(overrides map[string]string) SelectorSet {
	for name, sel := range overrides {
		if sel == "" {
			continue
		}
		switch name {
		case "card":
			s.Card = sel
		case "cardLink":
			s.CardLink = sel
		case "title":
			s.Title = sel
		case "price":
			s.Price = sel
		case "location":
			s.Location = sel
		case "area":
			s.Area = sel
		case "bedrooms":
			s.Bedrooms = sel
		case "bathrooms":
			s.Bathrooms = sel
		case "nextPage":
			s.NextPage = sel
		case "fullAddress":
			s.FullAddress = sel
		case "fullDescription":
			s.FullDescription = sel
		case "advertiserName":
			s.AdvertiserName = sel
		case "advertiserCode":
			s.AdvertiserCode = sel
		case "zapCode":
			s.ZapCode = sel
		case "iptu":
			s.IPTU = sel
		case "condoFee":
			s.CondoFee = sel
		case "suites":
			s.Suites = sel
		case "floorLevel":
			s.FloorLevel = sel
		case "carouselImage":
			s.CarouselImage = sel
		}
	}
	return s
}
