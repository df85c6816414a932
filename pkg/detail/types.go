// Package detail provides the on-demand drill-down lookups behind a map
// selection: historical transactions for a month and region, and live
// sale/rent listings. The same types are served by pkg/server.
package detail

// Query modes accepted by the transaction endpoint. "postcode" is used
// for point selections; the region modes match pkg/dataset.
const (
	QueryModeArea     = "area"
	QueryModeDistrict = "district"
	QueryModeSector   = "sector"
	QueryModePostcode = "postcode"
)

// TransactionQuery asks for the transactions behind one region (or
// postcode) in one month.
type TransactionQuery struct {
	Month string
	Mode  string
	Code  string
	Limit int
}

// Transaction is one recorded sale.
type Transaction struct {
	Price        int    `json:"price"`
	Date         string `json:"date"`
	Postcode     string `json:"postcode"`
	PropertyType string `json:"property_type,omitempty"`
	Street       string `json:"street,omitempty"`
	Town         string `json:"town,omitempty"`
}

// TransactionPage is the transaction endpoint's response.
type TransactionPage struct {
	Total        int           `json:"total"`
	Shown        int           `json:"shown"`
	Transactions []Transaction `json:"transactions"`
}

// ListingQuery asks for live listings within one region. Kind filters to
// "sale" or "rent"; empty means both.
type ListingQuery struct {
	Mode   string
	Code   string
	Kind   string
	Limit  int
	Offset int
}

// Listing is one live sale or rental listing.
type Listing struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	District string   `json:"district"`
	Price    *float64 `json:"price"`
	Bedrooms *int     `json:"bedrooms"`
	Address  string   `json:"address,omitempty"`
	URL      string   `json:"url,omitempty"`
	Category string   `json:"category,omitempty"`
}

// ListingSummary aggregates the matching listings.
type ListingSummary struct {
	SaleCount       int      `json:"sale_count"`
	RentCount       int      `json:"rent_count"`
	MedianSalePrice *float64 `json:"median_sale_price"`
	MedianRentPCM   *float64 `json:"median_rent_pcm"`
}

// ListingPage is the listing endpoint's response.
type ListingPage struct {
	Total    int            `json:"total"`
	Listings []Listing      `json:"listings"`
	Summary  ListingSummary `json:"summary"`
}
