// Package catalog exposes the read-side product lookups the posting
// coordinators need. Catalog management itself lives upstream; posting only
// requires knowing that a product exists, belongs to the store and is
// active before any ledger write happens.
package catalog

// Product is the catalog record relevant to posting.
type Product struct {
	ID      int64  `json:"id"`
	StoreID int64  `json:"store_id"`
	SKU     string `json:"sku"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
}
