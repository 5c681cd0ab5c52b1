// Package types defines shared types used across the application.
package types

import "math"

// Product is a listing of the target brand found on a results page.
type Product struct {
	GlobalPosition int    `json:"global_position"`
	Brand          string `json:"brand"`
	Name           string `json:"name"`
	PriceText      string `json:"price_text"`
	PriceNumeric   *int   `json:"price_numeric"`
	Page           int    `json:"page"`
}

// RunStats aggregates the results of a single run.
type RunStats struct {
	ProductsFound  int `json:"products_found"`
	PagesProcessed int `json:"pages_processed"`
	TotalPrice     int `json:"total_price"`
	PriceCount     int `json:"price_count"`
	AveragePrice   int `json:"average_price"`
}

// AddProduct counts p and, if it carries a positive price, folds the price
// into the average.
func (s *RunStats) AddProduct(p Product) {
	s.ProductsFound++
	if p.PriceNumeric == nil || *p.PriceNumeric <= 0 {
		return
	}
	s.TotalPrice += *p.PriceNumeric
	s.PriceCount++
	s.AveragePrice = int(math.Round(float64(s.TotalPrice) / float64(s.PriceCount)))
}
