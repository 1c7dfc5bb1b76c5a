package models

import "time"

// DailySales represents the aggregated bills of one day, exported to the sales sheet.
type DailySales struct {
	Date      time.Time `json:"date"`
	BillCount int       `json:"bill_count"`
	Revenue   int64     `json:"revenue"`
	Lines     int       `json:"lines"`
}
