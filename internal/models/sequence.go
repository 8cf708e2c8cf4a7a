package models

import "time"

// InvoiceSequence is the per-{prefix, year} allocation row behind gapless
// document numbering. Rows are locked FOR UPDATE inside the validation
// transaction; LastValue only ever grows.
type InvoiceSequence struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Prefix    string    `gorm:"size:4;not null;uniqueIndex:idx_seq_prefix_year" json:"prefix"`
	Year      int       `gorm:"not null;uniqueIndex:idx_seq_prefix_year" json:"year"`
	LastValue int       `gorm:"not null" json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}
