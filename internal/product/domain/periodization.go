package domain

import "time"

// Periodization is one row of the product reference table. ProductName is
// stored normalized (lowercased, trimmed) and is the lookup key for period
// resolution and category breakdowns.
type Periodization struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	ProductName  string    `json:"product_name" gorm:"type:text;not null;uniqueIndex"`
	Category     string    `json:"category" gorm:"type:text"`
	PeriodMonths int       `json:"period_months" gorm:"not null;default:1"`
	Recurring    bool      `json:"recurring" gorm:"not null"`
	Manual       bool      `json:"manual" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Periodization) TableName() string { return "product_periodizations" }
