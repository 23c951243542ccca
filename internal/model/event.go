// Package model defines domain entities for the application.
package model

import "time"

// Event represents a single blog page-view (the analytics fact record).
// Events are immutable once created; dimension values (blog title, author,
// country) are denormalized onto the row so aggregation never needs a join.
type Event struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	// Blog reference
	BlogID    int64  `json:"blog_id"`
	BlogTitle string `json:"blog_title"`

	// Denormalized dimensions
	AuthorUsername string `json:"author_username"`
	CountryCode    string `json:"country_code,omitempty"` // ISO 3166-1 alpha-2

	// Optional viewer identity
	ViewerID string `json:"viewer_id,omitempty"`

	// Privacy-safe visitor identification
	VisitorHash string `json:"visitor_hash,omitempty"` // SHA256(IP + UA + daily_salt)[0:16]

	// Timestamps
	ViewedAt  time.Time `json:"viewed_at"`  // Event timestamp
	CreatedAt time.Time `json:"created_at"` // DB insertion time
}

// DailySummary is a pre-aggregated rollup row keyed by (date, country, author).
// Rows are bulk-replaced for a date range by the rollup job; the query path
// treats them as read-only. The contract the fast path depends on: for a fully
// rolled-up range, the sum of TotalViews equals the count of matching Events.
type DailySummary struct {
	Date           time.Time `json:"date"` // UTC date (time component zeroed)
	CountryCode    string    `json:"country_code"`
	AuthorUsername string    `json:"author_username"`

	TotalViews  int64 `json:"total_views"`
	UniqueBlogs int64 `json:"unique_blogs"`
}

// Point is a single aggregation result row. Every analytics operation returns
// an ordered list of these; the meaning of Y and Z depends on the operation.
type Point struct {
	X string  `json:"x"` // Grouping key (or bucket label)
	Y int64   `json:"y"` // Primary metric
	Z float64 `json:"z"` // Secondary metric (count or growth percent)
}
