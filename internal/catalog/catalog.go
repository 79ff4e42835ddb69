// Package catalog holds the item/part data model produced by the scraper
// and the naming rules that map items onto the on-disk ROM layout.
package catalog

import "time"

// PartInfo describes one downloadable unit of an item (one disc).
type PartInfo struct {
	Label       string // e.g. "Disc 1"
	MediaID     string // the site's opaque download key
	DownloadURL string
	Size        int64 // 0 when unknown
}

// ItemRecord is one catalog entry with its metadata and parts. Records are
// immutable once emitted by the scraper.
type ItemRecord struct {
	Title       string
	DetailURL   string
	Category    string
	Parts       []PartInfo
	ScrapedAt   time.Time
	Rating      *float64 // 0-100 scale, nil when the page has no rating
	RatingCount *int
}
