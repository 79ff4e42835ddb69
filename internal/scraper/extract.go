package scraper

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	itemLinkPattern  = regexp.MustCompile(`^/vault/(\d+)$`)
	pageTitlePattern = regexp.MustCompile(`^The Vault:\s*(.+?)\s*\([^)]+\)\s*$`)
	mediaIDPattern   = regexp.MustCompile(`"ID":\s*(\d+)`)
	scorePattern     = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	votesPattern     = regexp.MustCompile(`\((\d+)\s+votes?\)`)
)

// listingLinks returns the absolute detail URLs of every valid item link on
// a listing page. Valid links live in the listing table and point at
// /vault/<numeric id>.
func listingLinks(doc *goquery.Document, origin string) []string {
	seen := make(map[string]struct{})

	var urls []string

	doc.Find("table.hovertable a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !itemLinkPattern.MatchString(href) {
			return
		}

		u := origin + href
		if _, ok := seen[u]; ok {
			return
		}

		seen[u] = struct{}{}
		urls = append(urls, u)
	})

	return urls
}

// titleStrategy is one independent way of pulling the item title out of a
// detail page. Strategies are tried in order; the first hit wins.
type titleStrategy func(*goquery.Document) (string, bool)

var titleStrategies = []titleStrategy{
	titleFromCanvas,
	titleFromOpenGraph,
	titleFromPageTitle,
	titleFromHeading,
}

func extractTitle(doc *goquery.Document) (string, bool) {
	for _, strategy := range titleStrategies {
		if title, ok := strategy(doc); ok {
			return title, true
		}
	}

	return "", false
}

// titleFromCanvas decodes the base64 title payload the site embeds in the
// canvas element to frustrate scraping.
func titleFromCanvas(doc *goquery.Document) (string, bool) {
	encoded, ok := doc.Find("canvas#canvas").Attr("data-v")
	if !ok {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", false
	}

	title := strings.TrimSpace(string(decoded))

	return title, title != ""
}

func titleFromOpenGraph(doc *goquery.Document) (string, bool) {
	content, ok := doc.Find(`meta[property="og:title"]`).Attr("content")
	if !ok {
		return "", false
	}

	title := strings.TrimSpace(content)

	return title, title != ""
}

// titleFromPageTitle parses the "The Vault: <Title> (<System>)" page title.
func titleFromPageTitle(doc *goquery.Document) (string, bool) {
	m := pageTitlePattern.FindStringSubmatch(strings.TrimSpace(doc.Find("title").First().Text()))
	if m == nil {
		return "", false
	}

	return m[1], true
}

func titleFromHeading(doc *goquery.Document) (string, bool) {
	title := strings.TrimSpace(doc.Find("h1").First().Text())

	return title, title != ""
}

// extractRating reads the "Overall" score row. The raw score is on a 1-10
// scale and is converted to 0-100; an optional "(N votes)" count is captured
// from the same row. A page without a rating yields nils, not an error.
func extractRating(doc *goquery.Document) (*float64, *int) {
	var (
		rating *float64
		votes  *int
	)

	doc.Find("td").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) != "Overall" {
			return true
		}

		sel.NextAll().EachWithBreak(func(_ int, next *goquery.Selection) bool {
			raw := strings.TrimSpace(next.Text())
			if !scorePattern.MatchString(raw) {
				return true
			}

			score, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return true
			}

			score *= 10
			rating = &score

			return false
		})

		if rating == nil {
			return true
		}

		if m := votesPattern.FindStringSubmatch(sel.Parent().Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				votes = &n
			}
		}

		return false
	})

	return rating, votes
}

// extractMediaIDs collects the site's download keys for the item. Script
// "ID":<n> pairs win; a hidden mediaId form input is the fallback.
func extractMediaIDs(doc *goquery.Document) []string {
	seen := make(map[string]struct{})

	var ids []string

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range mediaIDPattern.FindAllStringSubmatch(sel.Text(), -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}

			seen[m[1]] = struct{}{}
			ids = append(ids, m[1])
		}
	})

	if len(ids) > 0 {
		return ids
	}

	if value, ok := doc.Find(`input[name="mediaId"]`).Attr("value"); ok {
		if value = strings.TrimSpace(value); value != "" {
			ids = append(ids, value)
		}
	}

	return ids
}

// downloadBase resolves the download form's action into an absolute base
// URL, falling back to the configured default when the form is absent.
func downloadBase(doc *goquery.Document, origin, fallback string) string {
	action, ok := doc.Find("form#dl_form").Attr("action")
	if !ok || strings.TrimSpace(action) == "" {
		return fallback
	}

	action = strings.TrimSpace(action)

	switch {
	case strings.HasPrefix(action, "//"):
		return "https:" + action
	case strings.HasPrefix(action, "/"):
		return origin + action
	}

	return action
}
