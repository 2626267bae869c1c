package main

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Listing struct {
	Title string
	URL   string
}

// ExtractFreeListings returns, in document order, every listing card whose
// price badge says "free".
func ExtractFreeListings(html string, sel SelectorConfig) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listings page: %w", err)
	}

	var listings []Listing
	doc.Find(sel.ListingCard).Each(func(_ int, card *goquery.Selection) {
		if !contains(card.Find(sel.ListingPrice).Text(), "free") {
			return
		}

		href, _ := card.Find(sel.ListingLink).First().Attr("href")
		listings = append(listings, Listing{
			Title: strings.TrimSpace(card.Find(sel.ListingTitle).First().Text()),
			URL:   strings.TrimSpace(href),
		})
	})

	return listings, nil
}

func isReferral(l Listing) bool {
	return contains(l.Title, "referral") || contains(l.URL, "referral")
}

// BuildCandidates drops referral listings, listings without a url and
// repeated urls, keeping first-seen order. Each dropped listing is reported
// once through logf.
func BuildCandidates(listings []Listing, logf func(string)) []string {
	seen := make(map[string]struct{}, len(listings))
	candidates := make([]string, 0, len(listings))

	for _, l := range listings {
		switch {
		case isReferral(l):
			logf(T("listing_referral", l.Title, l.URL))
		case l.URL == "":
			logf(T("listing_no_url", l.Title))
		default:
			if _, dup := seen[l.URL]; dup {
				logf(T("listing_duplicate", l.URL))
				continue
			}
			seen[l.URL] = struct{}{}
			candidates = append(candidates, l.URL)
		}
	}

	return candidates
}

func contains(s string, substrs ...string) bool {
	s = strings.ToLower(s)
	for _, substr := range substrs {
		if strings.Contains(s, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
