// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// Site identifies the origin gallery a submission belongs to.
type Site string

// Supported sites.
const (
	SiteWeasyl      Site = "Weasyl"
	SiteFurAffinity Site = "FurAffinity"
)

// Sites lists every supported site in load order.
var Sites = []Site{SiteWeasyl, SiteFurAffinity}

// ParseSite converts a persisted site name back into a Site.
func ParseSite(s string) (Site, error) {
	switch Site(s) {
	case SiteWeasyl, SiteFurAffinity:
		return Site(s), nil
	}
	return "", fmt.Errorf("unknown site %q", s)
}

func (s Site) String() string {
	return string(s)
}

// Submission is a single creative work at an origin site.
// ID is only unique within Site.
type Submission struct {
	ID       int64
	Site     Site
	Title    string
	PostedAt time.Time
	Tags     []string
}

// Key returns the global primary key of the submission.
func (s Submission) Key() Key {
	return Key{Site: s.Site, ID: s.ID}
}

// Key uniquely identifies a submission across sites.
type Key struct {
	Site Site
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s-%d", k.Site, k.ID)
}
