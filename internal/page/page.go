// Package page defines the page-rendering capability recipes run against and
// provides a headless Chrome implementation and a static HTML implementation.
package page

import (
	"context"
	"time"
)

// WaitStrategy decides when a navigation counts as finished.
type WaitStrategy string

const (
	WaitLoad        WaitStrategy = "load"        // Wait for the load event
	WaitNetworkIdle WaitStrategy = "networkidle" // Wait for the load event and then network idle
)

// LoadOptions controls a single navigation.
type LoadOptions struct {
	WaitUntil WaitStrategy
	Timeout   time.Duration
}

// Cookie is set on a domain before navigating.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Element is a queried DOM element.
type Element interface {
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	// Text returns the element's text content.
	Text() (string, error)
}

// Controller loads pages and queries their DOM.
type Controller interface {
	Load(ctx context.Context, url string, opts LoadOptions) error
	SetExtraHeaders(ctx context.Context, headers map[string]string) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	SetUserAgent(ctx context.Context, userAgent, acceptLanguage string) error
	// QuerySelector returns the first element matching css, or nil when none does.
	QuerySelector(ctx context.Context, css string) (Element, error)
	CountElements(ctx context.Context, css string) (int, error)
	URL(ctx context.Context) (string, error)
	Close() error
}
