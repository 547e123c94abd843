// Package pagetest provides an in-memory page.Controller for tests.
package pagetest

import (
	"context"
	"fmt"

	"scout/internal/page"
)

// Element is a canned DOM element.
type Element struct {
	Content string
	Attrs   map[string]string
}

func (e *Element) Attribute(name string) (string, bool, error) {
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Text() (string, error) {
	return e.Content, nil
}

// LoadCall records one Load.
type LoadCall struct {
	URL  string
	Opts page.LoadOptions
}

// Controller serves canned pages keyed by URL. Each page maps a CSS selector
// to the elements it matches. Every call is recorded for assertions.
type Controller struct {
	Pages map[string]map[string][]*Element
	// LoadErr, when set, is returned by Load for that URL.
	LoadErr map[string]error

	Loads          []LoadCall
	Headers        []map[string]string
	Cookies        []page.Cookie
	UserAgent      string
	AcceptLanguage string
	Queries        []string
	Closed         bool

	current string
}

// NewController returns an empty Controller.
func NewController() *Controller {
	return &Controller{
		Pages:   map[string]map[string][]*Element{},
		LoadErr: map[string]error{},
	}
}

// AddPage registers the elements served at url.
func (c *Controller) AddPage(url string, elements map[string][]*Element) *Controller {
	c.Pages[url] = elements
	return c
}

// Current returns the URL of the loaded page.
func (c *Controller) Current() string {
	return c.current
}

func (c *Controller) Load(_ context.Context, url string, opts page.LoadOptions) error {
	c.Loads = append(c.Loads, LoadCall{URL: url, Opts: opts})
	if err := c.LoadErr[url]; err != nil {
		return err
	}
	if _, ok := c.Pages[url]; !ok {
		return fmt.Errorf("no page registered for %s", url)
	}
	c.current = url
	return nil
}

func (c *Controller) SetExtraHeaders(_ context.Context, headers map[string]string) error {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	c.Headers = append(c.Headers, copied)
	return nil
}

func (c *Controller) SetCookies(_ context.Context, cookies []page.Cookie) error {
	c.Cookies = append(c.Cookies, cookies...)
	return nil
}

func (c *Controller) SetUserAgent(_ context.Context, userAgent, acceptLanguage string) error {
	c.UserAgent = userAgent
	c.AcceptLanguage = acceptLanguage
	return nil
}

func (c *Controller) QuerySelector(_ context.Context, css string) (page.Element, error) {
	c.Queries = append(c.Queries, css)
	elements := c.Pages[c.current][css]
	if len(elements) == 0 {
		return nil, nil
	}
	return elements[0], nil
}

func (c *Controller) CountElements(_ context.Context, css string) (int, error) {
	c.Queries = append(c.Queries, css)
	return len(c.Pages[c.current][css]), nil
}

func (c *Controller) URL(context.Context) (string, error) {
	return c.current, nil
}

func (c *Controller) Close() error {
	c.Closed = true
	return nil
}

var _ page.Controller = (*Controller)(nil)
