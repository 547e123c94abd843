package page

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StaticController fetches pages over plain HTTP and queries them with goquery.
// It runs no JavaScript, so it suits server-rendered sites and tests.
type StaticController struct {
	client         *http.Client
	headers        map[string]string
	cookies        []Cookie
	userAgent      string
	acceptLanguage string

	doc *goquery.Document
	url string
}

// NewStaticController creates a StaticController. A nil client uses a client
// without a global timeout; Load applies its own per-navigation timeout.
func NewStaticController(client *http.Client) *StaticController {
	if client == nil {
		client = &http.Client{}
	}
	return &StaticController{
		client:    client,
		userAgent: defaultUserAgent,
	}
}

// Load fetches url and parses the response body as HTML. The wait strategy is
// irrelevant without a JavaScript runtime.
func (c *StaticController) Load(ctx context.Context, url string, opts LoadOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}
	for _, ck := range c.cookies {
		if hostMatches(req.URL.Hostname(), ck.Domain) {
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to navigate: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	c.doc = doc
	c.url = resp.Request.URL.String()
	return nil
}

func (c *StaticController) SetExtraHeaders(_ context.Context, headers map[string]string) error {
	c.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		c.headers[k] = v
	}
	return nil
}

func (c *StaticController) SetCookies(_ context.Context, cookies []Cookie) error {
	c.cookies = append(c.cookies, cookies...)
	return nil
}

func (c *StaticController) SetUserAgent(_ context.Context, userAgent, acceptLanguage string) error {
	if userAgent != "" {
		c.userAgent = userAgent
	}
	c.acceptLanguage = acceptLanguage
	return nil
}

func (c *StaticController) QuerySelector(_ context.Context, css string) (Element, error) {
	if c.doc == nil {
		return nil, nil
	}
	sel := c.doc.Find(css).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return &staticElement{sel: sel}, nil
}

func (c *StaticController) CountElements(_ context.Context, css string) (int, error) {
	if c.doc == nil {
		return 0, nil
	}
	return c.doc.Find(css).Length(), nil
}

func (c *StaticController) URL(context.Context) (string, error) {
	return c.url, nil
}

func (c *StaticController) Close() error {
	c.client.CloseIdleConnections()
	c.doc = nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Text() (string, error) {
	return e.sel.Text(), nil
}

// hostMatches reports whether host belongs to a cookie domain.
func hostMatches(host, domain string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
