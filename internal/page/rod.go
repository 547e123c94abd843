package page

import (
	"context"
	"fmt"
	"time"

	"scout/internal/browser"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// RodController drives a single tab of a headless Chrome through go-rod.
type RodController struct {
	browser      *browser.Browser
	page         *rod.Page
	clearHeaders func()
}

// NewRodController launches a browser and opens the tab recipes run in.
func NewRodController(cfg browser.Config) (*RodController, error) {
	b, err := browser.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: defaultUserAgent})
	_, _ = page.EvalOnNewDocument(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`)

	return &RodController{browser: b, page: page}, nil
}

// Load navigates the tab and applies the wait strategy within opts.Timeout.
func (c *RodController) Load(ctx context.Context, url string, opts LoadOptions) error {
	p := c.page.Context(ctx)
	if opts.Timeout > 0 {
		p = p.Timeout(opts.Timeout)
	}

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}

	if opts.WaitUntil == WaitNetworkIdle {
		// JS-rendered pages keep populating after load.
		wait := p.WaitRequestIdle(
			500*time.Millisecond, nil, nil,
			[]proto.NetworkResourceType{proto.NetworkResourceTypeImage, proto.NetworkResourceTypeMedia},
		)
		wait()
	}
	return nil
}

// SetExtraHeaders replaces the headers sent with every following request.
func (c *RodController) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	if c.clearHeaders != nil {
		c.clearHeaders()
		c.clearHeaders = nil
	}
	if len(headers) == 0 {
		return nil
	}

	headerList := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		headerList = append(headerList, k, v)
	}
	cleanup, err := c.page.Context(ctx).SetExtraHeaders(headerList)
	if err != nil {
		return fmt.Errorf("failed to set headers: %w", err)
	}
	c.clearHeaders = cleanup
	return nil
}

func (c *RodController) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: ck.Domain,
			Path:   "/",
		})
	}
	if err := c.page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

func (c *RodController) SetUserAgent(ctx context.Context, userAgent, acceptLanguage string) error {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	err := c.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      userAgent,
		AcceptLanguage: acceptLanguage,
	})
	if err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}
	return nil
}

// QuerySelector does not wait for the element to appear.
func (c *RodController) QuerySelector(ctx context.Context, css string) (Element, error) {
	has, el, err := c.page.Context(ctx).Has(css)
	if err != nil {
		return nil, fmt.Errorf("failed to query selector '%s': %w", css, err)
	}
	if !has {
		return nil, nil
	}
	return &rodElement{el: el}, nil
}

func (c *RodController) CountElements(ctx context.Context, css string) (int, error) {
	elements, err := c.page.Context(ctx).Elements(css)
	if err != nil {
		return 0, fmt.Errorf("failed to query selector '%s': %w", css, err)
	}
	return len(elements), nil
}

func (c *RodController) URL(ctx context.Context) (string, error) {
	info, err := c.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to get page info: %w", err)
	}
	return info.URL, nil
}

// Close closes the tab and the browser.
func (c *RodController) Close() error {
	if c.clearHeaders != nil {
		c.clearHeaders()
		c.clearHeaders = nil
	}
	if c.page != nil {
		_ = c.page.Close()
	}
	return c.browser.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Text reads textContent rather than innerText so hidden nodes still count.
func (e *rodElement) Text() (string, error) {
	v, err := e.el.Property("textContent")
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}
