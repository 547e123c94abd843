package executor

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scout/internal/page"
	"scout/internal/recipe"
	"scout/internal/variables"

	"github.com/buger/jsonparser"
	"github.com/dlclark/regexp2"
)

func (e *Executor) resolve(s string) string {
	return e.store.ReplaceVariablesInString(s)
}

func (e *Executor) load(ctx context.Context, step recipe.Step) error {
	if step.URL == "" {
		return missing(step.Command, "url")
	}
	target := e.resolve(step.URL)

	if len(step.Config.Headers) > 0 {
		headers := make(map[string]string, len(step.Config.Headers))
		for k, v := range step.Config.Headers {
			headers[k] = e.resolve(v)
		}
		for k, v := range headers {
			if strings.EqualFold(k, "Cookie") {
				delete(headers, k)
				if err := e.ctrl.SetCookies(ctx, parseCookies(v, hostname(target))); err != nil {
					return err
				}
			}
		}
		if err := e.ctrl.SetExtraHeaders(ctx, headers); err != nil {
			return err
		}
	}

	opts := page.LoadOptions{
		WaitUntil: page.WaitLoad,
		Timeout:   e.cfg.PageLoadTimeout(time.Duration(step.Config.Timeout) * time.Millisecond),
	}
	if step.Config.JS {
		opts.WaitUntil = page.WaitNetworkIdle
	}

	e.logger.Debug("loading page", "url", target, "wait_until", opts.WaitUntil, "timeout", opts.Timeout)
	if err := e.ctrl.Load(ctx, target, opts); err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}
	return nil
}

func (e *Executor) storeAttribute(ctx context.Context, step recipe.Step) (variables.Value, error) {
	if step.Locator == "" || step.AttributeName == "" {
		return variables.String(""), missing(step.Command, "locator", "attribute_name")
	}
	el, err := e.ctrl.QuerySelector(ctx, e.resolve(step.Locator))
	if err != nil {
		return variables.String(""), err
	}
	if el == nil {
		return variables.String(""), nil
	}
	v, _, err := el.Attribute(step.AttributeName)
	if err != nil {
		return variables.String(""), err
	}
	return variables.String(strings.TrimSpace(v)), nil
}

// storeText serves store_text and store_array: both read the first match only.
func (e *Executor) storeText(ctx context.Context, step recipe.Step) (variables.Value, error) {
	if step.Locator == "" {
		return variables.String(""), missing(step.Command, "locator")
	}
	el, err := e.ctrl.QuerySelector(ctx, e.resolve(step.Locator))
	if err != nil {
		return variables.String(""), err
	}
	if el == nil {
		return variables.String(""), nil
	}
	text, err := el.Text()
	if err != nil {
		return variables.String(""), err
	}
	return variables.String(strings.TrimSpace(text)), nil
}

func (e *Executor) storeCount(ctx context.Context, step recipe.Step) (variables.Value, error) {
	if step.Locator == "" {
		return variables.String("0"), missing(step.Command, "locator")
	}
	n, err := e.ctrl.CountElements(ctx, e.resolve(step.Locator))
	if err != nil {
		return variables.String("0"), err
	}
	return variables.String(strconv.Itoa(n)), nil
}

var escapedMeta = regexp.MustCompile(`\\([.*+?^${}()|\[\]\\/])`)

// unescapeRegexInput turns literal "\." style sequences back into the plain character.
func unescapeRegexInput(s string) string {
	return escapedMeta.ReplaceAllString(s, "$1")
}

// regexTimeout bounds backtracking on hostile page text.
const regexTimeout = 2 * time.Second

// regex applies a JavaScript-style expression with the dotAll flag. The result
// is the first non-empty capture group, else the whole match.
func (e *Executor) regex(step recipe.Step) (variables.Value, error) {
	if step.Input == "" || step.Expression == "" {
		return variables.String(""), missing(step.Command, "input", "expression")
	}
	input := unescapeRegexInput(e.resolve(step.Input))

	re, err := regexp2.Compile(step.Expression, regexp2.ECMAScript|regexp2.Singleline)
	if err != nil {
		return variables.String(input), fmt.Errorf("invalid expression %q: %w", step.Expression, err)
	}
	re.MatchTimeout = regexTimeout

	m, err := re.FindStringMatch(input)
	if err != nil {
		return variables.String(input), fmt.Errorf("expression %q: %w", step.Expression, err)
	}
	if m == nil {
		e.logger.Debug("regex did not match", "expression", step.Expression)
		return variables.String(input), nil
	}
	groups := m.Groups()
	for _, g := range groups[1:] {
		if text := g.String(); text != "" {
			return variables.String(strings.TrimSpace(text)), nil
		}
	}
	return variables.String(strings.TrimSpace(m.String())), nil
}

func (e *Executor) storeInput(step recipe.Step) (variables.Value, error) {
	if step.Input == "" {
		return variables.String(""), missing(step.Command, "input")
	}
	return variables.String(e.resolve(step.Input)), nil
}

// jsonStoreText reads a dot path out of a stored JSON document. A missing path
// yields an undefined value, so nothing is written.
func (e *Executor) jsonStoreText(step recipe.Step) (variables.Value, error) {
	if step.Input == "" || step.Locator == "" {
		return variables.Undefined(), missing(step.Command, "input", "locator")
	}

	doc := e.store.Get(step.Input)
	var raw []byte
	switch doc.Kind() {
	case variables.KindJSON:
		raw = doc.Raw()
	case variables.KindString:
		raw = []byte(doc.Str())
	default:
		return variables.Undefined(), nil
	}

	value, ok := lookupPath(raw, e.resolve(step.Locator))
	if !ok {
		e.logger.Debug("json path not found", "input", step.Input, "path", step.Locator)
	}
	return value, nil
}

// lookupPath walks a dot path ("results.0.title"). Numeric segments index
// arrays; on objects they are ordinary keys.
func lookupPath(raw []byte, path string) (variables.Value, bool) {
	cur, typ, _, err := jsonparser.Get(raw)
	if err != nil {
		return variables.Undefined(), false
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		key := seg
		if typ == jsonparser.Array {
			if _, err := strconv.Atoi(seg); err == nil {
				key = "[" + seg + "]"
			}
		}
		cur, typ, _, err = jsonparser.Get(cur, key)
		if err != nil {
			return variables.Undefined(), false
		}
	}

	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(cur)
		if err != nil {
			return variables.Undefined(), false
		}
		return variables.String(s), true
	case jsonparser.Object, jsonparser.Array:
		return variables.JSON(cur), true
	case jsonparser.Number, jsonparser.Boolean:
		return variables.String(string(cur)), true
	default:
		return variables.Undefined(), false
	}
}

func (e *Executor) urlEncode(step recipe.Step) (variables.Value, error) {
	if step.Input == "" {
		return variables.String(""), missing(step.Command, "input")
	}
	return variables.String(encodeURIComponent(step.Input)), nil
}

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func (e *Executor) storeURL(ctx context.Context) (variables.Value, error) {
	u, err := e.ctrl.URL(ctx)
	if err != nil {
		return variables.String(""), err
	}
	return variables.String(u), nil
}

// replace substitutes every literal occurrence of find.
func (e *Executor) replace(step recipe.Step) (variables.Value, error) {
	if step.Input == "" || step.Find == nil || *step.Find == "" || step.Replace == nil {
		return variables.String(""), missing(step.Command, "input", "find", "replace")
	}
	return variables.String(strings.ReplaceAll(e.resolve(step.Input), *step.Find, *step.Replace)), nil
}

// parseCookies splits a Cookie header ("a=1; b=2") into cookies for domain.
func parseCookies(header, domain string) []page.Cookie {
	var cookies []page.Cookie
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, page.Cookie{Name: name, Value: strings.TrimSpace(value), Domain: domain})
	}
	return cookies
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
