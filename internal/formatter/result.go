package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"scout/internal/engine"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// tablePlaceholder marks where a rendered Markdown table is spliced back in
// after the rest of the document went through the HTML converter.
const tablePlaceholder = "SCOUTTABLE"

// ResultContent renders an engine.Result. The HTML rendering is the source for
// the Markdown and CSV ones.
type ResultContent struct {
	result engine.Result
}

// NewResultContent creates a ResultContent.
func NewResultContent(result engine.Result) *ResultContent {
	return &ResultContent{result: result}
}

func (c *ResultContent) keys() []string {
	keys := make([]string, 0, len(c.result.Variables))
	for k := range c.result.Variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *ResultContent) title() string {
	if c.result.Recipe == "" {
		return string(c.result.StepType)
	}
	return fmt.Sprintf("%s: %s", c.result.Recipe, c.result.StepType)
}

func (c *ResultContent) ToHTML() (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(c.title())))
	sb.WriteString(fmt.Sprintf("<p>Run %s</p>\n<p>Input: %s</p>\n", html.EscapeString(c.result.RunID), html.EscapeString(c.result.Input)))

	sb.WriteString("<table>\n  <thead><tr><th>Variable</th><th>Kind</th><th>Value</th></tr></thead>\n  <tbody>\n")
	for _, k := range c.keys() {
		v := c.result.Variables[k]
		sb.WriteString(fmt.Sprintf("    <tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(k), v.Kind(), html.EscapeString(v.Text())))
	}
	sb.WriteString("  </tbody>\n</table>\n")

	if len(c.result.Report.Ignored) > 0 {
		sb.WriteString("<h2>Ignored fields</h2>\n<ul>\n")
		for _, name := range c.result.Report.Ignored {
			sb.WriteString("  <li>" + html.EscapeString(name) + "</li>\n")
		}
		sb.WriteString("</ul>\n")
	}
	if len(c.result.Report.Errors) > 0 {
		sb.WriteString("<h2>Field errors</h2>\n<ul>\n")
		for _, issue := range c.result.Report.Errors {
			sb.WriteString("  <li>" + html.EscapeString(issue.String()) + "</li>\n")
		}
		sb.WriteString("</ul>\n")
	}
	if len(c.result.Failures) > 0 {
		sb.WriteString("<h2>Failed steps</h2>\n<ol>\n")
		for _, f := range c.result.Failures {
			sb.WriteString(fmt.Sprintf("  <li>step %d (%s): %s</li>\n", f.Index, html.EscapeString(string(f.Command)), html.EscapeString(f.Error)))
		}
		sb.WriteString("</ol>\n")
	}
	return sb.String(), nil
}

func (c *ResultContent) ToText() (string, error) {
	var sb strings.Builder
	sb.WriteString(c.title() + "\n\n")
	keys := c.keys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("%-*s  %s\n", width, k, c.result.Variables[k].Text()))
	}
	if len(c.result.Report.Ignored) > 0 {
		sb.WriteString("\nignored: " + strings.Join(c.result.Report.Ignored, ", ") + "\n")
	}
	for _, issue := range c.result.Report.Errors {
		sb.WriteString("error: " + issue.String() + "\n")
	}
	for _, f := range c.result.Failures {
		sb.WriteString(fmt.Sprintf("failed: step %d (%s): %s\n", f.Index, f.Command, f.Error))
	}
	return sb.String(), nil
}

func (c *ResultContent) ToMarkdown() (string, error) {
	page, err := c.ToHTML()
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tables []string
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		tables = append(tables, tableToMarkdown(table))
		table.ReplaceWithHtml(fmt.Sprintf("<p>%s%d</p>", tablePlaceholder, i))
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}

	for i, table := range tables {
		markdown = strings.Replace(markdown, fmt.Sprintf("%s%d", tablePlaceholder, i), strings.TrimRight(table, "\n"), 1)
	}
	return markdown, nil
}

func (c *ResultContent) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c.result, "", "  ")
}

// ToCSV writes one record per variable, read back from the HTML table.
func (c *ResultContent) ToCSV() (string, error) {
	page, err := c.ToHTML()
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		var record []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			record = append(record, strings.TrimSpace(cell.Text()))
		})
		if len(record) > 0 {
			_ = w.Write(record)
		}
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.String(), nil
}

// tableToMarkdown renders a table with a header row from thead, or from its
// first row when there is no thead.
func tableToMarkdown(table *goquery.Selection) string {
	var headers []string
	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
	}
	headerRow.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, markdownCell(cell.Text()))
	})
	if len(headers) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")

	dataRows := table.Find("tbody tr")
	if dataRows.Length() == 0 {
		dataRows = table.Find("tr").Slice(1, goquery.ToEnd)
	}
	dataRows.Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, markdownCell(cell.Text()))
		})
		if len(cells) > 0 {
			sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	})
	return sb.String()
}

func markdownCell(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "|", `\|`)
}
