package formatter

import (
	"fmt"
	"strings"
)

// Content can render itself in every output format the CLI supports.
type Content interface {
	ToHTML() (string, error)
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
	ToCSV() (string, error)
}

// Formats lists the accepted --format values.
var Formats = []string{"json", "text", "markdown", "html", "csv"}

// Supported reports whether Format accepts format, aliases and case included.
func Supported(format string) bool {
	switch canonical(format) {
	case "html", "text", "markdown", "csv", "json":
		return true
	default:
		return false
	}
}

func canonical(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "md" {
		return "markdown"
	}
	return format
}

func Format(content Content, format string) (string, error) {
	switch canonical(format) {
	case "html":
		return content.ToHTML()
	case "text":
		return content.ToText()
	case "markdown":
		return content.ToMarkdown()
	case "csv":
		return content.ToCSV()
	case "json":
		b, err := content.ToJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
