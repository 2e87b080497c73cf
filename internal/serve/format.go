package serve

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
)

// botMarkdown renders the Markdown-authored bot texts (help, status).
var botMarkdown = goldmark.New()

// telegramTags maps goldmark output to the tags Telegram's HTML mode accepts.
var telegramTags = map[string]string{
	"b":      "b",
	"strong": "b",
	"i":      "i",
	"em":     "i",
	"code":   "code",
	"pre":    "pre",
}

// markdownToHTML converts Markdown to the HTML subset Telegram understands.
// Paragraphs become blank-line separated text and list items become bullet
// lines; any other markup is dropped, keeping its text.
func markdownToHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return md
	}

	var out bytes.Buffer
	if err := botMarkdown.Convert([]byte(md), &out); err != nil {
		return html.EscapeString(md)
	}

	z := html.NewTokenizer(&out)
	var sb strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			// goldmark separates block tags with bare newlines.
			if strings.Trim(tok.Data, "\n") == "" {
				continue
			}
			sb.WriteString(html.EscapeString(tok.Data))
		case html.StartTagToken, html.SelfClosingTagToken:
			if tag, ok := telegramTags[tok.Data]; ok {
				sb.WriteString("<" + tag + ">")
				continue
			}
			switch tok.Data {
			case "li":
				sb.WriteString("\n• ")
			case "br":
				sb.WriteString("\n")
			}
		case html.EndTagToken:
			if tag, ok := telegramTags[tok.Data]; ok {
				sb.WriteString("</" + tag + ">")
				continue
			}
			switch tok.Data {
			case "p", "ul", "ol":
				sb.WriteString("\n\n")
			}
		}
	}

	result := strings.TrimSpace(sb.String())
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	return result
}
