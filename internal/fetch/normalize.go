package fetch

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Normalize strips script and style markup from an HTML document and
// returns its visible text, one chunk per line.
func Normalize(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		collectText(&b, n)
	}
	return NormalizeText(b.String()), nil
}

// collectText writes every text node under n on its own line so block
// boundaries survive the line split in NormalizeText.
func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte('\n')
		return
	}
	if n.Type == html.CommentNode {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

// NormalizeText trims every line, breaks lines on double spaces (multi
// headline runs) and drops empty chunks.
func NormalizeText(text string) string {
	var chunks []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		for _, phrase := range strings.Split(line, "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}
