package translator

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

var (
	ErrEmptyReply     = errors.New("reply is empty")
	ErrRegionNotFound = errors.New("reply region not found")
	ErrReplyTooLarge  = errors.New("reply exceeds size limit")
)

var defaultJSONFields = []string{"reply", "response", "content", "text", "result"}

type payload int

const (
	payloadText payload = iota
	payloadHTML
	payloadJSON
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ParseReply recovers the assistant text from raw site output
func (t *Translator) ParseReply(raw chat.RawReply) (string, error) {
	if len(raw.Body) > MaxReplySize {
		return "", chat.Parse("site reply too large", ErrReplyTooLarge)
	}
	if len(bytes.TrimSpace(raw.Body)) == 0 {
		return "", chat.Parse("site returned no reply", ErrEmptyReply)
	}

	var (
		text string
		err  error
	)
	switch kind, contentType := detect(raw); kind {
	case payloadJSON:
		text, err = t.parseJSON(raw.Body)
	case payloadHTML:
		text, err = t.parseHTML(raw.Body, contentType)
	default:
		text = string(decode(raw.Body, contentType))
	}
	if err != nil {
		return "", err
	}

	text = t.clean(text)
	if text == "" {
		return "", chat.Parse("reply region holds no text", ErrEmptyReply)
	}
	return text, nil
}

// detect classifies the payload from its declared type, sniffing the body
// when the site sends none.
func detect(raw chat.RawReply) (payload, string) {
	contentType := raw.ContentType
	media, _, err := mime.ParseMediaType(contentType)
	if contentType == "" || err != nil || media == "application/octet-stream" {
		mt := mimetype.Detect(raw.Body)
		contentType = mt.String()
		media, _, _ = mime.ParseMediaType(contentType)
	}

	switch {
	case media == "text/html", media == "application/xhtml+xml":
		return payloadHTML, contentType
	case media == "application/json", strings.HasSuffix(media, "+json"):
		return payloadJSON, contentType
	}
	return payloadText, contentType
}

// decode converts body to UTF-8 using the declared charset or, failing that,
// a detected one.
func decode(body []byte, contentType string) []byte {
	if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
		if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
			if out, err := io.ReadAll(r); err == nil {
				return out
			}
		}
		return body
	}
	if utf8.Valid(body) {
		return body
	}

	detected := "utf-8"
	if res, err := chardet.NewTextDetector().DetectBest(body); err == nil && res != nil {
		detected = strings.ToLower(res.Charset)
	}
	r, err := charset.NewReader(bytes.NewReader(body), "text/plain; charset="+detected)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func (t *Translator) parseHTML(body []byte, contentType string) (string, error) {
	data := decode(body, contentType)

	region, err := t.selectRegion(data)
	if err != nil {
		return "", err
	}
	for _, sel := range t.chrome {
		region.Find(sel).Remove()
	}

	var fragment strings.Builder
	region.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			fragment.WriteString(h)
		}
	})

	safe := t.sanitizer.Sanitize(fragment.String())
	doc, err := html.Parse(strings.NewReader(safe))
	if err != nil {
		return "", chat.Parse("sanitized reply is not parseable", err)
	}

	var b strings.Builder
	extractText(doc, &b, false)
	return b.String(), nil
}

// selectRegion finds the reply region by CSS selector or XPath
func (t *Translator) selectRegion(data []byte) (*goquery.Selection, error) {
	if isXPath(t.region) {
		root, err := htmlquery.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, chat.Parse("reply is not valid HTML", err)
		}
		nodes, err := htmlquery.QueryAll(root, t.region)
		if err != nil {
			return nil, chat.Parse("invalid reply region expression", err)
		}
		if len(nodes) == 0 {
			return nil, chat.Parse("reply region not found", ErrRegionNotFound)
		}
		return goquery.NewDocumentFromNode(root).FindNodes(nodes...), nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, chat.Parse("reply is not valid HTML", err)
	}
	sel := doc.Find(t.region)
	if sel.Length() == 0 {
		return nil, chat.Parse("reply region not found", ErrRegionNotFound)
	}
	return sel, nil
}

func isXPath(expr string) bool {
	return strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(")
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true,
	"pre": true, "ul": true, "ol": true, "li": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractText writes visible text, turning <br> into newlines and block
// elements into paragraph breaks. Whitespace outside <pre> is collapsed.
func extractText(n *html.Node, b *strings.Builder, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			b.WriteString(n.Data)
			return
		}
		writeCollapsed(b, n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "br":
			trimTrailingSpace(b)
			b.WriteByte('\n')
			return
		case "pre":
			pre = true
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		paragraphBreak(b)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b, pre)
	}
	if block {
		paragraphBreak(b)
	}
}

func writeCollapsed(b *strings.Builder, s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" && !endsWithSpace(b) {
			b.WriteByte(' ')
		}
		return
	}
	if isSpace(s[0]) && !endsWithSpace(b) {
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(fields, " "))
	if isSpace(s[len(s)-1]) {
		b.WriteByte(' ')
	}
}

func paragraphBreak(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	trimTrailingSpace(b)
	b.WriteString("\n\n")
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " \t")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s == "" || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func (t *Translator) parseJSON(body []byte) (string, error) {
	paths := [][]interface{}{t.jsonPath}
	if t.jsonPath == nil {
		paths = paths[:0]
		for _, f := range defaultJSONFields {
			paths = append(paths, []interface{}{f})
		}
	}

	for _, path := range paths {
		node, err := sonic.Get(body, path...)
		if err != nil {
			continue
		}
		s, err := node.String()
		if err != nil {
			continue
		}
		if media := mimetype.Detect([]byte(s)); media.Is("text/html") {
			return t.parseHTML([]byte(s), "text/html; charset=utf-8")
		}
		return s, nil
	}
	return "", chat.Parse("reply field not found in JSON payload", ErrRegionNotFound)
}

// jsonPath splits "data.items.0.text" into sonic path segments
func jsonPath(field string) []interface{} {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, ".")
	path := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			path = append(path, n)
			continue
		}
		path = append(path, p)
	}
	return path
}

// clean applies strip patterns and normalizes line breaks
func (t *Translator) clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, re := range t.strip {
		text = re.ReplaceAllString(text, "")
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
