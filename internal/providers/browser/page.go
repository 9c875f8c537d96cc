package browser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// headers a regular desktop browser sends on navigation
var navigationHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"DNT":                       "1",
	"Upgrade-Insecure-Requests": "1",
}

// page is the parsed home page a session warmed against
type page struct {
	url    string
	doc    *goquery.Document
	hidden url.Values
}

// parsePage decodes and parses a fetched page
func parsePage(body []byte, contentType, pageURL string) (*page, error) {
	data, err := decodePage(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &page{url: pageURL, doc: doc, hidden: hiddenInputs(doc)}, nil
}

// decodePage converts the body to UTF-8. The declared charset and any meta
// tag win; a body that only got the windows-1252 fallback goes through
// detection first.
func decodePage(body []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body, nil
	}
	if !certain && name == "windows-1252" {
		if res, err := chardet.NewHtmlDetector().DetectBest(body); err == nil && res != nil {
			if e, n := charset.Lookup(res.Charset); e != nil {
				enc, name = e, n
			}
		}
		if name == "utf-8" && utf8.Valid(body) {
			return body, nil
		}
	}
	return enc.NewDecoder().Bytes(body)
}

// hiddenInputs collects named hidden form fields, first value wins
func hiddenInputs(doc *goquery.Document) url.Values {
	values := url.Values{}
	doc.Find("form input[type=hidden]").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("name", ""))
		if name == "" || values.Has(name) {
			return
		}
		values.Set(name, s.AttrOr("value", ""))
	})
	return values
}

// inputValue returns the value attribute of the first match
func (p *page) inputValue(selector string) string {
	return strings.TrimSpace(p.doc.Find(selector).First().AttrOr("value", ""))
}

// scriptSource returns the text of the first matching inline script
func (p *page) scriptSource(selector string) string {
	s := p.doc.Find(selector).First()
	if _, external := s.Attr("src"); external {
		return ""
	}
	return strings.TrimSpace(s.Text())
}
