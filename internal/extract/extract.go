// Package extract pulls Singapore phone numbers and contact-page links out of
// a loaded HTML page.
package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/phone-enrich/internal/ident"
	"github.com/sells-group/phone-enrich/internal/phone"
)

// ContactKeywords mark a link as leading to a contact page when they appear in
// its text or URL.
var ContactKeywords = []string{
	"contact", "contacts", "contact-us", "contactus", "reach-us",
	"get-in-touch", "enquiry", "enquiries", "reach-out",
	"connect", "talk-to-us", "support",
}

var digitRunRe = regexp.MustCompile(`\d+`)

// Phones returns the validated phone numbers found on doc, deduplicated in
// discovery order: tel: links, WhatsApp links, JSON-LD, body text, then meta
// tags. Returns nil when none validate.
func Phones(doc *goquery.Document, v *phone.Validator) []string {
	if v == nil {
		v = phone.NewValidator()
	}
	return v.ValidateAll(Candidates(doc))
}

// Candidates returns the raw, unvalidated phone candidates of doc in source
// order.
func Candidates(doc *goquery.Document) []string {
	var out []string
	out = append(out, telLinks(doc)...)
	out = append(out, whatsAppLinks(doc)...)
	out = append(out, jsonLD(doc)...)
	out = append(out, phone.FindCandidates(BodyText(doc))...)
	out = append(out, metaPhones(doc)...)
	return out
}

func telLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find(`a[href*="tel:"]`).Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if i := strings.Index(strings.ToLower(href), "tel:"); i >= 0 {
			href = href[i+len("tel:"):]
		}
		if href, err := url.PathUnescape(href); err == nil {
			out = append(out, strings.TrimSpace(href))
			return
		}
		out = append(out, strings.TrimSpace(href))
	})
	return out
}

func whatsAppLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find(`a[href*="wa.me"], a[href*="whatsapp"]`).Each(func(_ int, sel *goquery.Selection) {
		digits := digitRunRe.FindAllString(sel.AttrOr("href", ""), -1)
		if len(digits) > 0 {
			out = append(out, strings.Join(digits, ""))
		}
	})
	return out
}

func jsonLD(doc *goquery.Document) []string {
	var out []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return
		}
		out = append(out, walkLD(data)...)
	})
	return out
}

// walkLD collects telephone/phone values at any depth.
func walkLD(node any) []string {
	var out []string
	switch n := node.(type) {
	case map[string]any:
		for _, key := range []string{"telephone", "phone"} {
			out = append(out, stringsOf(n[key])...)
		}
		for _, child := range n {
			out = append(out, walkLD(child)...)
		}
	case []any:
		for _, child := range n {
			out = append(out, walkLD(child)...)
		}
	}
	return out
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func metaPhones(doc *goquery.Document) []string {
	var out []string
	doc.Find(`meta[property*="phone"], meta[name*="phone"]`).Each(func(_ int, sel *goquery.Selection) {
		if c := strings.TrimSpace(sel.AttrOr("content", "")); c != "" {
			out = append(out, c)
		}
	})
	return out
}

// BodyText returns the visible text of the document body, without script,
// style and noscript content.
func BodyText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

// ContactLink returns the first link on doc whose text or absolute URL
// contains a contact keyword and which stays on the page's registrable
// domain. Returns "" when there is none or when it points back at pageURL.
func ContactLink(doc *goquery.Document, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Hostname() == "" {
		return ""
	}

	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		abs := resolveLink(base, strings.TrimSpace(sel.AttrOr("href", "")))
		if abs == "" {
			return true
		}
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if !hasContactKeyword(text, strings.ToLower(abs)) {
			return true
		}
		if !ident.SameSite(pageURL, abs) {
			return true
		}
		found = abs
		return false
	})

	if found == "" || sameURL(found, pageURL) {
		return ""
	}
	return found
}

func resolveLink(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	parsed, err := base.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	parsed.Fragment = ""
	return parsed.String()
}

func hasContactKeyword(text, href string) bool {
	for _, kw := range ContactKeywords {
		if strings.Contains(href, kw) || strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func sameURL(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimRight(strings.ToLower(s), "/")
	}
	return norm(a) == norm(b)
}
