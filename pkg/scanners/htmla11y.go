package scanners

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	cssscanner "github.com/gorilla/css/scanner"

	"github.com/GlobalCyberAlliance/domainscan/pkg/module"
)

// HTMLA11YPayload is the JSON payload produced by the HTML accessibility
// scanner.
type HTMLA11YPayload struct {
	StatusCode      int      `json:"statusCode"`
	HasLangAttr     bool     `json:"hasLangAttr"`
	ImagesMissingAlt int     `json:"imagesMissingAlt"`
	InlineStyleDecls int     `json:"inlineStyleDeclarations"`
	Issues          []string `json:"issues,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// NewHTMLA11Y fetches https://<domain>/ and runs a handful of
// accessibility heuristics against the parsed document: a declared
// document language, alt text on images, and a count of inline style
// declarations (tokenized with gorilla/css's scanner) as a rough proxy
// for hand-rolled, hard-to-audit presentational markup.
func NewHTMLA11Y(client *http.Client, timeout time.Duration) *module.Registration {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &module.Registration{
		Name:    "htmla11y",
		Headers: []string{"Status Code", "Has Lang Attr", "Images Missing Alt", "Inline Style Declarations", "Issues", "Error"},
		Scan: func(ctx context.Context, domain string, env module.Environment, opts map[string]interface{}) (interface{}, error) {
			return probeA11Y(ctx, client, domain), nil
		},
		ToRows: func(payload interface{}) [][]string {
			p, ok := payload.(HTMLA11YPayload)
			if !ok {
				m, ok := payload.(map[string]interface{})
				if !ok {
					return nil
				}

				p = HTMLA11YPayload{
					StatusCode:       intField(m, "statusCode"),
					HasLangAttr:      boolField(m, "hasLangAttr"),
					ImagesMissingAlt: intField(m, "imagesMissingAlt"),
					InlineStyleDecls: intField(m, "inlineStyleDeclarations"),
					Issues:           sliceField(m, "issues"),
					Error:            stringField(m, "error"),
				}
			}

			return [][]string{{
				strconv.Itoa(p.StatusCode),
				boolString(p.HasLangAttr),
				strconv.Itoa(p.ImagesMissingAlt),
				strconv.Itoa(p.InlineStyleDecls),
				joinStrings(p.Issues),
				p.Error,
			}}
		},
	}
}

func probeA11Y(ctx context.Context, client *http.Client, domain string) HTMLA11YPayload {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+domain+"/", nil)
	if err != nil {
		return HTMLA11YPayload{Error: err.Error()}
	}

	resp, err := client.Do(req)
	if err != nil {
		return HTMLA11YPayload{Error: err.Error()}
	}
	defer resp.Body.Close()

	payload := HTMLA11YPayload{StatusCode: resp.StatusCode}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		payload.Error = err.Error()
		return payload
	}

	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		payload.HasLangAttr = true
	} else {
		payload.Issues = append(payload.Issues, "missing lang attribute on <html>")
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		if _, ok := sel.Attr("alt"); !ok {
			payload.ImagesMissingAlt++
		}
	})
	if payload.ImagesMissingAlt > 0 {
		payload.Issues = append(payload.Issues, fmt.Sprintf("%d images missing alt text", payload.ImagesMissingAlt))
	}

	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		payload.InlineStyleDecls += countDeclarations(style)
	})
	if payload.InlineStyleDecls > 0 {
		payload.Issues = append(payload.Issues, fmt.Sprintf("%d inline style declarations found; prefer stylesheets for consistent focus/contrast styling", payload.InlineStyleDecls))
	}

	return payload
}

func countDeclarations(style string) int {
	s := cssscanner.New(style)

	count := 0
	for {
		token := s.Next()
		if token.Type == cssscanner.TokenEOF || token.Type == cssscanner.TokenError {
			break
		}
		if token.Type == cssscanner.TokenChar && token.Value == ";" {
			count++
		}
	}

	if count == 0 && style != "" {
		count = 1
	}

	return count
}
