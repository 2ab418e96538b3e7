package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sjproject/dartsearch/pkg/models"
)

// Provider searches recent news for a company. Result count is bounded by
// the limit argument; implementations must not block indefinitely.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]models.NewsItem, error)
}

// naverNewsURL is a var so tests can point the client at a local server.
var naverNewsURL = "https://openapi.naver.com/v1/search/news.json"

const maxDisplay = 100

// Naver queries the Naver news search API.
type Naver struct {
	clientID     string
	clientSecret string
	http         *http.Client
}

func NewNaver(clientID, clientSecret string) *Naver {
	return &Naver{
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

var (
	htmlTag    = regexp.MustCompile(`<[^>]+>`)
	htmlEscape = strings.NewReplacer("&quot;", `"`, "&amp;", "&", "&lt;", "<", "&gt;", ">", "&apos;", "'")
)

func (n *Naver) Search(ctx context.Context, query string, limit int) ([]models.NewsItem, error) {
	if n.clientID == "" || n.clientSecret == "" {
		return nil, errors.New("naver news credentials unset")
	}
	if limit <= 0 || limit > maxDisplay {
		limit = maxDisplay
	}

	u := naverNewsURL + "?query=" + url.QueryEscape(query) +
		fmt.Sprintf("&display=%d&start=1&sort=sim", limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Naver-Client-Id", n.clientID)
	req.Header.Set("X-Naver-Client-Secret", n.clientSecret)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("naver news: %s", resp.Status)
	}

	var out struct {
		Items []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Link        string `json:"link"`
			PubDate     string `json:"pubDate"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	items := make([]models.NewsItem, 0, len(out.Items))
	for _, it := range out.Items {
		title := cleanHTML(it.Title)
		snippet := cleanHTML(it.Description)
		date, err := time.Parse(time.RFC1123Z, it.PubDate)
		if err != nil {
			log.Debug().Str("pub_date", it.PubDate).Msg("unparseable news date")
		}
		items = append(items, models.NewsItem{
			Title:     title,
			Snippet:   snippet,
			URL:       it.Link,
			Date:      date,
			Relevance: relevance(title, snippet, query),
		})
	}
	return items, nil
}

func cleanHTML(s string) string {
	return strings.TrimSpace(htmlEscape.Replace(htmlTag.ReplaceAllString(s, "")))
}

// relevance is a cheap keyword-presence score used to order snippets before
// the orchestrator trims to its bounded count.
func relevance(title, snippet, query string) float64 {
	text := strings.ToLower(title + " " + snippet)
	score := 0.0
	for _, kw := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(text, kw) {
			score += 0.25
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}
