package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNaverSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Naver-Client-Id"); got != "cid" {
			t.Errorf("client id header = %q", got)
		}
		if got := r.Header.Get("X-Naver-Client-Secret"); got != "secret" {
			t.Errorf("client secret header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("query") != "삼성전자" {
			t.Errorf("query = %q", q.Get("query"))
		}
		if q.Get("display") != "3" || q.Get("sort") != "sim" {
			t.Errorf("unexpected paging params: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{
					"title": "<b>삼성전자</b> 실적 &quot;호조&quot;",
					"description": "영업이익이 크게 늘었다",
					"link": "https://news.example/1",
					"pubDate": "Mon, 06 Jan 2025 10:00:00 +0900"
				}
			]
		}`))
	}))
	defer server.Close()

	orig := naverNewsURL
	naverNewsURL = server.URL
	defer func() { naverNewsURL = orig }()

	items, err := NewNaver("cid", "secret").Search(context.Background(), "삼성전자", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != `삼성전자 실적 "호조"` {
		t.Errorf("HTML not cleaned from title: %q", items[0].Title)
	}
	if items[0].Date.IsZero() {
		t.Error("pubDate not parsed")
	}
	if items[0].Relevance <= 0 {
		t.Errorf("relevance = %v, want > 0", items[0].Relevance)
	}
}

func TestNaverSearchMissingCredentials(t *testing.T) {
	if _, err := NewNaver("", "").Search(context.Background(), "q", 3); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestNaverSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	orig := naverNewsURL
	naverNewsURL = server.URL
	defer func() { naverNewsURL = orig }()

	if _, err := NewNaver("cid", "secret").Search(context.Background(), "q", 3); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<b>bold</b> text", "bold text"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"  plain  ", "plain"},
	}
	for _, tt := range tests {
		if got := cleanHTML(tt.in); got != tt.want {
			t.Errorf("cleanHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelevance(t *testing.T) {
	hit := relevance("삼성전자 영업이익 급증", "반도체 호황", "삼성전자 영업이익")
	miss := relevance("전혀 무관한 기사", "내용 없음", "삼성전자 영업이익")
	if hit <= miss {
		t.Errorf("keyword hits (%v) should outscore misses (%v)", hit, miss)
	}
	if hit > 1 {
		t.Errorf("relevance must be capped at 1, got %v", hit)
	}
}
