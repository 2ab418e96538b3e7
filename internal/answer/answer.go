package answer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sjproject/dartsearch/internal/chunker"
	"github.com/sjproject/dartsearch/internal/news"
	"github.com/sjproject/dartsearch/internal/retriever"
	"github.com/sjproject/dartsearch/internal/store"
	"github.com/sjproject/dartsearch/pkg/models"
)

// Completer is the slice of ai.Client the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ContextRetriever returns ranked chunks for a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, documentID, query string, topK int) ([]models.ScoredChunk, error)
}

// insufficientAnswer is returned without calling the model when retrieval
// finds nothing usable.
const insufficientAnswer = "문서에서 관련 정보를 찾을 수 없습니다."

const (
	answerSystem = "당신은 한국 기업공시 분석 전문가입니다. 제공된 문서 발췌와 뉴스만 근거로 " +
		"간결하고 정확하게 답변하세요. 근거가 없는 내용은 추측하지 마세요."
	summarySystem = "당신은 한국 기업공시 분석 전문가입니다. 공시 내용을 아래 형식으로 요약하세요.\n" +
		"## 회사 개요\n## 재무 하이라이트\n## 주요 변동사항\n## 특이사항\n" +
		"마지막 줄에 '핵심 키워드: 키워드1, 키워드2, ...' 형식으로 핵심 키워드를 적으세요."
	followUpSystem = "당신은 한국 기업공시 분석 전문가입니다. 직전 답변을 읽고 투자자가 이어서 " +
		"물을 만한 후속 질문을 번호를 붙여 최대 3개 제안하세요. 질문만 출력하세요."
)

// newsTriggers marks questions that benefit from recent market context
// beyond the filing itself.
var newsTriggers = []string{
	"최근", "뉴스", "시장", "전망", "주가", "경쟁", "업계", "동향", "이슈", "평가",
}

// hedges lower answer confidence when the model signals uncertainty.
var hedges = []string{
	"확인할 수 없", "알 수 없", "불분명", "정보가 없", "찾을 수 없", "명시되어 있지 않",
}

// Config carries the orchestrator knobs from the configuration layer.
type Config struct {
	TopK             int
	NewsLimit        int
	SummaryMaxTokens int
}

// Orchestrator answers questions against indexed disclosures, produces the
// one-shot document digest, and suggests follow-up questions.
type Orchestrator struct {
	llm   Completer
	retr  ContextRetriever
	index store.VectorIndex
	news  news.Provider // nil disables news context
	cfg   Config
}

func New(llm Completer, retr ContextRetriever, index store.VectorIndex, provider news.Provider, cfg Config) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.NewsLimit <= 0 || cfg.NewsLimit > 3 {
		cfg.NewsLimit = 3
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = 6000
	}
	return &Orchestrator{llm: llm, retr: retr, index: index, news: provider, cfg: cfg}
}

// Answer resolves one question against one document. Retrieval runs first;
// with nothing relevant the fixed insufficient-information answer comes back
// and the model is never called. includeNews nil means the question decides.
func (o *Orchestrator) Answer(ctx context.Context, documentID, corpName, question string, includeNews *bool) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, errors.New("empty question")
	}

	chunks, err := o.retr.Retrieve(ctx, documentID, question, o.cfg.TopK)
	if err != nil {
		if errors.Is(err, retriever.ErrNoContext) {
			return models.Answer{Answer: insufficientAnswer}, nil
		}
		return models.Answer{}, err
	}

	wantNews := wantsNews(question)
	if includeNews != nil {
		wantNews = *includeNews
	}
	var items []models.NewsItem
	if wantNews && o.news != nil {
		query := corpName
		if query == "" {
			query = question
		}
		items, err = o.news.Search(ctx, query, o.cfg.NewsLimit)
		if err != nil {
			// The filing still answers most of the question; degrade quietly.
			log.Warn().Err(err).Str("document_id", documentID).Msg("news lookup failed")
			items = nil
		}
		if len(items) > o.cfg.NewsLimit {
			items = items[:o.cfg.NewsLimit]
		}
	}

	text, err := o.llm.Complete(ctx, answerSystem, buildPrompt(question, chunks, items))
	if err != nil {
		return models.Answer{}, fmt.Errorf("completion: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.Chunk.ID
	}
	return models.Answer{
		Answer:             strings.TrimSpace(text),
		SupportingChunkIDs: ids,
		Confidence:         confidence(text, chunks),
		NewsIncluded:       len(items) > 0,
		News:               items,
	}, nil
}

// BatchItem is one entry of an AnswerBatch result. Either Answer or Error is
// set, never both.
type BatchItem struct {
	Question string         `json:"question"`
	Answer   *models.Answer `json:"answer,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AnswerBatch answers questions one after another. A failing question marks
// its own slot and the rest still run.
func (o *Orchestrator) AnswerBatch(ctx context.Context, documentID, corpName string, questions []string) []BatchItem {
	out := make([]BatchItem, len(questions))
	for i, q := range questions {
		out[i].Question = q
		if ctx.Err() != nil {
			out[i].Error = ctx.Err().Error()
			continue
		}
		ans, err := o.Answer(ctx, documentID, corpName, q, nil)
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		out[i].Answer = &ans
	}
	return out
}

// Summarize builds the four-section document digest from the indexed chunks.
func (o *Orchestrator) Summarize(ctx context.Context, documentID, corpName string) (models.Summary, error) {
	chunks, err := o.index.Chunks(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotIndexed) {
			return models.Summary{}, fmt.Errorf("%w: document %s", retriever.ErrNoContext, documentID)
		}
		return models.Summary{}, err
	}

	var b strings.Builder
	if corpName != "" {
		fmt.Fprintf(&b, "회사명: %s\n\n", corpName)
	}
	used := 0
	for _, c := range chunks {
		if used+c.TokenCount > o.cfg.SummaryMaxTokens {
			break
		}
		b.WriteString(c.Text)
		b.WriteString("\n\n")
		used += c.TokenCount
	}
	if b.Len() == 0 {
		return models.Summary{}, fmt.Errorf("%w: document %s", retriever.ErrNoContext, documentID)
	}

	text, err := o.llm.Complete(ctx, summarySystem, b.String())
	if err != nil {
		return models.Summary{}, fmt.Errorf("summary completion: %w", err)
	}

	summary := parseSummary(text)
	summary.GeneratedAt = time.Now()
	return summary, nil
}

// FollowUps suggests up to three next questions after an answer.
func (o *Orchestrator) FollowUps(ctx context.Context, documentID, lastAnswer string) ([]string, error) {
	lastAnswer = strings.TrimSpace(lastAnswer)
	if lastAnswer == "" {
		return nil, errors.New("empty answer")
	}
	text, err := o.llm.Complete(ctx, followUpSystem, lastAnswer)
	if err != nil {
		return nil, fmt.Errorf("follow-up completion: %w", err)
	}
	return parseNumbered(text, 3), nil
}

func wantsNews(question string) bool {
	for _, kw := range newsTriggers {
		if strings.Contains(question, kw) {
			return true
		}
	}
	return false
}

// buildPrompt tags document excerpts and news snippets separately so the
// model can cite the filing without conflating it with press coverage.
func buildPrompt(question string, chunks []models.ScoredChunk, items []models.NewsItem) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[문서 %d]\n%s\n\n", i+1, c.Chunk.Text)
	}
	for i, n := range items {
		fmt.Fprintf(&b, "[뉴스 %d] %s\n%s\n\n", i+1, n.Title, n.Snippet)
	}
	fmt.Fprintf(&b, "질문: %s", question)
	return b.String()
}

var digitRun = regexp.MustCompile(`\d`)

// confidence scores an answer from its grounding signals rather than asking
// the model to rate itself.
func confidence(text string, chunks []models.ScoredChunk) float64 {
	score := 0.3
	n := len(chunks)
	if n > 3 {
		n = 3
	}
	score += 0.1 * float64(n)
	if digitRun.MatchString(text) {
		score += 0.1
	}
	if chunker.CountTokens(text) >= 30 {
		score += 0.1
	}
	for _, h := range hedges {
		if strings.Contains(text, h) {
			score -= 0.3
			break
		}
	}
	if score < 0.05 {
		score = 0.05
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

var summaryHeading = regexp.MustCompile(`(?m)^#{0,3}\s*(회사 개요|재무 하이라이트|주요 변동사항|특이사항)\s*$`)

// parseSummary splits the model output on the four requested headings. A
// missing section stays empty and lowers confidence.
func parseSummary(text string) models.Summary {
	var s models.Summary

	if m := regexp.MustCompile(`(?m)^핵심 키워드\s*[:：]\s*(.+)$`).FindStringSubmatch(text); m != nil {
		for _, kw := range strings.Split(m[1], ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				s.Keywords = append(s.Keywords, kw)
			}
		}
		text = strings.Replace(text, m[0], "", 1)
	}

	idxs := summaryHeading.FindAllStringSubmatchIndex(text, -1)
	filled := 0
	for i, idx := range idxs {
		end := len(text)
		if i+1 < len(idxs) {
			end = idxs[i+1][0]
		}
		body := strings.TrimSpace(text[idx[1]:end])
		if body == "" {
			continue
		}
		filled++
		switch text[idx[2]:idx[3]] {
		case "회사 개요":
			s.CompanyOverview = body
		case "재무 하이라이트":
			s.FinancialHighlights = body
		case "주요 변동사항":
			s.KeyChanges = body
		case "특이사항":
			s.NotablePoints = body
		}
	}
	if filled == 0 {
		// Unstructured output still beats nothing.
		s.CompanyOverview = strings.TrimSpace(text)
		if s.CompanyOverview != "" {
			filled = 1
		}
	}
	s.Confidence = float64(filled) / 4.0
	return s
}

var numberedLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+)$`)

func parseNumbered(text string, limit int) []string {
	var out []string
	for _, m := range numberedLine.FindAllStringSubmatch(text, -1) {
		q := strings.TrimSpace(m[1])
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}
