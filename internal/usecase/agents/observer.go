package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"wayfinder/internal/domain"
)

// ObserverConfig weights the three relevance factors.
type ObserverConfig struct {
	ContentWeight float64
	TitleWeight   float64
	URLWeight     float64
	// Decay is the weight kept from the previous proximity, in [0, 1).
	Decay float64
}

// DefaultObserverConfig returns the stock weights.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{ContentWeight: 0.6, TitleWeight: 0.25, URLWeight: 0.15, Decay: 0.5}
}

// Observer scores how relevant the current page is to the goal and smooths
// the result into the running proximity.
type Observer struct {
	Base
	cfg ObserverConfig
}

// NewObserver creates an Observer. Zero weights fall back to the defaults.
func NewObserver(cfg ObserverConfig) *Observer {
	def := DefaultObserverConfig()
	if cfg.ContentWeight+cfg.TitleWeight+cfg.URLWeight <= 0 {
		cfg.ContentWeight, cfg.TitleWeight, cfg.URLWeight = def.ContentWeight, def.TitleWeight, def.URLWeight
	}
	if cfg.Decay < 0 || cfg.Decay >= 1 {
		cfg.Decay = def.Decay
	}
	return &Observer{
		Base: NewBase(NameObserver, "Scores page relevance against the current goal"),
		cfg:  cfg,
	}
}

// CanHandle requires a goal to score against.
func (o *Observer) CanHandle(actx domain.AgentContext) bool {
	return actx.Goal != nil
}

// Relevance is the per-factor breakdown of a score.
type Relevance struct {
	Content float64 `json:"content"`
	Title   float64 `json:"title"`
	URL     float64 `json:"url"`
	Score   float64 `json:"score"`
}

func (o *Observer) Process(ctx context.Context, actx domain.AgentContext) (*domain.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Cancelled(o.Name())
	}
	if actx.Goal == nil {
		return nil, processingError(o.Name(), "no goal to observe", nil)
	}

	keywords := goalKeywords(actx.Goal)
	rel := o.Score(keywords, actx.PageTitle, actx.Location, actx.PageContent)
	proximity := domain.ClampUnit(o.cfg.Decay*actx.Proximity + (1-o.cfg.Decay)*rel.Score)

	out := domain.NewAgentOutput(o.Name(),
		fmt.Sprintf("relevance %.2f (content %.2f, title %.2f, url %.2f)", rel.Score, rel.Content, rel.Title, rel.URL),
		rel.Score,
	).
		WithData(domain.DataProximity, proximity).
		WithData("relevance", rel).
		WithNext(domain.Continue)
	return out, nil
}

// Score computes the weighted three-factor relevance for keywords.
func (o *Observer) Score(keywords []string, title, location, content string) Relevance {
	if len(keywords) == 0 {
		return Relevance{}
	}
	rel := Relevance{
		Content: saturatingHits(keywords, content),
		Title:   coverage(keywords, title),
		URL:     coverage(keywords, location),
	}
	total := o.cfg.ContentWeight + o.cfg.TitleWeight + o.cfg.URLWeight
	rel.Score = domain.ClampUnit((o.cfg.ContentWeight*rel.Content + o.cfg.TitleWeight*rel.Title + o.cfg.URLWeight*rel.URL) / total)
	return rel
}

// saturatingHits averages 1-e^(-n) over keywords, where n is how often each
// keyword occurs. Repeated mentions add confidence with diminishing returns.
func saturatingHits(keywords []string, text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	var sum float64
	for _, k := range keywords {
		n := strings.Count(lower, k)
		sum += 1 - math.Exp(-float64(n))
	}
	return sum / float64(len(keywords))
}

// coverage is the fraction of keywords present at least once.
func coverage(keywords []string, text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// goalKeywords returns the goal's keywords, or significant words of its
// description when none were given. All lowercase.
func goalKeywords(g *domain.Goal) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(w string) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	for _, k := range g.Keywords {
		add(k)
	}
	if len(out) > 0 {
		return out
	}
	for _, w := range strings.FieldsFunc(g.Description, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) > 3 && !stopWords[strings.ToLower(w)] {
			add(w)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"find": true, "page": true, "that": true, "with": true, "this": true,
	"from": true, "about": true, "where": true, "which": true, "what": true,
	"there": true, "their": true, "into": true, "your": true,
}
