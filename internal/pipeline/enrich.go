package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helix-research/pipeline-cli/internal/config"
	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/pkg/anthropic"
	"github.com/helix-research/pipeline-cli/pkg/serper"
)

const maxURLsPerAsset = 3

// genericValues are field contents too vague to count as real data. An asset
// whose indication, description, target or phase is generic has a gap worth
// a web lookup.
var genericValues = map[string]struct{}{
	"": {}, "undisclosed": {}, "unknown": {}, "tbd": {}, "n/a": {},
	"solid tumor": {}, "solid tumors": {}, "solid cancer": {}, "cancer": {},
	"solid & blood tumor": {}, "blood cancer": {}, "hematologic cancer": {},
	"various solid tumors": {}, "advanced solid tumors": {},
}

// Enricher fills generic field gaps with targeted web search plus a
// single-purpose LLM pass per asset.
type Enricher struct {
	search  serper.Client
	fetcher ContentFetcher
	llm     anthropic.Client
	anth    config.AnthropicConfig
	limit   int
}

// NewEnricher creates an Enricher. limit bounds concurrent per-asset lookups.
func NewEnricher(search serper.Client, fetcher ContentFetcher, llm anthropic.Client, anth config.AnthropicConfig, limit int) *Enricher {
	if limit < 1 {
		limit = 1
	}
	return &Enricher{
		search:  search,
		fetcher: fetcher,
		llm:     llm,
		anth:    anth,
		limit:   limit,
	}
}

// Enrich returns assets with generic gaps filled where the web had answers.
// Assets without gaps pass through untouched; enrichment failures leave the
// asset as it was.
func (e *Enricher) Enrich(ctx context.Context, company string, assets []model.ExtractedAsset) []model.ExtractedAsset {
	out := make([]model.ExtractedAsset, len(assets))
	copy(out, assets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range out {
		if !needsEnrichment(out[i]) {
			continue
		}
		i := i
		g.Go(func() error {
			out[i] = e.enrichOne(gctx, company, out[i])
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// needsEnrichment reports whether any gap is worth a lookup.
func needsEnrichment(a model.ExtractedAsset) bool {
	return isGeneric(a.Indication) ||
		isGeneric(a.Description) ||
		isGeneric(a.TherapeuticTarget) ||
		isGeneric(a.Phase)
}

// isGeneric treats separated lists as generic only when every part is.
func isGeneric(value string) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	normalized := strings.NewReplacer(";", "/", ",", "/").Replace(value)
	for _, part := range strings.Split(normalized, "/") {
		if _, ok := genericValues[strings.ToLower(strings.TrimSpace(part))]; !ok {
			return false
		}
	}
	return true
}

func (e *Enricher) enrichOne(ctx context.Context, company string, asset model.ExtractedAsset) model.ExtractedAsset {
	log := zap.L().With(
		zap.String("company", company),
		zap.String("asset", asset.AssetName),
	)

	query := fmt.Sprintf("%q %q clinical trial", asset.AssetName, company)
	resp, err := e.search.Search(ctx, query, serper.WithNumResults(10))
	if err != nil {
		log.Warn("enrich: search failed", zap.Error(err))
		return asset
	}

	for _, u := range rankEnrichmentURLs(resp.Organic, company) {
		page := e.fetcher.Fetch(ctx, u, true)
		if page.Failed() || len(page.Text) < 200 {
			continue
		}

		updates, err := e.fillGaps(ctx, company, asset, page.Text)
		if err != nil {
			log.Debug("enrich: fill failed", zap.String("url", u), zap.Error(err))
			continue
		}

		asset, _ = applyUpdates(asset, updates, u)
		if !needsEnrichment(asset) {
			break
		}
	}
	return asset
}

// rankEnrichmentURLs orders search hits by trustworthiness for this purpose:
// the company's own non-news pages, then trial registries, then drug
// databases, then everything else.
func rankEnrichmentURLs(results []serper.SearchResult, company string) []string {
	slug := strings.NewReplacer(" ", "", ".", "", ",", "").Replace(strings.ToLower(company))

	var companyPages, trials, databases, other []string
	for _, r := range results {
		urlLower := strings.ToLower(r.Link)
		switch {
		case strings.Contains(strings.NewReplacer(".", "", "-", "").Replace(urlLower), slug):
			if strings.Contains(urlLower, "/news") || strings.Contains(urlLower, "/press") {
				other = append(other, r.Link)
			} else {
				companyPages = append(companyPages, r.Link)
			}
		case strings.Contains(urlLower, "clinicaltrials.gov"):
			trials = append(trials, r.Link)
		case strings.Contains(urlLower, "drugbank") ||
			strings.Contains(urlLower, "adisinsight") ||
			strings.Contains(urlLower, "drugs.com"):
			databases = append(databases, r.Link)
		default:
			other = append(other, r.Link)
		}
	}

	ranked := append(append(append(companyPages, trials...), databases...), other...)
	if len(ranked) > maxURLsPerAsset {
		ranked = ranked[:maxURLsPerAsset]
	}
	return ranked
}

// fieldUpdates is the fill response shape: only the fields the page could
// confidently answer, empty string otherwise.
type fieldUpdates struct {
	Indication        string `json:"indication"`
	TherapeuticTarget string `json:"therapeutic_target"`
	Phase             string `json:"phase"`
	Modality          string `json:"modality"`
	TherapeuticArea   string `json:"therapeutic_area"`
	Description       string `json:"description"`
}

func (e *Enricher) fillGaps(ctx context.Context, company string, asset model.ExtractedAsset, pageText string) (fieldUpdates, error) {
	if len(pageText) > 15000 {
		pageText = pageText[:15000]
	}

	known, _ := json.Marshal(asset.CandidateAsset)
	prompt := fmt.Sprintf(`Extract drug development information from this webpage.

Drug: %s
Company: %s

Current known data:
%s

Webpage text:
%s

Return JSON with ONLY fields you can confidently extract from the text:
{"indication": "...", "therapeutic_target": "...", "phase": "...", "modality": "...", "therapeutic_area": "...", "description": "..."}

Rules:
- "indication" must be a DISEASE or CONDITION (e.g., "NSCLC", "AML"), never a treatment regimen, target, or modality. Join multiple with "; ".
- Be specific: "Non-small cell lung cancer (NSCLC)", not "Solid Tumor".
- Use "" for fields the text does not clearly support.
- Return ONLY valid JSON, no explanation.`, asset.AssetName, company, known, pageText)

	resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.anth.TextModel,
		MaxTokens:   1024,
		Messages:    []anthropic.Message{anthropic.TextMessage(prompt)},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return fieldUpdates{}, err
	}

	var updates fieldUpdates
	raw := trimToJSON(resp.Text())
	if err := json.Unmarshal([]byte(raw), &updates); err != nil {
		return fieldUpdates{}, err
	}
	return updates, nil
}

// applyUpdates fills only generic gaps; a known real value is never
// overwritten by enrichment. The source URL is recorded when anything
// changed.
func applyUpdates(asset model.ExtractedAsset, updates fieldUpdates, sourceURL string) (model.ExtractedAsset, bool) {
	changed := false
	fill := func(dst *string, v string) {
		if v != "" && !isGeneric(v) && isGeneric(*dst) {
			*dst = v
			changed = true
		}
	}
	fill(&asset.Indication, updates.Indication)
	fill(&asset.TherapeuticTarget, updates.TherapeuticTarget)
	fill(&asset.Phase, updates.Phase)
	fill(&asset.Modality, updates.Modality)
	fill(&asset.TherapeuticArea, updates.TherapeuticArea)
	fill(&asset.Description, updates.Description)

	if changed && !containsURL(asset.SourceURLs, sourceURL) {
		asset.SourceURLs = append(append([]string{}, asset.SourceURLs...), sourceURL)
	}
	return asset, changed
}

func containsURL(urls []string, u string) bool {
	for _, existing := range urls {
		if existing == u {
			return true
		}
	}
	return false
}

// trimToJSON strips fences and prose around the outermost JSON object.
func trimToJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
