package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helix-research/pipeline-cli/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		title     string
		snippet   string
		wantType  model.URLType
		wantScore float64
	}{
		{
			name:      "company pipeline overview",
			url:       "https://acmebio.com/pipeline",
			wantType:  model.URLOverview,
			wantScore: 1.0,
		},
		{
			name:      "numbered drug detail page",
			url:       "https://acmebio.com/en/company/pipeline02",
			wantType:  model.URLDrugSpecific,
			wantScore: 0.8,
		},
		{
			name:      "company page titled pipeline",
			url:       "https://acmebio.com/science",
			title:     "Our Pipeline",
			wantType:  model.URLOverview,
			wantScore: 0.9,
		},
		{
			name:      "company product page",
			url:       "https://acmebio.com/products/abl001",
			wantType:  model.URLDrugSpecific,
			wantScore: 0.7,
		},
		{
			name:      "company press release",
			url:       "https://acmebio.com/news/phase-2-results",
			wantType:  model.URLNews,
			wantScore: 0.4,
		},
		{
			name:      "other company site page",
			url:       "https://acmebio.com/platform",
			wantType:  model.URLDrugSpecific,
			wantScore: 0.5,
		},
		{
			name:      "third-party pipeline database",
			url:       "https://synapse.patsnap.com/drug/xyz",
			wantType:  model.URLOverview,
			wantScore: 0.6,
		},
		{
			name:      "biotech news outlet",
			url:       "https://www.biospace.com/article",
			wantType:  model.URLNews,
			wantScore: 0.4,
		},
		{
			name:      "off-domain page mentioning pipeline",
			url:       "https://example.com/report",
			snippet:   "the company's pipeline spans oncology",
			wantType:  model.URLOverview,
			wantScore: 0.5,
		},
		{
			name:      "unrelated page",
			url:       "https://example.com/weather",
			wantType:  model.URLIrrelevant,
			wantScore: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urlType, score := Classify(tt.url, tt.title, tt.snippet, "Acme Bio")
			assert.Equal(t, tt.wantType, urlType)
			assert.Equal(t, tt.wantScore, score)
		})
	}
}
