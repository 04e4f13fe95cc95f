package model

// ExtractionMethod records which extraction path produced an asset.
type ExtractionMethod string

const (
	MethodText   ExtractionMethod = "text"
	MethodVision ExtractionMethod = "vision"
	MethodHybrid ExtractionMethod = "hybrid"
)

// CandidateAsset is the raw unit of LLM extraction output: one development
// program as reported on a single page. All fields are free text; AssetName
// is the only required field and the eventual merge key.
type CandidateAsset struct {
	TherapeuticArea   string `json:"therapeutic_area"`
	Modality          string `json:"modality"`
	Phase             string `json:"phase"`
	AssetName         string `json:"asset_name"`
	Description       string `json:"description"`
	TherapeuticTarget string `json:"therapeutic_target"`
	Indication        string `json:"indication"`
}

// ExtractedAsset is a CandidateAsset plus provenance metadata. This is the
// unit stored in a company's running result set and handed to export.
type ExtractedAsset struct {
	CandidateAsset

	Company    string           `json:"company"`
	SourceURLs []string         `json:"source_urls"`
	Method     ExtractionMethod `json:"extraction_method"`
}

// NewExtractedAsset wraps an LLM candidate with provenance.
func NewExtractedAsset(c CandidateAsset, company, sourceURL string, method ExtractionMethod) ExtractedAsset {
	return ExtractedAsset{
		CandidateAsset: c,
		Company:        company,
		SourceURLs:     []string{sourceURL},
		Method:         method,
	}
}

// CompanyResult holds everything extracted for one company in a run.
type CompanyResult struct {
	Company     string           `json:"company"`
	OverviewURL string           `json:"overview_url"`
	Assets      []ExtractedAsset `json:"assets"`
	DetailPages int              `json:"detail_pages"`
	Err         string           `json:"error,omitempty"`
}
