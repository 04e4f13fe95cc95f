package fetch

import (
	"net/url"
	"regexp"
	"strings"
)

// drugCodeRe matches path segments like "ABL-001", "olx10212" or "TTAC0001":
// the short letter-digit codes companies assign to development programs.
var drugCodeRe = regexp.MustCompile(`(?i)^/?[A-Z]{2,4}[-_]?\d{2,4}[A-Za-z]?$`)

// drugNameRe matches a single capitalized word segment, the shape of a
// generic drug name page ("/Tiragolumab").
var drugNameRe = regexp.MustCompile(`^/?[A-Z][a-z]{4,}$`)

// skipPathFragments name sections of a company site that never describe an
// individual asset.
var skipPathFragments = []string{
	"news", "press", "career", "contact", "investor",
	"about", "team", "leadership", "login", "logout",
	"board", "history", "technology", "partner", "media",
	"procedure", "recruit", "executive", "bod", "sab",
}

// pipelinePathFragments mark paths that likely describe assets.
var pipelinePathFragments = []string{
	"pipeline", "product", "drug", "candidate", "program",
	"rnd", "r-d", "research", "development",
}

// FilterPipelineLinks narrows raw page links to likely drug/pipeline detail
// pages: same-domain URLs whose path names a pipeline section or whose last
// segment looks like a drug code or drug name. Order of first appearance is
// preserved; duplicates are dropped.
func FilterPipelineLinks(baseURL string, links []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string

	for _, href := range links {
		resolved := ResolveURL(baseURL, href)
		if resolved == "" {
			continue
		}
		u, err := url.Parse(resolved)
		if err != nil || u.Host != base.Host {
			continue
		}

		pathLower := strings.ToLower(u.Path)
		if hasAnyFragment(pathLower, skipPathFragments) {
			continue
		}

		segment := lastSegment(u.Path)
		isPipelinePath := hasAnyFragment(pathLower, pipelinePathFragments)
		isDrugCode := drugCodeRe.MatchString(segment)
		isDrugName := drugNameRe.MatchString(segment) && len(segment) > 5

		if !isPipelinePath && !isDrugCode && !isDrugName {
			continue
		}

		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	}

	return out
}

func hasAnyFragment(path string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(path, f) {
			return true
		}
	}
	return false
}

func lastSegment(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
