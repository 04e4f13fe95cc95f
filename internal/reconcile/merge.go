package reconcile

import (
	"strings"

	"github.com/helix-research/pipeline-cli/internal/model"
)

// Policy controls whether new pages may introduce assets the overview page
// did not list.
type Policy string

const (
	// PolicyEnrichOnly treats the overview page as the authoritative roster:
	// detail pages may fill gaps in known assets but never add new ones. This
	// is the default; it keeps hallucinated or partial detail-page
	// extractions from inflating the asset count.
	PolicyEnrichOnly Policy = "enrich_only"

	// PolicyAdditive lets any page introduce new assets.
	PolicyAdditive Policy = "additive"
)

// ParsePolicy maps a config string to a Policy, defaulting to enrich-only.
func ParsePolicy(s string) Policy {
	if s == string(PolicyAdditive) {
		return PolicyAdditive
	}
	return PolicyEnrichOnly
}

// Merge folds newAssets into existing and returns the merged set. Pure and
// deterministic: existing assets keep their order, additive newcomers are
// appended in input order, inputs are never mutated.
//
// Identity is the normalized asset name. For identity matches, descriptive
// fields are merged field-by-field: a real value replaces a placeholder, and
// two differing real values are concatenated with "; " (divergent indication
// lists across pages are additive, not conflicting). Phase and the asset name
// itself are never blindly overwritten. Assets with placeholder identity are
// always retained as distinct entries.
func Merge(existing, newAssets []model.ExtractedAsset, policy Policy) []model.ExtractedAsset {
	merged := make([]model.ExtractedAsset, len(existing))
	copy(merged, existing)

	// Index existing by identity; first occurrence wins.
	index := make(map[string]int, len(merged))
	for i, a := range merged {
		key := NormalizeIdentity(a.AssetName)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	for _, incoming := range newAssets {
		key := NormalizeIdentity(incoming.AssetName)

		if key == "" {
			// Placeholder identity: never collapsed, kept as its own entry
			// regardless of policy (it was observed on some page).
			merged = append(merged, incoming)
			continue
		}

		if i, ok := index[key]; ok {
			merged[i] = mergeFields(merged[i], incoming)
			continue
		}

		if policy == PolicyAdditive {
			index[key] = len(merged)
			merged = append(merged, incoming)
		}
	}

	return merged
}

// mergeFields combines one incoming asset into the kept entry and returns the
// updated copy.
func mergeFields(kept, incoming model.ExtractedAsset) model.ExtractedAsset {
	kept.TherapeuticArea = mergeValue(kept.TherapeuticArea, incoming.TherapeuticArea)
	kept.Modality = mergeValue(kept.Modality, incoming.Modality)
	kept.Description = mergeValue(kept.Description, incoming.Description)
	kept.TherapeuticTarget = mergeValue(kept.TherapeuticTarget, incoming.TherapeuticTarget)
	kept.Indication = mergeValue(kept.Indication, incoming.Indication)

	// Phase is positional data, not descriptive richness: fill only when the
	// kept entry has none.
	if IsPlaceholder(kept.Phase) && !IsPlaceholder(incoming.Phase) {
		kept.Phase = incoming.Phase
	}

	kept.SourceURLs = appendURLs(kept.SourceURLs, incoming.SourceURLs)
	return kept
}

// mergeValue resolves one descriptive field between a kept and an incoming
// value per the precedence rules.
func mergeValue(kept, incoming string) string {
	if IsPlaceholder(incoming) {
		return kept
	}
	if IsPlaceholder(kept) {
		return incoming
	}
	if strings.EqualFold(strings.TrimSpace(kept), strings.TrimSpace(incoming)) {
		return kept
	}
	// Both real and different: additive, not conflicting.
	if containsValue(kept, incoming) {
		return kept
	}
	return kept + "; " + incoming
}

// containsValue reports whether list (a "; "-joined value) already holds v.
func containsValue(list, v string) bool {
	for _, part := range strings.Split(list, ";") {
		if strings.EqualFold(strings.TrimSpace(part), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func appendURLs(kept, incoming []string) []string {
	out := make([]string, len(kept))
	copy(out, kept)
	for _, u := range incoming {
		dup := false
		for _, k := range out {
			if k == u {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, u)
		}
	}
	return out
}
