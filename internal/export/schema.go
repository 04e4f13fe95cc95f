// Package export projects reconciled assets onto a user-defined column
// schema and writes XLSX or CSV output. Mapping happens late: the pipeline's
// typed assets stay typed until this final projection.
package export

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/helix-research/pipeline-cli/internal/model"
)

// Placeholder fills cells whose value could not be determined.
const Placeholder = "Undisclosed"

// SchemaField is one output column.
type SchemaField struct {
	Name     string   `json:"name"`
	Required bool     `json:"required,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Default  string   `json:"default,omitempty"`
}

// Schema is the user-defined output column set, in order.
type Schema struct {
	Fields []SchemaField `json:"fields"`
}

// fieldAliases maps each asset attribute to the column names users commonly
// give it. Matching is case- and separator-insensitive.
var fieldAliases = map[string][]string{
	"therapeutic_area":   {"area", "therapy area", "disease area", "therapeutic area"},
	"modality":           {"platform", "technology", "drug type", "modality"},
	"phase":              {"stage", "development phase", "clinical stage", "phase"},
	"asset_name":         {"drug", "compound", "candidate", "program", "asset name", "asset"},
	"description":        {"summary", "mechanism", "moa", "description"},
	"therapeutic_target": {"target", "molecular target", "therapeutic target"},
	"indication":         {"disease", "condition", "indication"},
	"company":            {"sponsor", "developer", "company"},
}

// DefaultSchema returns the standard eight-column output.
func DefaultSchema() Schema {
	return Schema{Fields: []SchemaField{
		{Name: "Therapeutic Area"},
		{Name: "Modality"},
		{Name: "Phase"},
		{Name: "Asset Name", Required: true},
		{Name: "Description"},
		{Name: "Therapeutic Target"},
		{Name: "Indication"},
		{Name: "Company"},
	}}
}

// LoadSchema reads a schema definition from a JSON file.
func LoadSchema(path string) (Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, eris.Wrap(err, "export: read schema")
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return Schema{}, eris.Wrap(err, "export: parse schema")
	}
	if len(s.Fields) == 0 {
		return Schema{}, eris.New("export: schema has no fields")
	}
	return s, nil
}

// ColumnOrder returns the output column names in schema order, plus the
// trailing provenance column.
func (s Schema) ColumnOrder() []string {
	cols := make([]string, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, "Sources")
}

// MapAssets projects assets onto the schema: one ordered row per asset,
// aligned with ColumnOrder. Empty and placeholder values become the field
// default.
func MapAssets(assets []model.ExtractedAsset, s Schema) [][]string {
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, mapAsset(a, s))
	}
	return rows
}

func mapAsset(a model.ExtractedAsset, s Schema) []string {
	values := map[string]string{
		"therapeutic_area":   a.TherapeuticArea,
		"modality":           a.Modality,
		"phase":              a.Phase,
		"asset_name":         a.AssetName,
		"description":        a.Description,
		"therapeutic_target": a.TherapeuticTarget,
		"indication":         a.Indication,
		"company":            a.Company,
	}

	row := make([]string, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		fallback := f.Default
		if fallback == "" {
			fallback = Placeholder
		}

		attr := matchField(f)
		if attr == "" {
			row = append(row, fallback)
			continue
		}
		v := values[attr]
		if v == "" || v == Placeholder {
			v = fallback
		}
		row = append(row, v)
	}
	return append(row, strings.Join(a.SourceURLs, "; "))
}

// matchField resolves a schema field to an asset attribute via the alias
// table. Returns "" when nothing matches.
func matchField(f SchemaField) string {
	candidates := append([]string{f.Name}, f.Aliases...)
	for attr, aliases := range fieldAliases {
		for _, c := range candidates {
			n := normalizeName(c)
			if n == normalizeName(attr) {
				return attr
			}
			for _, alias := range aliases {
				if n == normalizeName(alias) {
					return attr
				}
			}
		}
	}
	return ""
}

func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.TrimSpace(s)
}
