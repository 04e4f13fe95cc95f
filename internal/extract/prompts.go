package extract

import (
	"fmt"
	"strings"
)

// systemPrompt frames every extraction call.
const systemPrompt = `You are a pharmaceutical pipeline analyst. You extract drug development programs from company website content and return them as strict JSON. You never invent programs that are not present in the source material, and you never return prose outside the JSON object.`

// fieldGuide defines the seven output fields. Shared across text and vision
// prompts so both modes converge on the same vocabulary.
const fieldGuide = `An asset is a named drug or compound development program. A bare disease, target, or modality name ("NSCLC", "PD-1", "our ADC platform") is NOT an asset; skip rows with no identifiable drug or compound identifier.

Each asset object has exactly these fields (use "" when the page does not state a value):
- "asset_name": the drug or compound identifier, e.g. "ABL001" or "Tiragolumab". Required.
- "therapeutic_area": broad disease area, e.g. "Oncology", "Immunology".
- "modality": the drug class, e.g. "monoclonal antibody", "ADC", "small molecule", "cell therapy".
- "phase": the stated development stage, e.g. "Preclinical", "Phase 1", "Phase 2", "Phase 3", "Approved".
- "description": one or two sentences summarizing mechanism and status in your own words from the page.
- "therapeutic_target": the molecular target, e.g. "BCMA", "PD-1", "TIGIT".
- "indication": the disease(s) under study at this phase. Join multiple indications with "; ".

Rules:
- A program with several indications at the SAME phase is ONE object, with the indications joined by "; ".
- A program in DIFFERENT phases for different indications becomes SEPARATE objects, one per phase, each listing the indications at that phase.
- Copy names exactly as written; do not normalize casing or strip suffixes.
- Return {"assets": []} when the content describes no development programs.`

// jsonReminder closes every prompt.
const jsonReminder = `Respond with ONLY a JSON object of the form {"assets": [...]} and nothing else.`

// textPrompt builds the prompt for text-mode extraction. content is already
// cleaned and capped by the caller.
func textPrompt(company, url, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract every drug development program from this page of %s's website.\n\n", company)
	fmt.Fprintf(&b, "Source URL: %s\n\n", url)
	b.WriteString(fieldGuide)
	b.WriteString("\n\nPage content:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---\n\n")
	b.WriteString(jsonReminder)
	return b.String()
}

// visionPrompt builds the text portion of a vision-mode request. The
// screenshots are attached as separate image blocks before this text.
func visionPrompt(company, url string, tiles int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %d image(s) above are overlapping screenshot tiles of one page from %s's website (%s), captured top to bottom. ", tiles, company, url)
	b.WriteString("Adjacent tiles overlap, so a program visible in two tiles is still ONE program; deduplicate by asset name.\n\n")
	b.WriteString("Pipeline pages often show programs as rows in a chart where a horizontal bar, arrow, or shaded hexagons indicate how far development has progressed. ")
	b.WriteString("Read the phase from where the bar ends relative to the column headers.\n\n")
	b.WriteString(fieldGuide)
	b.WriteString("\n\n")
	b.WriteString(jsonReminder)
	return b.String()
}

// hybridPrompt builds the text portion of a hybrid request: screenshots plus
// the page text, for pages where the chart and the prose disagree or
// complement each other.
func hybridPrompt(company, url, content string, tiles int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %d image(s) above are overlapping screenshot tiles of one page from %s's website (%s). ", tiles, company, url)
	b.WriteString("Below is the extracted text of the same page. Use the images to read pipeline charts and the text for details the charts omit; deduplicate by asset name.\n\n")
	b.WriteString(fieldGuide)
	b.WriteString("\n\nPage text:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---\n\n")
	b.WriteString(jsonReminder)
	return b.String()
}

// retryPrompt quotes a validation failure back to the model so the next
// attempt can correct it.
func retryPrompt(validationErr string) string {
	return fmt.Sprintf("Your previous response failed validation: %s\n\nReturn the corrected JSON object only. %s", validationErr, jsonReminder)
}
