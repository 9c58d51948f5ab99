package analyzer

import (
	"fmt"
	"strings"

	"github.com/mkarev/document-analysis-service/internal/models"
)

// schemaField declares one output field of the analysis result: its JSON
// schema fragment, the instruction clause that asks for it, and the option
// that switches it on. Schema properties, the required list and the prompt
// clauses are all derived from one filter pass over this table, so a field
// name and its requiredness can never diverge.
type schemaField struct {
	name    string
	schema  map[string]any
	task    string
	include func(models.AnalysisOptions) bool
}

func always(models.AnalysisOptions) bool { return true }

var resultFields = []schemaField{
	{
		name:    "title",
		schema:  map[string]any{"type": "string"},
		task:    "a short title for the document",
		include: always,
	},
	{
		name:    "summary",
		schema:  map[string]any{"type": "string"},
		task:    "a concise summary of the whole document",
		include: always,
	},
	{
		name: "blocks",
		schema: map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"summary": map[string]any{"type": "string"},
				},
				"required":             []string{"title", "summary"},
				"additionalProperties": false,
			},
		},
		task:    "an ordered list of content blocks, each with a title and a summary",
		include: always,
	},
	{
		name:    "theme",
		schema:  map[string]any{"type": "string"},
		task:    "the main theme of the document",
		include: func(o models.AnalysisOptions) bool { return o.ShowTopics },
	},
	{
		name: "tags",
		schema: map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		task:    "a list of short tags characterizing the document",
		include: func(o models.AnalysisOptions) bool { return o.ShowTags },
	},
	{
		name:    "recommendations",
		schema:  map[string]any{"type": "string"},
		task:    "recommendations for the reader based on the document",
		include: func(o models.AnalysisOptions) bool { return o.ShowRecommendations },
	},
}

func selectedFields(opts models.AnalysisOptions) []schemaField {
	var selected []schemaField
	for _, f := range resultFields {
		if f.include(opts) {
			selected = append(selected, f)
		}
	}
	return selected
}

// BuildSchema returns the strict JSON schema for the requested options and
// its required field list. Every present property is required.
func BuildSchema(opts models.AnalysisOptions) (map[string]any, []string) {
	selected := selectedFields(opts)

	properties := make(map[string]any, len(selected))
	required := make([]string, 0, len(selected))
	for _, f := range selected {
		properties[f.name] = f.schema
		required = append(required, f.name)
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	return schema, required
}

// BuildPrompt renders the analysis instruction. Task clauses for options the
// caller did not request are omitted entirely.
func BuildPrompt(documentText string, opts models.AnalysisOptions) string {
	selected := selectedFields(opts)

	var tasks strings.Builder
	for i, f := range selected {
		tasks.WriteString(fmt.Sprintf("%d. Provide %s (field %q).\n", i+1, f.task, f.name))
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following document and respond with a single JSON object matching the requested schema.\n\n")
	sb.WriteString("Tasks:\n")
	sb.WriteString(tasks.String())
	if extra := strings.TrimSpace(opts.Prompt); extra != "" {
		sb.WriteString("\nAdditional instructions from the user:\n")
		sb.WriteString(extra)
		sb.WriteString("\n")
	}
	sb.WriteString("\nDocument text:\n")
	sb.WriteString(documentText)
	return sb.String()
}
