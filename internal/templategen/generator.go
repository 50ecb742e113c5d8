package templategen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-discovery/internal/artifact"
	"github.com/atlas-desktop/strategy-discovery/internal/dataaccessor"
	"github.com/atlas-desktop/strategy-discovery/internal/llm"
)

// ErrGenerationFailed is returned after the schema-validation retry budget
// is exhausted — spec.md §4.6 step 5's generation_failed(llm_schema).
type ErrGenerationFailed struct {
	TemplateName string
	LastError    error
	Attempts     int
}

func (e *ErrGenerationFailed) Error() string {
	return fmt.Sprintf("templategen: generation_failed(llm_schema): template %q exhausted %d attempts: %v", e.TemplateName, e.Attempts, e.LastError)
}

// Generator is TemplateParameterGenerator.
type Generator struct {
	logger    *zap.Logger
	client    llm.Client
	registry  *Registry
	manifest  *dataaccessor.Manifest
	model     string
	retryMax  int
}

// Config configures a Generator.
type Config struct {
	Model    string
	RetryMax int // default 3
}

// New builds a Generator.
func New(logger *zap.Logger, client llm.Client, registry *Registry, manifest *dataaccessor.Manifest, cfg Config) *Generator {
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	return &Generator{
		logger:   logger.Named("templategen"),
		client:   client,
		registry: registry,
		manifest: manifest,
		model:    cfg.Model,
		retryMax: retryMax,
	}
}

// Generate runs steps 1-6 of spec.md §4.6 for the named template,
// returning a CodeArtifact or ErrGenerationFailed after retryMax+1 total
// LLM calls (property P9).
func (g *Generator) Generate(ctx context.Context, templateName, feedback string) (*artifact.CodeArtifact, error) {
	tmpl, ok := g.registry.Get(templateName)
	if !ok {
		return nil, fmt.Errorf("templategen: unknown template %q", templateName)
	}

	prompt := g.buildPrompt(tmpl, feedback, "")
	var lastErr error

	for attempt := 0; attempt <= g.retryMax; attempt++ {
		if attempt > 0 {
			prompt = g.buildPrompt(tmpl, feedback, lastErr.Error())
		}

		resp, err := g.client.Complete(ctx, llm.Request{
			Model:       g.model,
			Instruction: "Respond with a single JSON object matching the schema. No prose, no markdown fences.",
			Prompt:      prompt,
			Temperature: 0.7,
			MaxTokens:   512,
		})
		if err != nil {
			lastErr = err
			continue
		}

		params, err := parseJSONObject(resp.Content)
		if err != nil {
			lastErr = err
			continue
		}
		if err := tmpl.Validate(params); err != nil {
			lastErr = err
			continue
		}

		return &artifact.CodeArtifact{
			CodeText:      tmpl.Materialize(params),
			ParameterDict: params,
			TemplateName:  tmpl.Name,
			ModelID:       g.model,
		}, nil
	}

	return nil, &ErrGenerationFailed{TemplateName: templateName, LastError: lastErr, Attempts: g.retryMax + 1}
}

// buildPrompt lists adjusted/preferred data keys before forbidden ones
// (spec.md §9: reversing this ordering measurably hurt generator success).
func (g *Generator) buildPrompt(tmpl TemplateSchema, feedback, priorError string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\n", tmpl.Name)
	fmt.Fprintf(&b, "Schema example: %s\n", tmpl.FewShot)

	b.WriteString("Permitted data keys (adjusted, preferred):\n")
	for _, k := range g.manifest.Keys(dataaccessor.CategoryAdjustedPrice) {
		fmt.Fprintf(&b, "  - %s\n", k)
	}
	b.WriteString("Permitted data keys (technical indicators):\n")
	for _, k := range g.manifest.Keys(dataaccessor.CategoryTechnical) {
		fmt.Fprintf(&b, "  - %s\n", k)
	}
	b.WriteString("Forbidden keys (never reference these):\n")
	for _, k := range g.manifest.Keys(dataaccessor.CategoryRawPrice) {
		fmt.Fprintf(&b, "  - %s\n", k)
	}

	if feedback != "" {
		fmt.Fprintf(&b, "Recent performance feedback:\n%s\n", feedback)
	}
	if priorError != "" {
		fmt.Fprintf(&b, "Your previous reply was rejected: %s\nFix it and reply again as a single JSON object.\n", priorError)
	}
	return b.String()
}

func parseJSONObject(content string) (map[string]interface{}, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(content), &params); err != nil {
		return nil, fmt.Errorf("reply is not a valid JSON object: %w", err)
	}
	return params, nil
}
