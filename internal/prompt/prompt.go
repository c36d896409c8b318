// Package prompt renders the system prompt sent for documentation generation.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/dshills/docgen/pkg/types"
)

// ErrEmptyCode is returned when there is no source to document
var ErrEmptyCode = errors.New("source code is empty")

const markdownTemplate = `You are a senior {{.LanguageName}} engineer writing reference documentation.

Document the following {{.LanguageName}} source file in Markdown.

Include:
- A one-paragraph overview of the file's purpose
- Every exported or public {{.Units}} with its parameters, return values and errors
- Usage examples in fenced {{.Fence}} code blocks
- Notable dependencies and side effects
{{- if .Guidance}}
- {{.Guidance}}
{{- end}}

Respond with Markdown only.

Source:
` + "```" + `{{.Fence}}
{{.Code}}
` + "```" + `
`

const jsonTemplate = `You are a senior {{.LanguageName}} engineer writing machine-readable documentation.

Document the following {{.LanguageName}} source file as a single JSON object with the keys
"summary" (string), "exports" (array of objects with "name", "kind", "signature", "description"),
"dependencies" (array of strings) and "examples" (array of strings).
{{- if .Guidance}}
{{.Guidance}}
{{- end}}

Respond with JSON only, no prose and no code fences.

Source:
{{.Code}}
`

type languageInfo struct {
	Name     string
	Fence    string
	Units    string
	Guidance string
}

var languages = map[types.Language]languageInfo{
	types.LanguageTypeScript: {"TypeScript", "typescript", "function, class, interface and type", "Describe generic type parameters and React props where present."},
	types.LanguageJavaScript: {"JavaScript", "javascript", "function, class and constant", "Infer parameter types from usage and JSDoc when present."},
	types.LanguagePython:     {"Python", "python", "function, class and method", "Note type hints and raised exceptions."},
	types.LanguageJava:       {"Java", "java", "class, interface and public method", "Note checked exceptions and annotations."},
	types.LanguageGo:         {"Go", "go", "function, type and method", "Note goroutine safety and returned error values."},
}

// Data is the value passed to prompt templates
type Data struct {
	Code         string
	Language     types.Language
	LanguageName string
	Fence        string
	Units        string
	Guidance     string
	Format       types.OutputFormat
}

// Builder renders prompts per output format
type Builder struct {
	templates map[types.OutputFormat]*template.Template
}

// NewBuilder creates a Builder. overrides maps an output format name to a
// replacement template body; missing formats use the built-in templates.
func NewBuilder(overrides map[string]string) (*Builder, error) {
	bodies := map[types.OutputFormat]string{
		types.FormatMarkdown: markdownTemplate,
		types.FormatJSON:     jsonTemplate,
	}
	for name, body := range overrides {
		format, err := types.ParseOutputFormat(name)
		if err != nil {
			return nil, fmt.Errorf("prompt template override: %w", err)
		}
		if strings.TrimSpace(body) != "" {
			bodies[format] = body
		}
	}

	b := &Builder{templates: make(map[types.OutputFormat]*template.Template, len(bodies))}
	for format, body := range bodies {
		tmpl, err := template.New(string(format)).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt template: %w", format, err)
		}
		b.templates[format] = tmpl
	}
	return b, nil
}

var defaultBuilder = mustDefault()

func mustDefault() *Builder {
	b, err := NewBuilder(nil)
	if err != nil {
		panic(err)
	}
	return b
}

// Build renders a prompt with the built-in templates
func Build(code string, lang types.Language, format types.OutputFormat) (string, error) {
	return defaultBuilder.Build(code, lang, format)
}

// Build renders the prompt for code written in lang
func (b *Builder) Build(code string, lang types.Language, format types.OutputFormat) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", ErrEmptyCode
	}

	tmpl, ok := b.templates[format]
	if !ok {
		return "", &types.ValidationError{Field: "output_format", Value: string(format), Err: types.ErrInvalidOutputFormat}
	}

	info, ok := languages[lang]
	if !ok {
		info = languageInfo{Name: string(lang), Fence: string(lang), Units: "declaration"}
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, Data{
		Code:         code,
		Language:     lang,
		LanguageName: info.Name,
		Fence:        info.Fence,
		Units:        info.Units,
		Guidance:     info.Guidance,
		Format:       format,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
