package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptTemplate is one system prompt plus a user message template
type PromptTemplate struct {
	System       string `yaml:"system"`
	UserTemplate string `yaml:"user_template"`

	tmpl *template.Template
}

// PromptConfig holds the prompts used by the OpenAI adapters
type PromptConfig struct {
	Structuring    PromptTemplate `yaml:"structuring"`
	Vision         PromptTemplate `yaml:"vision"`
	Classification PromptTemplate `yaml:"classification"`
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() (*PromptConfig, error) {
	return ParsePrompts(defaultPrompts)
}

// LoadPrompts loads prompt configuration from a YAML file
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts decodes prompts and compiles their templates
func ParsePrompts(data []byte) (*PromptConfig, error) {
	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	for name, p := range map[string]*PromptTemplate{
		"structuring":    &prompts.Structuring,
		"vision":         &prompts.Vision,
		"classification": &prompts.Classification,
	} {
		if p.System == "" || p.UserTemplate == "" {
			return nil, fmt.Errorf("prompt %s: system and user_template are required", name)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(p.UserTemplate)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: failed to parse template: %w", name, err)
		}
		p.tmpl = tmpl
	}

	return &prompts, nil
}

// Render executes the user template with data
func (p *PromptTemplate) Render(data interface{}) (string, error) {
	if p.tmpl == nil {
		return "", fmt.Errorf("prompt template not compiled")
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
