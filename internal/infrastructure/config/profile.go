package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// SiteProfile describes how to drive the target chat site.
type SiteProfile struct {
	Name      string       `yaml:"name" toml:"name"`
	BaseURL   string       `yaml:"base_url" toml:"base_url"`
	HomePath  string       `yaml:"home_path" toml:"home_path"`
	ChatPath  string       `yaml:"chat_path" toml:"chat_path"`
	UserAgent string       `yaml:"user_agent" toml:"user_agent"`
	Form      FormFields   `yaml:"form" toml:"form"`
	Token     TokenProfile `yaml:"token" toml:"token"`
	Reply     ReplyProfile `yaml:"reply" toml:"reply"`
	Models    []ModelEntry `yaml:"models" toml:"models"`
}

// FormFields names the fields posted to the chat endpoint.
type FormFields struct {
	Prompt string `yaml:"prompt" toml:"prompt"`
	Model  string `yaml:"model" toml:"model"`
	Token  string `yaml:"token" toml:"token"`
	Client string `yaml:"client" toml:"client"`
}

// TokenProfile locates the per-session anti-automation token on the home page.
// Script selects an inline script whose completion value is the token;
// Input selects an element whose value attribute holds it.
type TokenProfile struct {
	Script string `yaml:"script" toml:"script"`
	Input  string `yaml:"input" toml:"input"`
}

// ReplyProfile tells the translator where the reply lives in the raw output.
// Region is a CSS selector, or an XPath expression when it starts with "/".
// Chrome lists selectors removed from the region before extraction; Strip lists
// regular expressions removed from the extracted text.
type ReplyProfile struct {
	Region    string   `yaml:"region" toml:"region"`
	Chrome    []string `yaml:"chrome" toml:"chrome"`
	Strip     []string `yaml:"strip" toml:"strip"`
	JSONField string   `yaml:"json_field" toml:"json_field"`
}

// ModelEntry is one catalog entry.
type ModelEntry struct {
	ID      string `yaml:"id" toml:"id"`
	Name    string `yaml:"name" toml:"name"`
	OwnedBy string `yaml:"owned_by" toml:"owned_by"`
}

// DefaultProfile returns the built-in profile for the toolbaz writer chat.
func DefaultProfile() SiteProfile {
	return SiteProfile{
		Name:      "toolbaz",
		BaseURL:   "https://toolbaz.com",
		HomePath:  "/writer/chat-gpt-alternative",
		ChatPath:  "/writing.php",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
		Form: FormFields{
			Prompt: "text",
			Model:  "model",
			Token:  "capcha",
			Client: "session_id",
		},
		Token: TokenProfile{
			Script: "script#tz-token",
			Input:  "input[name=capcha]",
		},
		Reply: ReplyProfile{
			Region: "body",
			Chrome: []string{"script", "style", "noscript", ".ad", "[data-ui-chrome]"},
			Strip:  []string{`\[model:[^\]]*\]`, `(?i)powered by toolbaz\.?`},
		},
		Models: []ModelEntry{
			{ID: "toolbaz-v4.5-fast", Name: "Toolbaz v4.5 Fast", OwnedBy: "toolbaz"},
			{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", OwnedBy: "google"},
			{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", OwnedBy: "google"},
			{ID: "claude-sonnet-4", Name: "Claude Sonnet 4", OwnedBy: "anthropic"},
			{ID: "gpt-5", Name: "GPT-5", OwnedBy: "openai"},
			{ID: "grok-4-fast", Name: "Grok 4 Fast", OwnedBy: "xai"},
		},
	}
}

// LoadProfile reads a YAML or TOML profile on top of the defaults.
// Fields absent from the file keep their default values.
func LoadProfile(path string) (SiteProfile, error) {
	profile := DefaultProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("failed to read site profile: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &profile)
	case ".toml":
		err = toml.Unmarshal(data, &profile)
	default:
		return profile, fmt.Errorf("unsupported site profile format %q", ext)
	}
	if err != nil {
		return profile, fmt.Errorf("failed to parse site profile %s: %w", path, err)
	}

	return profile, profile.Validate()
}

// ResolveProfile returns the profile named by cfg, applying env overrides.
func ResolveProfile(cfg SiteConfig) (SiteProfile, error) {
	profile := DefaultProfile()
	if cfg.ProfilePath != "" {
		loaded, err := LoadProfile(cfg.ProfilePath)
		if err != nil {
			return loaded, err
		}
		profile = loaded
	}
	if cfg.BaseURL != "" {
		profile.BaseURL = cfg.BaseURL
	}
	if cfg.UserAgent != "" {
		profile.UserAgent = cfg.UserAgent
	}
	return profile, profile.Validate()
}

// Validate checks the fields the driver cannot work without.
func (p SiteProfile) Validate() error {
	switch {
	case p.BaseURL == "":
		return fmt.Errorf("site profile %q: base_url is required", p.Name)
	case p.ChatPath == "":
		return fmt.Errorf("site profile %q: chat_path is required", p.Name)
	case p.Form.Prompt == "":
		return fmt.Errorf("site profile %q: form.prompt is required", p.Name)
	case len(p.Models) == 0:
		return fmt.Errorf("site profile %q: at least one model is required", p.Name)
	}
	for _, m := range p.Models {
		if m.ID == "" {
			return fmt.Errorf("site profile %q: model without id", p.Name)
		}
	}
	return nil
}
