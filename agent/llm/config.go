// Package llm adapts the eino chat model boundary to the attendant's
// contract types.
package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/trenchburger/attendant/agent/contract"
	openrouterx "github.com/trenchburger/attendant/pkg/openrouter"
)

// ModelRole selects per-role model overrides.
type ModelRole string

const (
	RoleAttendant  ModelRole = "attendant"
	RoleSummarizer ModelRole = "summarizer"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	AttendantModel        string  `envconfig:"ATTENDANT_MODEL" split_words:"true"`
	SummarizerModel       string  `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	AttendantTemperature  float32 `envconfig:"ATTENDANT_TEMPERATURE" split_words:"true" default:"-1"`
	SummarizerTemperature float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the endpoint config for a role, applying model and
// temperature overrides when set.
func (c Config) OpenRouterFor(role ModelRole) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleAttendant:
		if v := strings.TrimSpace(c.AttendantModel); v != "" {
			modelName = v
		}
		if c.AttendantTemperature >= 0 {
			temp = c.AttendantTemperature
		}
	case RoleSummarizer:
		if v := strings.TrimSpace(c.SummarizerModel); v != "" {
			modelName = v
		}
		if c.SummarizerTemperature >= 0 {
			temp = c.SummarizerTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
