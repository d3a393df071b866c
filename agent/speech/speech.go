// Package speech converts reply text to audio through the OpenAI audio
// speech endpoint.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"

	openaisdk "github.com/openai/openai-go"
	contractx "github.com/trenchburger/attendant/agent/contract"
)

type Config struct {
	Model string `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini-tts"`
	Voice string `envconfig:"VOICE" split_words:"true" default:"ash"`
}

// Client synthesizes speech with a fixed model, voice, and persona
// instructions.
type Client struct {
	api          *openaisdk.Client
	model        string
	voice        string
	instructions string
}

var _ contractx.Synthesizer = (*Client)(nil)

func NewClient(api *openaisdk.Client, cfg Config, instructions string) (*Client, error) {
	if api == nil {
		return nil, errors.New("openai client is required")
	}
	return &Client{
		api:          api,
		model:        cfg.Model,
		voice:        cfg.Voice,
		instructions: instructions,
	}, nil
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.api.Audio.Speech.New(ctx, openaisdk.AudioSpeechNewParams{
		Model:          openaisdk.SpeechModel(c.model),
		Voice:          openaisdk.AudioSpeechNewParamsVoice(c.voice),
		Input:          text,
		Instructions:   openaisdk.String(c.instructions),
		ResponseFormat: openaisdk.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize speech: %v", contractx.ErrDependency, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read speech response: %v", contractx.ErrDependency, err)
	}
	return audio, nil
}
