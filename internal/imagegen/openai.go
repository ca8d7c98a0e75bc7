package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Provider = (*OpenAIProvider)(nil)

// ImagesService is the slice of the OpenAI client the provider needs.
type ImagesService interface {
	Generate(ctx context.Context, params openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

type OpenAIProvider struct {
	images ImagesService
	model  openai.ImageModel
	hosted bool
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return NewOpenAIProviderWith(&client.Images, model)
}

func NewOpenAIProviderWith(images ImagesService, model string) *OpenAIProvider {
	if model == "" {
		model = string(openai.ImageModelDallE3)
	}
	return &OpenAIProvider{images: images, model: openai.ImageModel(model)}
}

// UseHostedURLs asks for a short-lived hosted URL instead of inline bytes,
// for pipelines that keep no images dir.
func (p *OpenAIProvider) UseHostedURLs() *OpenAIProvider {
	p.hosted = true
	return p
}

func (p *OpenAIProvider) Name() string { return "openai_" + string(p.model) }

// Generate requests b64_json unless hosted URLs were asked for. A URL-only
// reply is passed through as is.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (Image, error) {
	format := openai.ImageGenerateParamsResponseFormatB64JSON
	if p.hosted {
		format = openai.ImageGenerateParamsResponseFormatURL
	}
	resp, err := p.images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          p.model,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: format,
	})
	if err != nil {
		return Image{}, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return Image{}, errors.New("image generation failed: empty response")
	}
	d := resp.Data[0]
	if d.B64JSON == "" {
		if d.URL == "" {
			return Image{}, errors.New("image generation failed: no image data")
		}
		return Image{URL: d.URL}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(d.B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("image generation failed: decode b64_json: %w", err)
	}
	return Image{Data: raw, Ext: ".png"}, nil
}
