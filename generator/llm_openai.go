package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"automagick_post_producer/failure"
)

const (
	opText  = "text generation"
	opImage = "image generation"
)

// OpenAIText implements TextGenerator using the official openai-go SDK (chat completions).
type OpenAIText struct {
	Opts []option.RequestOption
}

func NewOpenAIText(cfg *LLMSettings) (*OpenAIText, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIText{Opts: opts}, nil
}

func (o *OpenAIText) Complete(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(TextModel),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens: openai.Int(MaxTokens),
	})
	if err != nil {
		return "", classify(opText, err)
	}
	if len(resp.Choices) == 0 {
		return "", &failure.ResponseFormatError{Op: opText, Detail: "empty choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIImage implements ImageGenerator against the images endpoint.
type OpenAIImage struct {
	Opts []option.RequestOption
}

func NewOpenAIImage(cfg *LLMSettings) (*OpenAIImage, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIImage{Opts: opts}, nil
}

func (o *OpenAIImage) Generate(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(o.Opts...)

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(ImageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Quality:        openai.ImageGenerateParamsQualityStandard,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", classify(opImage, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &failure.ResponseFormatError{Op: opImage, Detail: "no image url in response"}
	}
	return resp.Data[0].URL, nil
}

// ValidateKey lists models with apiKey; only a successful reply counts as valid.
// A rejected key or an unreachable endpoint both report false without error;
// the error return is reserved for a cancelled ctx.
func ValidateKey(ctx context.Context, apiKey, baseURL string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(ValidateTimeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if _, err := client.Models.List(ctx); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

func clientOptions(cfg *LLMSettings) ([]option.RequestOption, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, &failure.ConfigError{Msg: "OpenAI API key is not set."}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.timeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts, nil
}

// classify maps SDK errors onto the failure kinds. Anything that reached the
// endpoint and came back without the expected payload is a format failure.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &failure.ResponseFormatError{
			Op:     op,
			Detail: fmt.Sprintf("status %d", apiErr.StatusCode),
			Err:    err,
		}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &failure.TransportError{Op: op, Err: err}
	}
	return &failure.ResponseFormatError{Op: op, Err: err}
}
