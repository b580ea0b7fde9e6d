package generator

import (
	"context"
	"errors"

	"automagick_post_producer/failure"
)

const (
	summaryWords     = 50
	imagePromptWords = 15
)

// Composer derives an image prompt from a finished article.
type Composer struct {
	text TextGenerator
}

func NewComposer(text TextGenerator) (*Composer, error) {
	if text == nil {
		return nil, errors.New("text generator is required")
	}
	return &Composer{text: text}, nil
}

// Compose asks the model for a short visual phrase, cuts it to 15 words and
// appends the style suffix. The 100 character hint is only passed to the model.
func (c *Composer) Compose(ctx context.Context, title, content, style string) (string, error) {
	summary := TrimWords(PlainText(content), summaryWords, "...")

	raw, err := c.text.Complete(ctx, ImageMetaPrompt(title, summary))
	if err != nil {
		return "", err
	}
	prompt := TrimWords(raw, imagePromptWords, "")
	if prompt == "" {
		return "", &failure.ResponseFormatError{Op: opText, Detail: "empty image prompt"}
	}
	if style != "" {
		prompt += ", " + style
	}
	return prompt, nil
}
