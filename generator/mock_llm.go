package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, contentPromptPrefix):
		var sb strings.Builder
		sb.WriteString("```html\n")
		sb.WriteString("<h2>自动生成示例</h2>\n")
		sb.WriteString("<p>这里是一段自动生成的正文，用于本地调试发布流程。</p>\n")
		sb.WriteString("```")
		return sb.String(), nil
	case strings.HasPrefix(prompt, titlePromptPrefix):
		return `"Mock Article Title"`, nil
	case strings.HasPrefix(prompt, imagePromptPrefix):
		return "A quiet desk lit by a single lamp at dawn", nil
	default:
		return "Local debugging of automated publishing", nil
	}
}

// MockImage returns a fixed placeholder URL.
type MockImage struct{}

func (MockImage) Generate(_ context.Context, _ string) (string, error) {
	return "https://placehold.co/1024x1024.png", nil
}
