package generator

import (
	"fmt"
	"strings"
)

const (
	contentPromptPrefix = "Write a detailed and engaging article about "
	titlePromptPrefix   = "Based on the following content, create an engaging and descriptive title"
	imagePromptPrefix   = "Create an image prompt based on this title and content summary"
)

// ContentPrompt asks for the article body as bare HTML.
func ContentPrompt(topic string) string {
	return fmt.Sprintf(`%s"%s". The response should be pure HTML content suitable for a block editor, without any preamble or code blocks.`,
		contentPromptPrefix, topic)
}

// TitlePrompt asks for a title derived from the plain-text article.
func TitlePrompt(plain string) string {
	return fmt.Sprintf(`%s without quotes or special characters: "%s"`, titlePromptPrefix, plain)
}

// ImageMetaPrompt asks for a short visual description of the article.
func ImageMetaPrompt(title, summary string) string {
	var sb strings.Builder
	sb.WriteString(imagePromptPrefix + ":\n\n")
	sb.WriteString("Title: " + title + "\n\n")
	sb.WriteString("Content: " + summary + "\n\n")
	sb.WriteString("The image prompt should be concise (max 100 characters) and capture the essence of the article. Include key visual elements and atmosphere.")
	return sb.String()
}
