package modality

import (
	"context"
	"fmt"
	"strings"
)

// visualKeywords are substrings of user input that always force an
// image reply, no model call involved. The Chinese entries cover the
// phrasings the service most commonly sees ("image", "photo",
// "avatar", "poster", "illustration", "draw one", "generate a
// picture", "cover image", "show me you", "what do you look like").
var visualKeywords = []string{
	"图片",
	"照片",
	"头像",
	"海报",
	"插画",
	"画一张",
	"生成图",
	"配图",
	"封面图",
	"看下你",
	"长什么样",
	"look like",
	"photo",
	"image",
	"picture",
	"portrait",
	"draw",
	"illustration",
}

// forcedPromptTemplate wraps the raw user input for the image
// provider. The self-portrait clause keeps "show me a photo of
// yourself" requests renderable instead of refused.
const forcedPromptTemplate = "Generate one high quality image for the following request: %s. " +
	"If the user asked to see a photo of you yourself, render a portrait of a friendly, " +
	"professional assistant figure instead: realistic style, soft lighting, half-body " +
	"composition, clean background."

// KeywordStrategy forces an image reply when the user input contains
// a known visual-intent keyword.
type KeywordStrategy struct{}

// NewKeywordStrategy creates the deterministic keyword strategy
func NewKeywordStrategy() *KeywordStrategy {
	return &KeywordStrategy{}
}

// Name implements Strategy
func (s *KeywordStrategy) Name() string { return "keyword" }

// Decide implements Strategy. No keyword match defers to the next
// strategy.
func (s *KeywordStrategy) Decide(_ context.Context, in Input) (*Decision, error) {
	text := strings.ToLower(in.UserInput)
	for _, kw := range visualKeywords {
		if strings.Contains(text, kw) {
			return &Decision{
				UseImage:    true,
				ImagePrompt: fmt.Sprintf(forcedPromptTemplate, in.UserInput),
			}, nil
		}
	}
	return nil, nil
}
