// Package tokenizer counts and estimates tokens for pricing and context
// window checks.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// encodingForModel maps OpenAI model names to tiktoken encodings.
var encodingForModel = map[string]tokenizer.Encoding{
	"gpt-4o":        tokenizer.O200kBase,
	"gpt-4o-mini":   tokenizer.O200kBase,
	"gpt-4.1":       tokenizer.O200kBase,
	"gpt-4.1-mini":  tokenizer.O200kBase,
	"o1":            tokenizer.O200kBase,
	"o1-mini":       tokenizer.O200kBase,
	"o3-mini":       tokenizer.O200kBase,
	"gpt-4-turbo":   tokenizer.Cl100kBase,
	"gpt-4":         tokenizer.Cl100kBase,
	"gpt-3.5-turbo": tokenizer.Cl100kBase,
}

// Message overhead in the OpenAI chat format.
const (
	messageOverhead = 4
	replyPriming    = 2
)

var codecs sync.Map // tokenizer.Encoding -> tokenizer.Codec

func codec(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	if c, ok := codecs.Load(enc); ok {
		return c.(tokenizer.Codec), nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", enc, err)
	}
	actual, _ := codecs.LoadOrStore(enc, c)
	return actual.(tokenizer.Codec), nil
}

// CountTokens returns the token count for text under the given model.
// OpenAI models use tiktoken; others use character-based estimation.
func CountTokens(text string, provider string, model string) (int64, error) {
	if provider == "openai" {
		enc, ok := encodingForModel[model]
		if !ok {
			enc = tokenizer.Cl100kBase
		}
		return encode(text, enc)
	}
	return estimateTokens(text), nil
}

// Estimate returns a provider-neutral token estimate for text, used before
// a provider has been chosen. It encodes with o200k_base and falls back to
// the character heuristic if the encoding cannot be loaded.
func Estimate(text string) int64 {
	n, err := encode(text, tokenizer.O200kBase)
	if err != nil {
		return estimateTokens(text)
	}
	return n
}

// EstimateChat estimates the prompt tokens of a chat exchange.
func EstimateChat(contents []string) int64 {
	if len(contents) == 0 {
		return 0
	}
	var total int64
	for _, c := range contents {
		total += messageOverhead + Estimate(c)
	}
	return total + replyPriming
}

func encode(text string, enc tokenizer.Encoding) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	c, err := codec(enc)
	if err != nil {
		return 0, err
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return int64(len(ids)), nil
}

// estimateTokens uses character-based estimation (4 chars per token on average).
func estimateTokens(text string) int64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0
	}
	return int64((len(text) + 3) / 4)
}

// CountChatTokens counts tokens for a series of chat messages (OpenAI format).
func CountChatTokens(messages []map[string]string, provider string, model string) (int64, error) {
	var total int64
	for _, msg := range messages {
		total += messageOverhead
		for _, value := range msg {
			count, err := CountTokens(value, provider, model)
			if err != nil {
				return 0, err
			}
			total += count
		}
	}
	return total + replyPriming, nil
}
