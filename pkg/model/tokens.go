package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

func initTokenEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base is close enough for budget estimation across the
		// models we route through.
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts tokens in text, falling back to a chars/4 estimate if
// the encoder cannot initialize (it downloads its ranks on first use).
func CountTokens(text string) int {
	if err := initTokenEncoder(); err != nil {
		return (len(text) + 3) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// CountMessageTokens estimates tokens for a request's messages including
// per-message formatting overhead.
func CountMessageTokens(messages []Message) int {
	total := 2
	for _, msg := range messages {
		total += 4
		total += CountTokens(msg.Role)
		total += CountTokens(msg.Content)
	}
	return total
}
