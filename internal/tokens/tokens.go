// Package tokens provides token counting using tiktoken-go.
// Used to record per-message token counts at append time.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/joss/statecore/internal/domain"
)

// Counter provides token counting for messages and text.
// Uses cl100k_base encoding. The encoder loads lazily on first use; when it
// cannot load, counts fall back to a rough 4-chars-per-token estimate.
type Counter struct {
	enc  *tiktoken.Tiktoken
	once sync.Once
	err  error
}

// NewCounter creates a counter. The encoder is not loaded until first use.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) init() {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	c.init()
	if c.err != nil || c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessage returns tokens for a single message, including tool calls.
func (c *Counter) CountMessage(msg *domain.Message) int {
	// Base overhead per message (role, formatting)
	total := 4 + c.Count(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += c.Count(tc.Name) + 10
		for k, v := range tc.Args {
			total += c.Count(k)
			if s, ok := v.(string); ok {
				total += c.Count(s)
			} else {
				total += 5
			}
		}
	}
	return total
}
