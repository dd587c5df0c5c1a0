// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// TokenCounter counts tokens for one model's encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.Mutex
)

// NewTokenCounter builds a counter for the model, falling back to the
// cl100k_base encoding for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if cached, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, minerr.Wrap(minerr.KindInternal, err, "cannot load token encoding")
		}
	}
	encodingCache[model] = encoding
	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count of one text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across a message list including the per-turn
// framing overhead.
func (tc *TokenCounter) CountMessages(messages []provider.Message) int {
	// Per-message framing plus the assistant reply priming.
	const tokensPerMessage = 3
	total := tokensPerMessage
	for _, msg := range messages {
		total += tokensPerMessage
		total += tc.Count(msg.Role)
		total += tc.Count(msg.Content)
	}
	return total
}

// FitWithinLimit returns the suffix of messages that fits the budget,
// keeping the most recent turns.
func (tc *TokenCounter) FitWithinLimit(messages []provider.Message, maxTokens int) []provider.Message {
	total := 3
	cut := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		msgTokens := 3 + tc.Count(messages[i].Role) + tc.Count(messages[i].Content)
		if total+msgTokens > maxTokens {
			break
		}
		total += msgTokens
		cut = i
	}
	return messages[cut:]
}
