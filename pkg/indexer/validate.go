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

package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kadirpekel/minerva/pkg/minerr"
	"github.com/kadirpekel/minerva/pkg/provider"
)

// descriptionScoreThreshold is the score below which a collection
// description earns a warning. Agents pick collections by description, so
// a vague one quietly degrades retrieval.
const descriptionScoreThreshold = 7

const descriptionPrompt = `You evaluate collection descriptions for a semantic search system.
An AI agent reads the description to decide whether this collection can answer a question,
so a good description names the subject matter, the kind of content, and what questions it answers.

Collection name: %s
Description: %s

Rate the description from 0 to 10. Respond with only the number.`

// scoreDescription asks the chat model to rate a collection description.
func scoreDescription(ctx context.Context, p provider.Provider, name, description string) (int, error) {
	out, err := p.Complete(ctx, []provider.Message{
		{Role: "user", Content: fmt.Sprintf(descriptionPrompt, name, description)},
	}, 0)
	if err != nil {
		return 0, err
	}

	score, err := parseScore(out)
	if err != nil {
		return 0, minerr.Wrap(minerr.KindProvider, err, "cannot parse description score from %q", out)
	}
	return score, nil
}

// parseScore extracts the leading integer from a model reply.
func parseScore(reply string) (int, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(reply), func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(fields) == 0 {
		return 0, fmt.Errorf("no number in reply")
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, err
	}
	if score < 0 || score > 10 {
		return 0, fmt.Errorf("score %d out of range", score)
	}
	return score, nil
}

// validateDescription scores the description and warns on a low score.
// Scoring problems never fail the run.
func (ix *Indexer) validateDescription(ctx context.Context, spec CollectionSpec) {
	score, err := scoreDescription(ctx, ix.provider, spec.Name, spec.Description)
	if err != nil {
		ix.logger.Warn("Description validation skipped", "collection", spec.Name, "error", err)
		return
	}
	if score < descriptionScoreThreshold {
		ix.logger.Warn("Collection description scored low; agents may fail to pick this collection",
			"collection", spec.Name, "score", score,
			"hint", "describe the subject matter and the questions this collection answers")
		return
	}
	ix.logger.Debug("Description validated", "collection", spec.Name, "score", score)
}
