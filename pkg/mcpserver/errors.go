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

package mcpserver

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/minerva/pkg/minerr"
)

// toolPayload is the error shape returned to agents. Agents act on the
// suggestion, so it must be concrete ("re-index with force_recreate: true",
// "lower max_results").
type toolPayload struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// toolError renders any error as a structured MCP tool failure.
func toolError(err error) *mcp.CallToolResult {
	payload := toolPayload{
		Error:   "internal",
		Message: err.Error(),
	}

	var me *minerr.Error
	if errors.As(err, &me) {
		payload.Error = string(me.Kind)
		payload.Message = me.Message
		payload.Suggestion = me.Suggestion
	}

	data, jsonErr := json.Marshal(payload)
	if jsonErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}
