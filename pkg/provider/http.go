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

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kadirpekel/minerva/pkg/httpclient"
	"github.com/kadirpekel/minerva/pkg/minerr"
)

// postJSON sends a JSON POST through the retrying client and decodes the
// JSON response into out.
func postJSON(ctx context.Context, client *httpclient.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "cannot encode request for %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return minerr.Wrap(minerr.KindInternal, err, "cannot build request for %s", url)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return minerr.New(minerr.KindProvider, "%s returned HTTP %d: %s", url, resp.StatusCode, detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return minerr.Wrap(minerr.KindProvider, err, "cannot decode response from %s", url)
	}
	return nil
}

// classifyTransportError maps client failures onto the error taxonomy.
func classifyTransportError(err error, url string) error {
	var re *httpclient.RetryableError
	if errors.As(err, &re) {
		switch re.StatusCode {
		case http.StatusTooManyRequests:
			return minerr.Wrap(minerr.KindRateLimited, err, "rate limited by %s", url).
				WithSuggestion("lower rate_limit.requests_per_minute or wait and retry")
		case 0:
			// Transport-level failure, no HTTP status ever arrived.
			return minerr.Wrap(minerr.KindProviderUnavailable, err, "cannot reach %s", url)
		default:
			return minerr.Wrap(minerr.KindProvider, err, "request to %s kept failing", url)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return minerr.Wrap(minerr.KindProviderUnavailable, err, "cannot reach %s", url)
}

// chatModel picks the model for chat calls.
func chatModel(cfg Config) (string, error) {
	if cfg.LLMModel != "" {
		return cfg.LLMModel, nil
	}
	return "", minerr.New(minerr.KindConfig, "provider %s has no llm_model configured", cfg.Type).
		WithField("provider.llm_model").
		WithSuggestion("set llm_model on the %s provider config", cfg.Type)
}
