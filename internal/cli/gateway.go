// Copyright 2025 Toolgate Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at.
//
//     http://www.apache.org/licenses/LICENSE-2.0.
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/embedding"
	"github.com/toolgate/toolgate/internal/embedding/openai"
)

// buildEmbedder returns the configured ToolZoo embedding provider, or nil
// (the zoo degrades to lexical-only search, per spec.md §4.3) when no
// OPENAI_API_KEY is set in the environment. The gateway never fails to
// start for lack of an embedding credential.
func buildEmbedder(cfg config.ToolZooConfig, logger zerolog.Logger) embedding.Provider {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil
	}
	p, err := openai.New(apiKey, cfg.EmbeddingModel)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to construct openai embedding provider, falling back to lexical search")
		return nil
	}
	return p
}

// spawnSpecs converts the configured downstream servers into the Connection
// Pool's spawn spec map.
func spawnSpecs(servers []config.DownstreamServerConfig) map[string]common.SpawnSpec {
	out := make(map[string]common.SpawnSpec, len(servers))
	for _, s := range servers {
		out[s.Name] = common.SpawnSpec{
			Transport: s.Transport,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			URL:       s.URL,
			Headers:   s.Headers,
			Tags:      s.Tags,
		}
	}
	return out
}
