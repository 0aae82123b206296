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

package router

import "strings"

// domainLexicon is the fixed small keyword table spec.md §4.4 step 2
// describes: a query mentioning any of a domain's keywords activates that
// domain tag. A tool carrying the matching tag (config.downstream_servers
// []. tags) earns the domain boost during re-ranking. The set is
// deliberately small; it is a routing heuristic, not a classifier.
var domainLexicon = map[string][]string{
	"files": {"file", "files", "directory", "folder", "read", "write", "list"},
	"code":  {"commit", "pr", "pull request", "github", "issue", "repo", "repository", "branch"},
	"email": {"email", "inbox", "send", "reply", "mail"},
	"web":   {"fetch", "url", "http", "browse", "download"},
	"data":  {"query", "database", "sql", "table", "row"},
}

// detectDomains returns every domain whose lexicon has a keyword occurring
// in query (case-insensitive substring match). Order is irrelevant: callers
// only ever test set membership.
func detectDomains(query string) map[string]bool {
	lower := strings.ToLower(query)
	active := make(map[string]bool)
	for domain, keywords := range domainLexicon {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				active[domain] = true
				break
			}
		}
	}
	return active
}
