package zoo

import (
	"math"
	"regexp"
	"strings"

	"github.com/toolgate/toolgate/internal/common"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(s string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(s), -1)
	return tokens
}

// lexicalIndex is a tokenized inverted index over description, local_name,
// and tags, scoring by normalized inverse document frequency of matching
// query terms.
type lexicalIndex struct {
	// postings maps a token to the set of qualified names whose textual
	// fields contain it.
	postings map[string]map[string]bool
	// docTokens maps qualified name to its token set, for removal.
	docTokens map[string]map[string]bool
	docCount  int
}

func newLexicalIndex() *lexicalIndex {
	return &lexicalIndex{
		postings:  make(map[string]map[string]bool),
		docTokens: make(map[string]map[string]bool),
	}
}

func (idx *lexicalIndex) index(d common.ToolDescriptor) {
	idx.remove(d.QualifiedName)

	fields := []string{d.Description, d.LocalName}
	fields = append(fields, d.Tags...)
	tokenSet := make(map[string]bool)
	for _, f := range fields {
		for _, tok := range tokenize(f) {
			tokenSet[tok] = true
		}
	}
	for tok := range tokenSet {
		if idx.postings[tok] == nil {
			idx.postings[tok] = make(map[string]bool)
		}
		idx.postings[tok][d.QualifiedName] = true
	}
	idx.docTokens[d.QualifiedName] = tokenSet
	idx.docCount++
}

func (idx *lexicalIndex) remove(qualifiedName string) {
	tokens, ok := idx.docTokens[qualifiedName]
	if !ok {
		return
	}
	for tok := range tokens {
		delete(idx.postings[tok], qualifiedName)
		if len(idx.postings[tok]) == 0 {
			delete(idx.postings, tok)
		}
	}
	delete(idx.docTokens, qualifiedName)
	idx.docCount--
}

// score returns, for every document containing at least one query term, the
// normalized sum of IDF over the matching query terms, scaled to [0,1].
func (idx *lexicalIndex) score(query string) map[string]float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || idx.docCount == 0 {
		return nil
	}

	raw := make(map[string]float64)
	var maxPossible float64
	seenQueryToken := make(map[string]bool)
	for _, tok := range queryTokens {
		if seenQueryToken[tok] {
			continue
		}
		seenQueryToken[tok] = true
		docs := idx.postings[tok]
		if len(docs) == 0 {
			continue
		}
		idf := math.Log(1 + float64(idx.docCount)/float64(len(docs)))
		maxPossible += idf
		for name := range docs {
			raw[name] += idf
		}
	}
	if maxPossible == 0 {
		return raw
	}
	scores := make(map[string]float64, len(raw))
	for name, v := range raw {
		scores[name] = v / maxPossible
	}
	return scores
}
