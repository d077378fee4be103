package categorization

import (
	"fmt"
	"strings"

	"github.com/finflow/expense-approval/internal/models"
)

// KeywordSource supplies the configured keywords for a category. It is
// passed in explicitly so tests can run against a fixed keyword set.
type KeywordSource interface {
	ListByCategory(category string) ([]*models.CategoryKeyword, error)
}

// Matcher checks request text against the configured keyword table.
// Matching is case-insensitive substring containment, existence-only: the
// first configured keyword found in the text is a hit, and keyword weights
// are ignored. No keywords configured for a category means no match.
type Matcher struct {
	keywords KeywordSource
}

// NewMatcher creates a matcher backed by the given keyword source.
func NewMatcher(keywords KeywordSource) *Matcher {
	return &Matcher{keywords: keywords}
}

// Matches reports whether any keyword configured for category occurs in
// text. The keyword table is consulted on every call, so edits to it take
// effect immediately.
func (m *Matcher) Matches(text, category string) (bool, error) {
	keywords, err := m.keywords.ListByCategory(category)
	if err != nil {
		return false, fmt.Errorf("list keywords for %q: %w", category, err)
	}
	if len(keywords) == 0 {
		return false, nil
	}

	folded := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(folded, strings.ToLower(kw.Keyword)) {
			return true, nil
		}
	}

	return false, nil
}

// HasKeywords reports whether the category has any keywords configured at
// all. The categorizer short-circuits to the fallback bucket when the
// primary category's table is empty.
func (m *Matcher) HasKeywords(category string) (bool, error) {
	keywords, err := m.keywords.ListByCategory(category)
	if err != nil {
		return false, fmt.Errorf("list keywords for %q: %w", category, err)
	}
	return len(keywords) > 0, nil
}
