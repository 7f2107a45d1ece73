package classify

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

// Classifier infers a group key and view subtype from an original
// filename. Pure and total: an unrecognized name yields the unassigned
// subtype and an empty group key, never an error.
type Classifier struct {
	patterns []*regexp.Regexp
	views    map[string]domain.Subtype
}

func New(rules Rules) (*Classifier, error) {
	c := &Classifier{views: make(map[string]domain.Subtype, len(rules.Views))}
	for _, raw := range rules.KeyPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile key pattern %q: %w", raw, err)
		}
		if re.SubexpIndex("key") < 0 {
			return nil, fmt.Errorf("key pattern %q has no key group", raw)
		}
		c.patterns = append(c.patterns, re)
	}
	for token, view := range rules.Views {
		c.views[strings.ToLower(token)] = domain.Subtype(view)
	}
	return c, nil
}

func (c *Classifier) Classify(filename string) domain.Classification {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.TrimSpace(stem)

	for _, re := range c.patterns {
		match := re.FindStringSubmatch(stem)
		if match == nil {
			continue
		}
		key := domain.CanonicalGroupKey(match[re.SubexpIndex("key")])
		subtype := domain.SubtypeUnassigned
		if viewIdx := re.SubexpIndex("view"); viewIdx >= 0 {
			if mapped, ok := c.views[strings.ToLower(match[viewIdx])]; ok {
				subtype = mapped
			}
		}
		return domain.Classification{Subtype: subtype, GroupKey: key}
	}
	return domain.Classification{Subtype: domain.SubtypeUnassigned}
}
