/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package platform

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"bennypowers.dev/crateaudit/internal/logging"
)

// DefaultCacheSize bounds the number of distinct platform strings a Matcher
// remembers. Real dependency trees use a few dozen.
const DefaultCacheSize = 512

type parsed struct {
	platform Platform
	err      error
}

// Matcher evaluates dependency platform strings against one target,
// remembering parsed expressions. A Matcher is safe for concurrent use.
type Matcher struct {
	target Target
	cache  *lru.Cache[string, parsed]
	logger *slog.Logger
}

// NewMatcher creates a Matcher for target.
func NewMatcher(target Target, logger *slog.Logger) *Matcher {
	// size is a positive constant; New only fails for size <= 0
	cache, _ := lru.New[string, parsed](DefaultCacheSize)
	return &Matcher{
		target: target,
		cache:  cache,
		logger: logging.OrDiscard(logger),
	}
}

// Target returns the target the matcher evaluates against.
func (m *Matcher) Target() Target {
	return m.target
}

// Matches reports whether a dependency restricted to raw applies to the
// matcher's target. Expressions that fail to parse never match and are
// logged the first time they are seen.
func (m *Matcher) Matches(raw string) bool {
	entry, ok := m.cache.Get(raw)
	if !ok {
		p, err := Parse(raw)
		entry = parsed{platform: p, err: err}
		m.cache.Add(raw, entry)
		if err != nil {
			m.logger.Warn("ignoring dependency with unparsable platform", "platform", raw, "error", err)
		}
	}
	if entry.err != nil {
		return false
	}
	return entry.platform.Matches(m.target.Triple, m.target.Cfgs)
}
