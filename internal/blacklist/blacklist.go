// Package blacklist compiles regex patterns and forbidden sender ids from
// two flat files, hot-reloads them on filesystem change, and decides the
// disposition of candidate messages against the current snapshot.
package blacklist

import (
	"bufio"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"danmaku-gateway/internal/danmaku"
)

// Verdict is the outcome of a blacklist decision.
type Verdict int

const (
	// VerdictPass means the message may be broadcast unmodified.
	VerdictPass Verdict = iota
	// VerdictBlock means the message must be suppressed entirely.
	VerdictBlock
	// VerdictRewrite means the message's sender name was rewritten in
	// place (monetary messages only) and may still be broadcast.
	VerdictRewrite
)

// snapshot is the immutable, atomically-swapped compiled state.
type snapshot struct {
	patterns  []*regexp.Regexp
	forbidden map[string]struct{}
}

// Service holds the live blacklist state. The zero value is not usable;
// construct with New.
type Service struct {
	state         atomic.Pointer[snapshot]
	patternFile   string
	forbiddenFile string
}

// New constructs a Service with an empty snapshot. Call Reload to load the
// initial state from disk.
func New(patternFile, forbiddenFile string) *Service {
	s := &Service{patternFile: patternFile, forbiddenFile: forbiddenFile}
	s.state.Store(&snapshot{forbidden: map[string]struct{}{}})
	return s
}

// Counts reports the number of compiled patterns and forbidden sender
// ids in the currently active snapshot, for the admin state endpoint.
func (s *Service) Counts() (patterns, forbiddenUsers int) {
	snap := s.state.Load()
	return len(snap.patterns), len(snap.forbidden)
}

// PatternFile returns the configured pattern file path.
func (s *Service) PatternFile() string { return s.patternFile }

// ForbiddenFile returns the configured forbidden-users file path.
func (s *Service) ForbiddenFile() string { return s.forbiddenFile }

// Reload recompiles both files and atomically swaps the snapshot. Readers
// never observe a partially-loaded state: the new snapshot is built
// off to the side and published with a single pointer store.
func (s *Service) Reload() error {
	patterns, err := loadPatterns(s.patternFile)
	if err != nil {
		slog.Warn("blacklist pattern file missing, treating as empty", "path", s.patternFile, "err", err)
	}
	forbidden, err := loadForbidden(s.forbiddenFile)
	if err != nil {
		slog.Warn("forbidden users file missing, treating as empty", "path", s.forbiddenFile, "err", err)
	}

	next := &snapshot{patterns: patterns, forbidden: forbidden}
	s.state.Store(next)
	slog.Info("blacklist reloaded", "patterns", len(patterns), "forbidden_users", len(forbidden))
	return nil
}

func loadPatterns(path string) ([]*regexp.Regexp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var compiled []*regexp.Regexp
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		re, err := regexp.Compile("(?i)" + line)
		if err != nil {
			slog.Error("invalid blacklist pattern, skipping", "pattern", line, "err", err)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled, sc.Err()
}

func loadForbidden(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]struct{}{}, err
	}
	defer f.Close()

	ids := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids[line] = struct{}{}
	}
	return ids, sc.Err()
}

// Decide applies the blacklist's decision rules to msg. If the verdict is
// VerdictRewrite, msg.SenderName has already been mutated in place; the
// matched substring is replaced with asterisks of equal length.
func (s *Service) Decide(msg *danmaku.Message) (Verdict, string) {
	snap := s.state.Load()

	if msg.SenderID != "" {
		if _, blocked := snap.forbidden[msg.SenderID]; blocked {
			return VerdictBlock, "forbidden sender id"
		}
	}

	if msg.IsMonetary() && msg.SenderName != "" {
		rewritten, matched := redact(msg.SenderName, snap.patterns)
		if matched {
			msg.SenderName = rewritten
			return VerdictRewrite, "sender name matched blacklist pattern"
		}
	}

	if msg.HasText() && msg.Text != "" {
		for _, re := range snap.patterns {
			if re.MatchString(msg.Text) {
				return VerdictBlock, "text matched blacklist pattern"
			}
		}
	}

	return VerdictPass, ""
}

// redact replaces every match of any pattern in text with asterisks of
// equal length, reporting whether any pattern matched.
func redact(text string, patterns []*regexp.Regexp) (string, bool) {
	matched := false
	for _, re := range patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			matched = true
			text = re.ReplaceAllStringFunc(text, func(s string) string {
				return strings.Repeat("*", len([]rune(s)))
			})
		}
	}
	return text, matched
}
