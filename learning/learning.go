// Package learning detects recurring interaction patterns and tracks per-tool
// skill proficiency.
//
// Both collections are write-through: every mutation saves the complete
// collection through its persist.Store before returning.
package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/persist"
)

const (
	maxKeywords     = 5
	minKeywords     = 2
	maxSkillLevel   = 10
	usesPerLevel    = 10
	topStatsEntries = 5
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
}

// Pattern is a recurring keyword signature observed across user messages.
type Pattern struct {
	ID        string    `json:"id"`
	Keywords  []string  `json:"keywords"`
	Frequency int       `json:"frequency"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Skill tracks repeated use and outcome of one tool.
type Skill struct {
	Name        string      `json:"name"`
	Level       int         `json:"level"`
	Uses        int         `json:"uses"`
	SuccessRate float64     `json:"success_rate"`
	Created     time.Time   `json:"created"`
	Data        interface{} `json:"data"`
}

// Stats summarizes the learning state.
type Stats struct {
	TotalPatterns int       `json:"total_patterns"`
	TotalSkills   int       `json:"total_skills"`
	AvgSkillLevel float64   `json:"avg_skill_level"`
	Patterns      []Pattern `json:"patterns"`
	TopSkills     []Skill   `json:"top_skills"`
}

// Engine owns the pattern and skill collections.
type Engine struct {
	mu       sync.Mutex
	patterns []*Pattern
	skills   []*Skill // insertion order
	index    map[string]*Skill

	patternStore persist.Store
	skillStore   persist.Store
	now          func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine and loads any previously saved collections.
func New(ctx context.Context, patternStore, skillStore persist.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		index:        make(map[string]*Skill),
		patternStore: patternStore,
		skillStore:   skillStore,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := patternStore.Load(ctx, &e.patterns); err != nil && !errors.Is(err, persist.ErrNotFound) {
		return nil, errors.Wrap(err, "load patterns")
	}

	var skills []*Skill
	if err := skillStore.Load(ctx, &skills); err != nil && !errors.Is(err, persist.ErrNotFound) {
		return nil, errors.Wrap(err, "load skills")
	}
	for _, s := range skills {
		e.skills = append(e.skills, s)
		e.index[s.Name] = s
	}

	logging.For("learning").Info().
		Int("patterns", len(e.patterns)).
		Int("skills", len(e.skills)).
		Msg("learning state loaded")
	return e, nil
}

// DetectPattern matches the episode's user message against known patterns.
//
// The first pattern (in collection order) with any keyword contained in the
// lower-cased message wins and has its frequency incremented. Otherwise a new
// pattern is created when at least two keywords can be extracted. Returns the
// pattern id, or "" when nothing matched or was created. A non-nil error is a
// persistence failure; the returned id is still valid in that case.
func (e *Engine) DetectPattern(ctx context.Context, ep *core.Episode) (string, error) {
	msg := strings.ToLower(ep.UserMessage)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.patterns {
		if containsAny(msg, p.Keywords) {
			p.Frequency++
			p.LastSeen = e.now()
			return p.ID, e.savePatterns(ctx)
		}
	}

	keywords := ExtractKeywords(msg)
	if len(keywords) < minKeywords {
		return "", nil
	}

	now := e.now()
	p := &Pattern{
		ID:        fmt.Sprintf("pattern_%d", len(e.patterns)),
		Keywords:  keywords,
		Frequency: 1,
		FirstSeen: now,
		LastSeen:  now,
	}
	e.patterns = append(e.patterns, p)
	return p.ID, e.savePatterns(ctx)
}

// ExtractKeywords returns up to five lower-cased tokens longer than three
// characters that are not stop words, in their original order.
func ExtractKeywords(text string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(w) <= 3 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func containsAny(msg string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}

// LearnSkill records a use of the named tool. The first use creates the skill
// at level 1; later uses increment the counter and recompute the level.
// The payload always replaces the previous one.
func (e *Engine) LearnSkill(ctx context.Context, name string, data interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.index[name]
	if !ok {
		s = &Skill{
			Name:    name,
			Level:   1,
			Created: e.now(),
		}
		e.skills = append(e.skills, s)
		e.index[name] = s
	} else {
		s.Uses++
		s.Level = levelFor(s.Uses)
	}
	s.Data = data

	return e.saveSkills(ctx)
}

func levelFor(uses int) int {
	level := uses/usesPerLevel + 1
	if level > maxSkillLevel {
		return maxSkillLevel
	}
	return level
}

// UpdateSkillSuccess folds one outcome into the skill's running success rate.
// Unknown skills are ignored.
func (e *Engine) UpdateSkillSuccess(ctx context.Context, name string, success bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.index[name]
	if !ok {
		return nil
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	s.SuccessRate = (s.SuccessRate*float64(s.Uses) + outcome) / float64(s.Uses+1)

	return e.saveSkills(ctx)
}

// Patterns returns a copy of all patterns ordered by descending frequency.
// Equal frequencies keep collection order.
func (e *Engine) Patterns() []Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedPatterns()
}

func (e *Engine) sortedPatterns() []Pattern {
	out := make([]Pattern, len(e.patterns))
	for i, p := range e.patterns {
		out[i] = *p
		out[i].Keywords = append([]string(nil), p.Keywords...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Frequency > out[j].Frequency
	})
	return out
}

// Skills returns a copy of all skills in insertion order.
func (e *Engine) Skills() []Skill {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Skill, len(e.skills))
	for i, s := range e.skills {
		out[i] = *s
	}
	return out
}

// Skill returns the named skill.
func (e *Engine) Skill(name string) (Skill, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.index[name]
	if !ok {
		return Skill{}, false
	}
	return *s, true
}

// Stats returns totals, the mean skill level, the five most frequent patterns
// and the five highest-level skills.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		TotalPatterns: len(e.patterns),
		TotalSkills:   len(e.skills),
	}

	if len(e.skills) > 0 {
		total := 0
		for _, s := range e.skills {
			total += s.Level
		}
		stats.AvgSkillLevel = float64(total) / float64(len(e.skills))
	}

	patterns := e.sortedPatterns()
	if len(patterns) > topStatsEntries {
		patterns = patterns[:topStatsEntries]
	}
	stats.Patterns = patterns

	skills := make([]Skill, len(e.skills))
	for i, s := range e.skills {
		skills[i] = *s
	}
	sort.SliceStable(skills, func(i, j int) bool {
		return skills[i].Level > skills[j].Level
	})
	if len(skills) > topStatsEntries {
		skills = skills[:topStatsEntries]
	}
	stats.TopSkills = skills

	return stats
}

// Clear removes all patterns and skills.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.patterns = nil
	e.skills = nil
	e.index = make(map[string]*Skill)

	if err := e.savePatterns(ctx); err != nil {
		return err
	}
	return e.saveSkills(ctx)
}

// savePatterns must be called with mu held.
func (e *Engine) savePatterns(ctx context.Context) error {
	patterns := e.patterns
	if patterns == nil {
		patterns = []*Pattern{}
	}
	if err := e.patternStore.Save(ctx, patterns); err != nil {
		logging.For("learning").Error().Err(err).Msg("failed to save patterns")
		return errors.Wrap(err, "save patterns")
	}
	return nil
}

// saveSkills must be called with mu held.
func (e *Engine) saveSkills(ctx context.Context) error {
	skills := e.skills
	if skills == nil {
		skills = []*Skill{}
	}
	if err := e.skillStore.Save(ctx, skills); err != nil {
		logging.For("learning").Error().Err(err).Msg("failed to save skills")
		return errors.Wrap(err, "save skills")
	}
	return nil
}
