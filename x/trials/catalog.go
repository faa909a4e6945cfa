// Package trials holds the catalog of trials a player must clear and the
// rules deciding whether a submitted solution solves one.
package trials

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/throne/x/journal"
)

var (
	ErrUnknownTrial      = errors.New("unknown trial")
	ErrIncorrectSolution = errors.New("incorrect solution for this trial")
)

// Trial describes one challenge. A solution is correct when it equals one
// of Accept or starts with one of Prefixes.
type Trial struct {
	Index       uint32   `yaml:"index" json:"index"`
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Accept      []string `yaml:"accept" json:"-"`
	Prefixes    []string `yaml:"prefixes" json:"-"`
}

// Matches reports whether solution solves t.
func (t Trial) Matches(solution string) bool {
	for _, a := range t.Accept {
		if solution == a {
			return true
		}
	}
	for _, p := range t.Prefixes {
		if p != "" && strings.HasPrefix(solution, p) {
			return true
		}
	}
	return false
}

// Catalog is an immutable, index-ordered set of trials.
type Catalog struct {
	trials  []Trial
	byIndex map[uint32]int
	// matchAny accepts a solution for any trial, not just the one named.
	matchAny bool
}

type catalogFile struct {
	MatchAny bool    `yaml:"match_any"`
	Trials   []Trial `yaml:"trials"`
}

// New validates trials and builds a catalog. Indices must run 1..n.
func New(trials []Trial, matchAny bool) (*Catalog, error) {
	if len(trials) == 0 {
		return nil, errors.New("catalog has no trials")
	}
	sorted := append([]Trial(nil), trials...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	c := &Catalog{
		trials:   sorted,
		byIndex:  make(map[uint32]int, len(sorted)),
		matchAny: matchAny,
	}
	ids := make(map[string]struct{}, len(sorted))
	for i, t := range sorted {
		if t.Index != uint32(i+1) {
			return nil, fmt.Errorf("trial indices must be contiguous from 1: got %d at position %d", t.Index, i+1)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("trial %d has no id", t.Index)
		}
		if len(t.ID) > common.HashLength {
			return nil, fmt.Errorf("trial %d id %q exceeds %d bytes", t.Index, t.ID, common.HashLength)
		}
		if _, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("duplicate trial id %q", t.ID)
		}
		if len(t.Accept) == 0 && len(t.Prefixes) == 0 {
			return nil, fmt.Errorf("trial %d accepts nothing", t.Index)
		}
		ids[t.ID] = struct{}{}
		c.byIndex[t.Index] = i
	}
	return c, nil
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trial catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse trial catalog: %w", err)
	}
	return New(f.Trials, f.MatchAny)
}

// Marshal renders the catalog, answers included, as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(catalogFile{MatchAny: c.matchAny, Trials: c.trials})
}

// Len is the number of trials.
func (c *Catalog) Len() int {
	return len(c.trials)
}

// All returns the trials in index order.
func (c *Catalog) All() []Trial {
	return append([]Trial(nil), c.trials...)
}

// Get returns the trial at index.
func (c *Catalog) Get(index uint32) (Trial, error) {
	i, ok := c.byIndex[index]
	if !ok {
		return Trial{}, fmt.Errorf("%w: %d", ErrUnknownTrial, index)
	}
	return c.trials[i], nil
}

// TrialID is the 32-byte identifier bound into proofs for index.
func (c *Catalog) TrialID(index uint32) (common.Hash, error) {
	t, err := c.Get(index)
	if err != nil {
		return common.Hash{}, err
	}
	return journal.TrialID(t.ID), nil
}

// Check returns nil if solution solves the trial at index.
func (c *Catalog) Check(index uint32, solution string) error {
	t, err := c.Get(index)
	if err != nil {
		return err
	}
	if t.Matches(solution) {
		return nil
	}
	if c.matchAny {
		for _, other := range c.trials {
			if other.Matches(solution) {
				return nil
			}
		}
	}
	return ErrIncorrectSolution
}

// Accepts is Check as a predicate.
func (c *Catalog) Accepts(index uint32, solution string) bool {
	return c.Check(index, solution) == nil
}
