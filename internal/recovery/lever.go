package recovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

// Strategy ranks finding groups when selecting a lever.
type Strategy string

const (
	StrategyCount Strategy = "COUNT"
	StrategyValue Strategy = "VALUE"
)

// ParseStrategy accepts COUNT or VALUE case-insensitively; empty means COUNT.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", StrategyCount:
		return StrategyCount, nil
	case StrategyValue:
		return StrategyValue, nil
	default:
		return "", fmt.Errorf("unknown lever strategy %q", s)
	}
}

// Lever is the finding type to act on next, with its best candidates.
type Lever struct {
	Type       domain.FindingType `json:"type"`
	Strategy   Strategy           `json:"strategy"`
	Count      int                `json:"count"`
	ValueCents int64              `json:"value_cents"`
	IDs        []string           `json:"ids"`
}

type group struct {
	typ      domain.FindingType
	value    int64
	findings []*domain.Finding
}

// SelectLever groups unhandled findings by type and returns the top group.
// It returns nil when there is nothing left to handle.
func (s *Service) SelectLever(ctx context.Context, limit int, strategy Strategy) (*Lever, error) {
	findings, err := s.repo.ListUnhandled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unhandled findings: %w", err)
	}
	if len(findings) == 0 {
		return nil, nil
	}
	if strategy == "" {
		strategy = StrategyCount
	}
	switch {
	case limit <= 0:
		limit = s.cfg.LeverDefaultLimit
	case limit > s.cfg.LeverMaxLimit:
		limit = s.cfg.LeverMaxLimit
	}

	groups := make(map[domain.FindingType]*group)
	for _, f := range findings {
		g, ok := groups[f.Type]
		if !ok {
			g = &group{typ: f.Type}
			groups[f.Type] = g
		}
		g.value += f.ValueCents
		g.findings = append(g.findings, f)
	}

	ranked := make([]*group, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ca, cb := len(a.findings), len(b.findings)
		if strategy == StrategyValue {
			if a.value != b.value {
				return a.value > b.value
			}
			if ca != cb {
				return ca > cb
			}
		} else {
			if ca != cb {
				return ca > cb
			}
			if a.value != b.value {
				return a.value > b.value
			}
		}
		return a.typ < b.typ
	})

	top := ranked[0]
	sort.Slice(top.findings, func(i, j int) bool {
		a, b := top.findings[i], top.findings[j]
		if a.ValueCents != b.ValueCents {
			return a.ValueCents > b.ValueCents
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.ID < b.ID
	})

	lever := &Lever{
		Type:       top.typ,
		Strategy:   strategy,
		Count:      len(top.findings),
		ValueCents: top.value,
		IDs:        make([]string, 0, limit),
	}
	for _, f := range top.findings {
		if len(lever.IDs) == limit {
			break
		}
		lever.IDs = append(lever.IDs, f.ID)
	}
	return lever, nil
}
