package filtering

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"veritas/internal/config"
	"veritas/internal/logger"
	"veritas/pkg/cel"
	"veritas/pkg/metrics"
	"veritas/pkg/models"
)

type rule struct {
	name       string
	expression string
	program    celgo.Program
}

// Service drops inbound events that match any configured ignore rule before they
// reach deduplication. Rules are compiled once at construction.
type Service struct {
	evaluator *cel.Evaluator
	rules     []rule
	logger    logger.Logger
}

func NewService(cfg config.FilteringConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	rules := make([]rule, 0, len(cfg.IgnoreRules))
	for _, r := range cfg.IgnoreRules {
		program, err := evaluator.CompileFilter(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("ignore rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule{name: r.Name, expression: r.Expression, program: program})
	}

	return &Service{
		evaluator: evaluator,
		rules:     rules,
		logger:    log,
	}, nil
}

// Ignore reports whether ev matches an ignore rule and, if so, which one.
// A rule that fails to evaluate is skipped so the event still gets a reply.
func (s *Service) Ignore(ctx context.Context, ev models.InboundEvent) (string, bool) {
	for _, r := range s.rules {
		matched, err := s.evaluator.EvaluateFilter(ctx, r.program, ev)
		if err != nil {
			metrics.FallbackUsageTotal.WithLabelValues("filtering", "skip_rule", "evaluation_error").Inc()
			s.logger.WarnwCtx(ctx, "Ignore rule evaluation failed, skipping rule",
				"rule_name", r.name,
				"error", err,
			)
			continue
		}

		if matched {
			metrics.EventsFilteredTotal.WithLabelValues(r.name).Inc()
			s.logger.DebugwCtx(ctx, "Event matched ignore rule",
				"rule_name", r.name,
				"expression", r.expression,
			)
			return r.name, true
		}
	}

	return "", false
}

func (s *Service) RuleCount() int {
	return len(s.rules)
}
