// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package policy evaluates the block/confirm/allow rule chain before any
// operation is dispatched.
//
// Rules are ordered; the first rule whose pattern and predicate both match
// decides the outcome. An empty chain, or a chain with no matching rule,
// allows the call. Patterns match unanchored and case-insensitively, so
// "delete_*" catches "github_delete_repo".
package policy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/apibridge/internal/config"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// Action is the outcome a rule assigns to matching operations.
type Action string

const (
	// Block refuses the call outright.
	Block Action = "block"
	// Confirm requires the caller to pass confirm: true.
	Confirm Action = "confirm"
	// Allow permits the call.
	Allow Action = "allow"
)

// rule is one compiled policy rule.
type rule struct {
	pattern     string
	action      Action
	description string
	predicate   *vm.Program
}

// Filter is the compiled policy chain. Immutable after New; safe for
// concurrent Evaluate calls.
type Filter struct {
	rules []rule
}

// New compiles the configured rules into a filter. Predicate expressions
// are compiled once here so Evaluate never pays compilation cost; an
// invalid pattern or predicate fails loading.
func New(rules []config.PolicyRule) (*Filter, error) {
	f := &Filter{rules: make([]rule, 0, len(rules))}

	for i, rc := range rules {
		if !doublestar.ValidatePattern(rc.Pattern) {
			return nil, fmt.Errorf("policy rule %d: invalid pattern %q", i, rc.Pattern)
		}

		r := rule{
			pattern:     rc.Pattern,
			action:      Action(rc.Action),
			description: rc.Description,
		}
		switch r.action {
		case Block, Confirm, Allow:
		default:
			return nil, fmt.Errorf("policy rule %d: unknown action %q", i, rc.Action)
		}

		if rc.When != "" {
			prog, err := expr.Compile(rc.When,
				expr.AllowUndefinedVariables(),
				expr.AsBool(),
			)
			if err != nil {
				return nil, fmt.Errorf("policy rule %d: compiling predicate %q: %w", i, rc.When, err)
			}
			r.predicate = prog
		}

		f.rules = append(f.rules, r)
	}

	return f, nil
}

// Decision is the outcome of evaluating one call against the chain.
type Decision struct {
	// Action is the decided action; Allow when no rule matched.
	Action Action

	// Rule is the pattern of the deciding rule, empty for the default.
	Rule string

	// Description is the deciding rule's description.
	Description string
}

// Evaluate runs the chain for an operation identity and its bound arguments.
// Arguments are read-only inputs to predicates. A predicate evaluation error
// counts as a non-match; rules never fail open into Block or closed into
// Allow because of a broken predicate on a different rule.
func (f *Filter) Evaluate(identity string, args map[string]interface{}) Decision {
	for _, r := range f.rules {
		if !matchIdentity(r.pattern, identity) {
			continue
		}

		if r.predicate != nil {
			env := map[string]interface{}{
				"operation": identity,
				"args":      args,
			}
			out, err := expr.Run(r.predicate, env)
			if err != nil {
				continue
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}

		return Decision{Action: r.action, Rule: r.pattern, Description: r.description}
	}

	return Decision{Action: Allow}
}

// matchIdentity matches a glob pattern against an operation identity,
// unanchored and case-insensitively: the pattern matches when it covers any
// part of the identity, so "delete_*" catches "github_delete_repo".
func matchIdentity(pattern, identity string) bool {
	p := "*" + strings.ToLower(pattern) + "*"
	matched, err := doublestar.Match(p, strings.ToLower(identity))
	return err == nil && matched
}

// Check evaluates the chain and converts the decision into the error the
// tool surface reports. A Confirm decision passes when confirmed is true.
func (f *Filter) Check(identity string, args map[string]interface{}, confirmed bool) error {
	decision := f.Evaluate(identity, args)

	switch decision.Action {
	case Block:
		return &apierrors.PolicyError{
			Kind:        apierrors.Blocked,
			Identity:    identity,
			Rule:        decision.Rule,
			Description: decision.Description,
		}
	case Confirm:
		if confirmed {
			return nil
		}
		return &apierrors.PolicyError{
			Kind:        apierrors.ConfirmationRequired,
			Identity:    identity,
			Rule:        decision.Rule,
			Description: decision.Description,
		}
	default:
		return nil
	}
}

// Len reports the number of compiled rules.
func (f *Filter) Len() int {
	return len(f.rules)
}
