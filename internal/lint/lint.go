// Package lint runs validation rule modules over the message list and
// publishes the resulting reports.
package lint

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/settings"
	"polyglot/internal/tracing"
)

// DefaultLevel applies to rules without a configured level.
const DefaultLevel = settings.LevelWarning

// Report is one finding of a rule about a message in a language.
type Report struct {
	RuleID      string            `json:"ruleId"`
	MessageID   string            `json:"messageId"`
	LanguageTag string            `json:"languageTag"`
	Level       settings.Level    `json:"level"`
	Body        map[string]string `json:"body"`
}

// RuleError is a failure of one rule on one message.
type RuleError struct {
	RuleID    string
	MessageID string
	Err       error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s on message %q: %v", e.RuleID, e.MessageID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// SourcePolicy decides whether rules see the source language.
type SourcePolicy int

const (
	// SourceIncluded passes every language tag to rules.
	SourceIncluded SourcePolicy = iota
	// SourceExcluded removes the source tag from the rule's language list
	// and drops reports that target it.
	SourceExcluded
)

func (p SourcePolicy) String() string {
	if p == SourceExcluded {
		return "exclude"
	}
	return "include"
}

// ParseSourcePolicy accepts "include" and "exclude"; empty means include.
func ParseSourcePolicy(s string) (SourcePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "include", "included":
		return SourceIncluded, nil
	case "exclude", "excluded":
		return SourceExcluded, nil
	}
	return SourceIncluded, fmt.Errorf("unknown source policy %q", s)
}

type Input struct {
	Messages     []messages.Message
	Rules        []module.InstalledRule
	Settings     settings.Settings
	SourcePolicy SourcePolicy
	DefaultLevel settings.Level
}

type Result struct {
	Reports []Report
	Errors  []*RuleError
}

// Run invokes every enabled rule once per message. Failures are isolated
// per rule and message. Reports come out in rule, then message order.
func Run(ctx context.Context, in Input) Result {
	ctx, span := tracing.Start(ctx, "lint.Run",
		attribute.Int("messages", len(in.Messages)),
		attribute.Int("rules", len(in.Rules)))
	defer span.End()

	fallback := in.DefaultLevel
	if !fallback.Valid() {
		fallback = DefaultLevel
	}
	source := in.Settings.SourceLanguageTag
	tags := slices.Clone(in.Settings.LanguageTags)
	if in.SourcePolicy == SourceExcluded {
		tags = slices.DeleteFunc(tags, func(t string) bool { return t == source })
	}

	res := Result{Reports: []Report{}, Errors: []*RuleError{}}
	for _, rule := range in.Rules {
		level := in.Settings.LevelFor(rule.Meta.ID, fallback)
		if level == settings.LevelOff {
			continue
		}
		for _, msg := range in.Messages {
			if ctx.Err() != nil {
				return res
			}
			reports, err := runOne(ctx, rule, level, msg, tags, in)
			res.Reports = append(res.Reports, reports...)
			if err != nil {
				res.Errors = append(res.Errors, &RuleError{RuleID: rule.Meta.ID, MessageID: msg.ID, Err: err})
			}
		}
	}
	span.SetAttributes(attribute.Int("reports", len(res.Reports)), attribute.Int("errors", len(res.Errors)))
	return res
}

func runOne(ctx context.Context, rule module.InstalledRule, level settings.Level, msg messages.Message, tags []string, in Input) (reports []Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	report := func(f module.Finding) {
		if in.SourcePolicy == SourceExcluded && f.LanguageTag == in.Settings.SourceLanguageTag {
			return
		}
		id := f.MessageID
		if id == "" {
			id = msg.ID
		}
		reports = append(reports, Report{
			RuleID:      rule.Meta.ID,
			MessageID:   id,
			LanguageTag: f.LanguageTag,
			Level:       level,
			Body:        maps.Clone(f.Body),
		})
	}
	err = rule.Rule.Run(ctx, module.RunArgs{
		Message:           msg.Clone(),
		Report:            report,
		SourceLanguageTag: in.Settings.SourceLanguageTag,
		LanguageTags:      slices.Clone(tags),
		Settings:          in.Settings.ForModule(rule.Meta.ID),
	})
	return reports, err
}
