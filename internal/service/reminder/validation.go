package reminder

import (
	"fmt"

	"github.com/jwalitptl/academy-api/internal/model"
	apperrors "github.com/jwalitptl/academy-api/pkg/errors"
	"github.com/jwalitptl/academy-api/pkg/validator"
)

// RuleValidator checks a rule's fields and the rules that tie them to
// its type and trigger mode.
type RuleValidator struct {
	fields   validator.Validator
	renderer *Renderer
}

func NewRuleValidator(renderer *Renderer) *RuleValidator {
	return &RuleValidator{fields: validator.New(), renderer: renderer}
}

// Normalize clears the trigger fields that the rule's type and mode do not
// use, so exactly one of days_before, days_after and specific_date is set.
func Normalize(rule *model.ReminderRule) {
	switch rule.Type {
	case model.RuleSubscriptionExpiring:
		if rule.TriggerMode == "" {
			rule.TriggerMode = model.TriggerDays
		}
		rule.DaysAfter = nil
		switch rule.TriggerMode {
		case model.TriggerDays:
			rule.SpecificDate = nil
		case model.TriggerSpecificDate:
			rule.DaysBefore = nil
			if rule.SpecificDate != nil {
				d := model.DateOf(*rule.SpecificDate)
				rule.SpecificDate = &d
			}
		}
	case model.RulePaymentOverdue:
		rule.TriggerMode = ""
		rule.DaysBefore = nil
		rule.SpecificDate = nil
	}
	rule.TargetAudience = rule.TargetAudience.Canonical()
}

// Validate returns a validation error describing every problem found.
func (v *RuleValidator) Validate(rule *model.ReminderRule) error {
	var problems validator.Errors
	if err := v.fields.Validate(rule); err != nil {
		fieldErrs, ok := err.(validator.Errors)
		if !ok {
			return apperrors.Validation("invalid reminder rule", err)
		}
		problems = append(problems, fieldErrs...)
	}

	add := func(field, msg string) {
		problems = append(problems, validator.FieldError{Field: field, Message: msg})
	}

	switch rule.Type {
	case model.RuleSubscriptionExpiring:
		switch rule.TriggerMode {
		case model.TriggerDays:
			if rule.DaysBefore == nil {
				add("days_before", "is required for days trigger")
			}
		case model.TriggerSpecificDate:
			if rule.SpecificDate == nil {
				add("specific_date", "is required for specific_date trigger")
			}
		}
	case model.RulePaymentOverdue:
		if rule.DaysAfter == nil {
			add("days_after", "is required for payment_overdue rules")
		}
	}

	if err := rule.TargetAudience.Validate(); err != nil {
		add("target_audience", err.Error())
	}
	if rule.Message != "" {
		if err := v.renderer.Check(rule.Message); err != nil {
			add("message", err.Error())
		}
	}

	if len(problems) > 0 {
		return apperrors.Validation(fmt.Sprintf("invalid reminder rule: %s", problems.Error()), problems)
	}
	return nil
}
