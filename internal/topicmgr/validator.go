package topicmgr

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Dotted lowercase segments, e.g. conftimeout.timeout.fired.
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)*$`)
	modulePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	frameworkPrefixes = []string{"server.", "bus."}
	reservedPrefixes  = []string{"system.", "internal."}
)

const maxNameLength = 100

// Validator checks topic definitions before they enter the registry.
type Validator struct{}

// NewValidator creates a topic validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateDefinition checks name, description and scope rules.
func (v *Validator) ValidateDefinition(topic Topic) error {
	if topic == nil {
		return fmt.Errorf("topic cannot be nil")
	}
	if err := v.ValidateName(topic.Name()); err != nil {
		return fmt.Errorf("invalid topic name: %w", err)
	}
	if strings.TrimSpace(topic.Description()) == "" {
		return fmt.Errorf("topic description cannot be empty")
	}

	switch topic.Scope() {
	case ScopeFramework:
		if topic.Module() != "" {
			return fmt.Errorf("framework topics should not have a module")
		}
		if !hasAnyPrefix(topic.Name(), frameworkPrefixes) {
			return fmt.Errorf("framework topic must start with one of %v", frameworkPrefixes)
		}
	case ScopeModule:
		module := topic.Module()
		if !modulePattern.MatchString(module) || len(module) > 50 {
			return fmt.Errorf("invalid module name %q", module)
		}
		if !strings.HasPrefix(topic.Name(), module+".") {
			return fmt.Errorf("module topic %q must be prefixed with %q", topic.Name(), module+".")
		}
	default:
		return fmt.Errorf("invalid topic scope: %s", topic.Scope())
	}
	return nil
}

// ValidateName checks a bare topic name against the naming convention.
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name too long (max %d characters)", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be lowercase dotted segments, got %q", name)
	}
	if hasAnyPrefix(name, reservedPrefixes) {
		return fmt.Errorf("name cannot start with a reserved prefix %v", reservedPrefixes)
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
