// Package classify maps predictor column names to semantic categories. The
// name patterns live in a policy table isolated from the modeling code so
// they can be unit-tested and extended on their own.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marketflow/marketflow/internal/model"
)

// Rule binds a name pattern to a predictor type. Higher priority rules are
// checked first.
type Rule struct {
	Name     string
	Regex    string
	Type     model.PredictorType
	Priority int
}

// compiledRule holds a compiled regex pattern with metadata.
type compiledRule struct {
	compiledRegex *regexp.Regexp
	Rule
}

// Classification is the full semantic verdict for one predictor.
type Classification struct {
	PredictorType  model.PredictorType
	DataType       model.DataType
	SourceVariable string
}

// Policy classifies predictors by name pattern and categorical prefix.
type Policy struct {
	rules    []compiledRule
	prefixes []string
}

// NewPolicy compiles a rule set. Patterns are case-insensitive by default.
func NewPolicy(rules []Rule, categoricalPrefixes []string) (*Policy, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for _, r := range rules {
		regexStr := r.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, err)
		}

		compiled = append(compiled, compiledRule{
			Rule:          r,
			compiledRegex: regex,
		})
	}

	// Sort by priority (highest first)
	for i := 0; i < len(compiled)-1; i++ {
		for j := i + 1; j < len(compiled); j++ {
			if compiled[j].Priority > compiled[i].Priority {
				compiled[i], compiled[j] = compiled[j], compiled[i]
			}
		}
	}

	return &Policy{rules: compiled, prefixes: categoricalPrefixes}, nil
}

// Classify determines the predictor type from the name and the data type
// from the categorical prefixes and the observed value range. A predictor is
// binary only when its observed range is exactly [0, 1].
func (p *Policy) Classify(name string, observedMin, observedMax float64) Classification {
	c := Classification{PredictorType: p.predictorType(name)}

	if source, ok := p.categoricalSource(name); ok {
		c.DataType = model.DataDummy
		c.SourceVariable = source
		return c
	}
	if observedMin == 0 && observedMax == 1 {
		c.DataType = model.DataBinary
		return c
	}
	c.DataType = model.DataNumerical
	return c
}

func (p *Policy) predictorType(name string) model.PredictorType {
	for _, r := range p.rules {
		if r.compiledRegex.MatchString(name) {
			return r.Type
		}
	}
	return model.PredictorProduct
}

// categoricalSource reports whether the name is a one-hot expansion of a
// known categorical variable, and which one.
func (p *Policy) categoricalSource(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(lower, prefix+"_") && len(lower) > len(prefix)+1 {
			return prefix, true
		}
	}
	return "", false
}
