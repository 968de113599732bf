package classify

import "github.com/marketflow/marketflow/internal/model"

// defaultRules is the built-in name-pattern table. Structural identifiers
// outrank everything: a column named product_id must never surface as a
// product attribute.
var defaultRules = []Rule{
	{
		Name:     "structural identifiers",
		Regex:    `(_id|_name|_code|_key|_uuid|_sku)$|^(id|sku|asin|ean|gtin)$`,
		Type:     model.PredictorStructural,
		Priority: 100,
	},
	{
		Name:     "temporal features",
		Regex:    `^(year|quarter|month|week|weekday|day|dow|hour|season|trend|holiday)(_|$)|_(year|quarter|month|week|weekday)$`,
		Type:     model.PredictorTime,
		Priority: 90,
	},
	{
		Name:     "review features",
		Regex:    `rating|sentiment|review|stars|comment|feedback|helpful|verified`,
		Type:     model.PredictorComment,
		Priority: 80,
	},
}

// defaultCategoricalPrefixes lists the variables whose one-hot expansions
// appear in transformed tables.
var defaultCategoricalPrefixes = []string{
	"brand",
	"category",
	"color",
	"size",
	"material",
	"condition",
	"fulfillment",
}

// DefaultPolicy returns the built-in classification policy.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(defaultRules, defaultCategoricalPrefixes)
	if err != nil {
		// Built-in patterns are compile-time constants; a failure here is
		// a programming error.
		panic(err)
	}
	return p
}
