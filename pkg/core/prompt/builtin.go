package prompt

// PromptIDs contains all known prompt identifiers
var PromptIDs = struct {
	RatingNarrative string
}{
	RatingNarrative: "rating.narrative",
}

func builtinPrompts() []*PromptTemplate {
	return []*PromptTemplate{
		{
			ID:           PromptIDs.RatingNarrative,
			Name:         "Narrative rating",
			Category:     "rating",
			Description:  "Rates a company 1-5 from its 10-K risk factors and MD&A.",
			SystemPrompt: "You are a financial analysis expert. You read annual report narrative sections and respond with JSON only.",
			UserPromptTmpl: `Provide a rating from 1 'sell', 2 'underperform', 3 'hold', 4 'outperform', 5 'strong buy' for the following based on risk factors and management discussion and analysis.

Risk factors:
{{.RiskText}}

Management discussion and analysis:
{{.MDAText}}

Respond with JSON only, like {"rating": 4, "rationale": "text"}. The rating must be an integer from 1 to 5.`,
			Variables: []PromptVariable{
				{Name: "RiskText", Description: "Item 1A text", Required: true},
				{Name: "MDAText", Description: "Item 7 text", Required: true},
			},
			Version: "1",
		},
	}
}
