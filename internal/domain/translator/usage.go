package translator

import "github.com/GriffinCanCode/chatgate/internal/domain/chat"

// tokensPerWord is a rough multiplier, not tokenizer output
const tokensPerWord = 2

// EstimateUsage approximates token counts from word counts
func EstimateUsage(prompt, completion string) chat.Usage {
	p := chat.WordCount(prompt) * tokensPerWord
	c := chat.WordCount(completion) * tokensPerWord
	return chat.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
