// prompts.go - Prompt-Vorlagen fuer Verfeinerung, Hashtags und Uebersetzung
package llm

import "fmt"

// Feldnamen der erwarteten JSON-Antworten
const (
	FieldRefinedCaption = "refined_caption"
	FieldHashtags       = "hashtags"
	FieldTranslatedText = "translated_text"
	FieldTranslation    = "translation"
)

// Zielband im Prompt, unabhaengig vom Akzeptanzband des Validators
const (
	promptMinWords = 20
	promptMaxWords = 50
)

const refinePlaceholder = "your refined caption here"

func refinePrompt(caption, tone, context string) string {
	return fmt.Sprintf(
		"Convert this caption into a '%s' tone: %s. "+
			"Also include this additional information: %s. "+
			"Make it engaging and a single sentence of %d to %d words. "+
			"Return ONLY in JSON format as:\n"+
			`{"%s": "%s"}`,
		tone, caption, context, promptMinWords, promptMaxWords, FieldRefinedCaption, refinePlaceholder)
}

func hashtagPrompt(caption string) string {
	return fmt.Sprintf(
		"Generate 5-7 trending hashtags based on this caption: '%s'. "+
			"Use only *popular and relevant* hashtags. "+
			"Return ONLY in JSON format as:\n"+
			`{"%s": ["#tag1", "#tag2", "#tag3"]}`,
		caption, FieldHashtags)
}

func translatePrompt(text, language string) string {
	return fmt.Sprintf(
		"Translate the following text into %s. "+
			"Reply with the translated text only, without quotes, notes or JSON.\n\n%s",
		language, text)
}
