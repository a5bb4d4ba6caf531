package service

import (
	"fmt"
	"strings"
)

// Defaults used when the customer skipped a question.
const (
	defaultOccasion  = "день рождения"
	defaultRecipient = "друга"
	defaultDetails   = "много радости"
	defaultStyle     = "юмор"
)

const poemRequirements = "Требования:\n" +
	"1. Ровно 3-4 четверостишья.\n" +
	"2. Хорошая рифма и ритм.\n" +
	"3. Без использования нецензурных слов и грубости.\n" +
	"4. Должно быть смешно, но не обидно.\n" +
	"5. НЕ используй HTML теги, markdown разметку или blockquote. Только чистый текст стихотворения."

// BuildPoemPrompt renders the generation prompt from the order context
// fields occasion, recipient, details and style.
func BuildPoemPrompt(context map[string]string) string {
	field := func(key, fallback string) string {
		if v := strings.TrimSpace(context[key]); v != "" {
			return v
		}
		return fallback
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Напиши веселое и доброе стихотворение на %s.\n", field("occasion", defaultOccasion))
	fmt.Fprintf(&b, "Получатель: %s.\n", field("recipient", defaultRecipient))
	fmt.Fprintf(&b, "Ключевые детали, которые нужно включить: %s.\n", field("details", defaultDetails))
	fmt.Fprintf(&b, "Стиль: %s.\n\n", field("style", defaultStyle))
	b.WriteString(poemRequirements)
	return b.String()
}
