package utils

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

// ExtractJSONObject достает JSON-объект из ответа модели:
// сначала из блока ```json ... ```, затем между первой { и последней }.
// Возвращает пустую строку, если валидного объекта нет.
func ExtractJSONObject(rawText string) string {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return ""
	}
	if json.Valid([]byte(rawText)) && strings.HasPrefix(rawText, "{") {
		return rawText
	}

	for _, m := range jsonFenceRegex.FindAllStringSubmatch(rawText, -1) {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	first := strings.Index(rawText, "{")
	last := strings.LastIndex(rawText, "}")
	if first != -1 && last > first {
		candidate := rawText[first : last+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return ""
}

// StringShort обрезает строку до maxLen символов, добавляя многоточие.
func StringShort(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
