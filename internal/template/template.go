// Package template раскрывает шаблоны сообщений вида "{Hi|Hello} {there|friend}!".
//
// Каждый блок {a|b|c} заменяется одним вариантом, выбранным равномерно
// случайно. Пробелы вокруг вариантов обрезаются.
package template

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// ErrInvalidTemplate — синтаксическая ошибка шаблона.
var ErrInvalidTemplate = errors.New("invalid template")

var blockRe = regexp.MustCompile(`\{([^}]+)\}`)

// Randomize раскрывает все блоки случайными вариантами.
func Randomize(tmpl string) string {
	return RandomizeWith(tmpl, rand.IntN)
}

// RandomizeWith раскрывает блоки, выбирая вариант функцией pick(n) ∈ [0, n).
func RandomizeWith(tmpl string, pick func(n int) int) string {
	if tmpl == "" {
		return tmpl
	}
	return blockRe.ReplaceAllStringFunc(tmpl, func(block string) string {
		options := splitOptions(block[1 : len(block)-1])
		return options[pick(len(options))]
	})
}

// Options возвращает варианты каждого блока по порядку.
func Options(tmpl string) [][]string {
	matches := blockRe.FindAllStringSubmatch(tmpl, -1)
	result := make([][]string, 0, len(matches))
	for _, m := range matches {
		result = append(result, splitOptions(m[1]))
	}
	return result
}

// Validate проверяет парность скобок, не меньше двух вариантов в блоке
// и отсутствие пустых вариантов.
func Validate(tmpl string) error {
	if tmpl == "" {
		return nil
	}

	open, closing := strings.Count(tmpl, "{"), strings.Count(tmpl, "}")
	if open != closing {
		return fmt.Errorf("%w: unmatched braces: %d opening, %d closing", ErrInvalidTemplate, open, closing)
	}

	for i, options := range Options(tmpl) {
		if len(options) < 2 {
			return fmt.Errorf("%w: block %d has only %d option, need at least 2", ErrInvalidTemplate, i, len(options))
		}
		for _, opt := range options {
			if opt == "" {
				return fmt.Errorf("%w: block %d contains empty option", ErrInvalidTemplate, i)
			}
		}
	}
	return nil
}

func splitOptions(s string) []string {
	parts := strings.Split(s, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
