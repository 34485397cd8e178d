// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
)

const (
	minCodeLength = 4
	maxCodeLength = 16
)

// NormalizeCode приводит введённый пользователем код к каноничному виду.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCode проверяет форму партнёрского кода: латинские заглавные буквы и цифры.
// Коды, выданные до перехода на генератор, могут содержать 0, 1, I, L и O,
// поэтому принадлежность алфавиту генератора не требуется.
func IsValidCode(code string) bool {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}

	return true
}
