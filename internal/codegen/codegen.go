// Package codegen генерирует коды, удобные для ручного ввода.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Alphabet не содержит визуально неоднозначных символов (0/O, 1/I/L).
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// ErrExhausted возвращается, если за отведённое число попыток не набрано нужное количество уникальных кодов.
var ErrExhausted = errors.New("code generation attempts exhausted")

// Generator выпускает случайные коды фиксированной длины.
type Generator struct {
	length int
	// attemptsPerCode ограничивает число попыток на один код.
	attemptsPerCode int
	rnd             func() (string, error)
}

// New создаёт генератор кодов длины length.
func New(length int) *Generator {
	g := &Generator{length: length, attemptsPerCode: 10}
	g.rnd = g.random
	return g
}

// Code возвращает один случайный код.
func (g *Generator) Code() (string, error) {
	return g.rnd()
}

// Batch возвращает count уникальных кодов, отсутствующих в taken.
// taken проверяет пачку кандидатов и возвращает уже выпущенные из них.
func (g *Generator) Batch(count int, taken func([]string) (map[string]bool, error)) ([]string, error) {
	budget := count * g.attemptsPerCode
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)

	for budget > 0 && len(codes) < count {
		need := count - len(codes)
		candidates := make([]string, 0, need)
		for len(candidates) < need && budget > 0 {
			budget--
			c, err := g.rnd()
			if err != nil {
				return nil, err
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			candidates = append(candidates, c)
		}

		existing, err := taken(candidates)
		if err != nil {
			return nil, fmt.Errorf("check issued codes: %w", err)
		}
		for _, c := range candidates {
			if !existing[c] {
				codes = append(codes, c)
			}
		}
	}

	if len(codes) < count {
		return nil, ErrExhausted
	}
	return codes, nil
}

func (g *Generator) random() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
