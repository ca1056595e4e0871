// Package command turns a normalized message into a typed command the dialog consumes.
package command

import (
	"strconv"
	"strings"
)

// Add is an add-to-cart request.
type Add struct {
	// ProductID is empty when the request refers to the product under the browse cursor ("si").
	ProductID string
	Quantity  int
}

// Current reports whether the request targets the product being shown.
func (a *Add) Current() bool {
	return a != nil && a.ProductID == ""
}

// Command is the parsed form of one message.
type Command struct {
	// Clean is the sanitized message with original casing.
	Clean string
	// Text is the normalized message.
	Text   string
	Tokens []string
	// Numbers holds every all-digit token, in order.
	Numbers []string
	Add     *Add
}

var (
	affirmatives  = map[string]bool{"si": true, "sip": true, "yes": true}
	quantityUnits = map[string]bool{"x": true, "unidad": true, "unidades": true, "pieza": true, "piezas": true, "pz": true}
)

// Parse builds a Command. text must already be normalized.
func Parse(clean, text string) Command {
	c := Command{
		Clean:  clean,
		Text:   text,
		Tokens: strings.Fields(text),
	}
	for _, tok := range c.Tokens {
		if isDigits(tok) {
			c.Numbers = append(c.Numbers, tok)
		}
	}
	c.Add = parseAdd(c.Tokens)
	return c
}

// parseAdd recognizes "<qty>x <id>", "<qty> x <id>", "<qty> unidades <id>", "<qty> <id>",
// "si", "si <id>", "pedido <id>" and a bare "<id>".
func parseAdd(tokens []string) *Add {
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		if isDigits(tokens[0]) {
			return &Add{ProductID: tokens[0], Quantity: 1}
		}
		if affirmatives[tokens[0]] {
			return &Add{Quantity: 1}
		}
		return nil
	}

	if qty, ok := quantityPrefix(tokens[0]); ok {
		rest := tokens[1:]
		if len(rest) >= 2 && quantityUnits[rest[0]] {
			rest = rest[1:]
		} else if !strings.HasSuffix(tokens[0], "x") && len(rest) >= 2 {
			return nil
		}
		if len(rest) == 1 && isDigits(rest[0]) && qty > 0 {
			return &Add{ProductID: rest[0], Quantity: qty}
		}
		return nil
	}

	if len(tokens) == 2 && isDigits(tokens[1]) && (affirmatives[tokens[0]] || tokens[0] == "pedido") {
		return &Add{ProductID: tokens[1], Quantity: 1}
	}
	return nil
}

// quantityPrefix accepts "3" and "3x".
func quantityPrefix(tok string) (int, bool) {
	tok = strings.TrimSuffix(tok, "x")
	if !isDigits(tok) {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// First returns the first token or "".
func (c Command) First() string {
	if len(c.Tokens) == 0 {
		return ""
	}
	return c.Tokens[0]
}

// Empty reports whether nothing survived normalization.
func (c Command) Empty() bool {
	return len(c.Tokens) == 0
}

// Has reports whether any token equals one of words.
func (c Command) Has(words ...string) bool {
	for _, tok := range c.Tokens {
		for _, w := range words {
			if tok == w {
				return true
			}
		}
	}
	return false
}

// HasPhrase reports whether one of phrases occurs as a contiguous token sequence.
func (c Command) HasPhrase(phrases ...string) bool {
	for _, p := range phrases {
		if indexPhrase(c.Tokens, strings.Fields(p)) >= 0 {
			return true
		}
	}
	return false
}

// StartsWith reports whether the tokens begin with one of phrases.
func (c Command) StartsWith(phrases ...string) bool {
	for _, p := range phrases {
		want := strings.Fields(p)
		if len(want) > 0 && len(want) <= len(c.Tokens) && indexPhrase(c.Tokens[:len(want)], want) == 0 {
			return true
		}
	}
	return false
}

// Is reports whether the whole message equals one of phrases.
func (c Command) Is(phrases ...string) bool {
	for _, p := range phrases {
		if c.Text == p {
			return true
		}
	}
	return false
}

// Numeric reports whether the message is a single number.
func (c Command) Numeric() bool {
	return len(c.Tokens) == 1 && isDigits(c.Tokens[0])
}

// Digits returns the message with whitespace removed when the rest is all digits.
func (c Command) Digits() (string, bool) {
	s := strings.Join(c.Tokens, "")
	return s, isDigits(s)
}

// After returns the tokens following the first n, joined by spaces.
func (c Command) After(n int) string {
	if n >= len(c.Tokens) {
		return ""
	}
	return strings.Join(c.Tokens[n:], " ")
}

// Arg returns token i or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Tokens) {
		return ""
	}
	return c.Tokens[i]
}

// Int parses Numbers[i].
func (c Command) Int(i int) (int, bool) {
	if i < 0 || i >= len(c.Numbers) {
		return 0, false
	}
	n, err := strconv.Atoi(c.Numbers[i])
	return n, err == nil
}

func indexPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, w := range phrase {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i
	}
	return -1
}
