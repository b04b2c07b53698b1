package typecheck

import "strings"

// numberKind is the result of scanning text with the numeric grammar.
type numberKind uint8

const (
	notNumber numberKind = iota
	numberInt            // digits only, optionally signed
	numberReal           // has a fraction or exponent
	numberSpecial        // Inf, Infinity or NaN
)

// grokNumber scans s with the locale-free numeric grammar:
//
//	ws* [+-]? ( digits ( '.' digits? )? | '.' digits ) ( [eE] [+-]? digits )? ws*
//	ws* [+-]? ( "Inf" | "Infinity" | "NaN" ) ws*
func grokNumber(s string) numberKind {
	i, n := 0, len(s)
	for i < n && isSpace(s[i]) {
		i++
	}
	for n > i && isSpace(s[n-1]) {
		n--
	}
	if i < n && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if i == n {
		return notNumber
	}

	if !isDigit(s[i]) && s[i] != '.' {
		if special(s[i:n]) {
			return numberSpecial
		}
		return notNumber
	}

	kind := numberInt
	intDigits := 0
	for i < n && isDigit(s[i]) {
		i++
		intDigits++
	}
	if i < n && s[i] == '.' {
		i++
		kind = numberReal
		fracDigits := 0
		for i < n && isDigit(s[i]) {
			i++
			fracDigits++
		}
		if intDigits == 0 && fracDigits == 0 {
			return notNumber
		}
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		i++
		kind = numberReal
		if i < n && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expDigits := 0
		for i < n && isDigit(s[i]) {
			i++
			expDigits++
		}
		if expDigits == 0 {
			return notNumber
		}
	}
	if i != n {
		return notNumber
	}
	return kind
}

func special(s string) bool {
	return strings.EqualFold(s, "inf") ||
		strings.EqualFold(s, "infinity") ||
		strings.EqualFold(s, "nan")
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
