package daos

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the derived command category of a single SQL statement. It decides
// both whether the statement is permitted and how it is executed (row
// iteration vs. affected-row count).
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindSchema
	KindPragma
	KindExplain
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindSchema:
		return "schema"
	case KindPragma:
		return "pragma"
	case KindExplain:
		return "explain"
	}
	return "unknown"
}

// ReturnsRows reports whether statements of this kind produce a result set.
func (k Kind) ReturnsRows() bool {
	return k == KindRead || k == KindPragma || k == KindExplain
}

// Classification is the per-request result of validating one SQL string.
type Classification struct {
	Kind       Kind
	Statements int
}

// Classify validates a single SQL statement and determines its command kind.
//
// Exactly one logical statement is permitted: a single trailing semicolon
// followed only by whitespace is tolerated, but any other semicolon outside
// a quoted string literal fails with ErrMultipleStatements. The leading
// keyword (comments skipped, case-insensitive) must be on the allowlist;
// unknown keywords are rejected rather than passed through. This is a
// deliberately lexical check, not a SQL parser: it cannot catch every
// semantically multi-effect statement the engine might accept.
func Classify(sqlText string) (Classification, error) {
	s := strings.TrimSpace(sqlText)
	if s == "" {
		return Classification{}, ErrEmptyStatement
	}

	var inSingle, inDouble bool
	semi := -1
	n := len(s)
	for i := 0; i < n; i++ {
		c := s[i]
		if semi >= 0 {
			// Once a statement terminator is seen, only trailing
			// whitespace is acceptable.
			if !isSpace(c) {
				return Classification{}, fmt.Errorf("%w: content after statement terminator", ErrMultipleStatements)
			}
			continue
		}
		switch {
		case inSingle:
			if c == '\'' {
				if i+1 < n && s[i+1] == '\'' {
					i++ // escaped quote
				} else {
					inSingle = false
				}
			}
		case inDouble:
			if c == '"' {
				if i+1 < n && s[i+1] == '"' {
					i++
				} else {
					inDouble = false
				}
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '-' && i+1 < n && s[i+1] == '-':
			for i < n && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && s[i+1] == '*':
			i += 2
			for i+1 < n && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++
		case c == ';':
			semi = i
		}
	}

	keyword := leadingKeyword(s)
	if keyword == "" {
		return Classification{}, ErrEmptyStatement
	}

	var kind Kind
	switch keyword {
	case "SELECT":
		kind = KindRead
	case "INSERT", "UPDATE", "DELETE":
		kind = KindWrite
	case "CREATE", "ALTER", "DROP":
		kind = KindSchema
	case "PRAGMA":
		kind = KindPragma
	case "EXPLAIN":
		kind = KindExplain
	default:
		// Deny by default. ATTACH, VACUUM, extension loading, and anything
		// else not explicitly listed never reaches the engine.
		return Classification{}, CommandNotAllowedErr(keyword)
	}

	return Classification{Kind: kind, Statements: 1}, nil
}

// leadingKeyword extracts the first SQL keyword, skipping whitespace and
// leading line or block comments.
func leadingKeyword(s string) string {
	n := len(s)
	i := 0
	for i < n {
		switch {
		case isSpace(s[i]):
			i++
		case s[i] == '-' && i+1 < n && s[i+1] == '-':
			for i < n && s[i] != '\n' {
				i++
			}
		case s[i] == '/' && i+1 < n && s[i+1] == '*':
			i += 2
			for i+1 < n && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i += 2
		default:
			j := i
			for j < n && isWordChar(s[j]) {
				j++
			}
			return strings.ToUpper(s[i:j])
		}
	}
	return ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// MarshalJSON renders the kind as its lowercase name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}
