// Package imports provides static import extraction, project-path
// resolution, and cache-path rewriting for transpiled module code.
//
// The scanner is a single pass over the raw bytes: it never builds an AST
// and never executes anything, which keeps it cheap enough to run twice per
// file during batch processing. It understands static `import`/`export ...
// from` statements, dynamic `import(...)` calls, and `require(...)` calls,
// and classifies type-only imports so the graph can exempt them from
// runtime dependency tracking.
package imports

import "bytes"

// Kind classifies an import reference.
type Kind uint8

const (
	// KindRuntime is an import with runtime effect.
	KindRuntime Kind = iota
	// KindTypeOnly is an `import type` / `export type` reference, erased
	// during transpilation.
	KindTypeOnly
)

// Ref is one import reference found in source text. Start and End are byte
// offsets of the specifier itself (between, not including, the quotes), so
// the rewriter can splice replacements without re-lexing.
type Ref struct {
	Specifier string
	Start     int
	End       int
	Kind      Kind
	Dynamic   bool
}

// Scan extracts every import reference from src in source order.
func Scan(src []byte) []Ref {
	s := scanner{src: src, n: len(src)}
	s.run()
	return s.refs
}

type scanner struct {
	src  []byte
	n    int
	refs []Ref
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$'
}

func (s *scanner) skipSpaces(i int) int {
	for i < s.n && isSpace(s.src[i]) {
		i++
	}
	return i
}

func (s *scanner) skipLineComment(i int) int {
	for i < s.n && s.src[i] != '\n' {
		i++
	}
	return i
}

func (s *scanner) skipBlockComment(i int) int {
	i += 2
	for i+1 < s.n && !(s.src[i] == '*' && s.src[i+1] == '/') {
		i++
	}
	if i+1 < s.n {
		i += 2
	}
	return i
}

func (s *scanner) skipString(i int, quote byte) int {
	i++
	for i < s.n {
		switch s.src[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1
		default:
			i++
		}
	}
	return i
}

func (s *scanner) skipSpacesAndComments(i int) int {
	for i < s.n {
		i = s.skipSpaces(i)
		if i+1 < s.n && s.src[i] == '/' && s.src[i+1] == '/' {
			i = s.skipLineComment(i)
			continue
		}
		if i+1 < s.n && s.src[i] == '/' && s.src[i+1] == '*' {
			i = s.skipBlockComment(i)
			continue
		}
		break
	}
	return i
}

// wordAt reports whether the keyword starts at i and is not part of a
// longer identifier.
func (s *scanner) wordAt(i int, word string) bool {
	if i+len(word) > s.n || !bytes.HasPrefix(s.src[i:], []byte(word)) {
		return false
	}
	if i > 0 && isIdentChar(s.src[i-1]) {
		return false
	}
	end := i + len(word)
	return end >= s.n || !isIdentChar(s.src[end])
}

// stringLiteral reads the literal starting at the quote at i. Offsets are
// for the content between the quotes.
func (s *scanner) stringLiteral(i int) (spec string, start, end, next int, ok bool) {
	quote := s.src[i]
	i++
	start = i
	for i < s.n && s.src[i] != quote {
		if s.src[i] == '\\' {
			i++
		}
		i++
	}
	if i >= s.n {
		return "", 0, 0, i, false
	}
	return string(s.src[start:i]), start, i, i + 1, true
}

func (s *scanner) run() {
	i := 0
	for i < s.n {
		c := s.src[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = s.skipString(i, c)
		case c == '/' && i+1 < s.n && s.src[i+1] == '/':
			i = s.skipLineComment(i)
		case c == '/' && i+1 < s.n && s.src[i+1] == '*':
			i = s.skipBlockComment(i)
		case c == 'i' && s.wordAt(i, "import"):
			i = s.scanImport(i + len("import"))
		case c == 'e' && s.wordAt(i, "export"):
			i = s.scanExport(i + len("export"))
		case c == 'r' && s.wordAt(i, "require"):
			i = s.scanCall(i+len("require"), KindRuntime)
		default:
			i++
		}
	}
}

// scanCall handles `require(...)` and dynamic `import(...)`: a call whose
// first argument is a string literal.
func (s *scanner) scanCall(i int, kind Kind) int {
	i = s.skipSpacesAndComments(i)
	if i >= s.n || s.src[i] != '(' {
		return i
	}
	i = s.skipSpacesAndComments(i + 1)
	if i >= s.n || (s.src[i] != '\'' && s.src[i] != '"') {
		return i
	}
	spec, start, end, next, ok := s.stringLiteral(i)
	if ok && spec != "" {
		s.refs = append(s.refs, Ref{Specifier: spec, Start: start, End: end, Kind: kind, Dynamic: true})
	}
	return next
}

func (s *scanner) scanImport(i int) int {
	i = s.skipSpacesAndComments(i)
	if i >= s.n {
		return i
	}

	// Dynamic import: import("mod")
	if s.src[i] == '(' {
		return s.scanCall(i, KindRuntime)
	}

	kind := KindRuntime
	if s.wordAt(i, "type") {
		// `import type ... from "mod"`, though `import type from "mod"` has
		// `type` as a default-import name; a following identifier, `{`, or
		// `*` marks the keyword form.
		j := s.skipSpacesAndComments(i + len("type"))
		if j < s.n && (isIdentChar(s.src[j]) && !s.wordAt(j, "from") || s.src[j] == '{' || s.src[j] == '*') {
			kind = KindTypeOnly
			i = j
		}
	}

	// Side-effect import: import "mod"
	if i < s.n && (s.src[i] == '\'' || s.src[i] == '"') {
		spec, start, end, next, ok := s.stringLiteral(i)
		if ok && spec != "" {
			s.refs = append(s.refs, Ref{Specifier: spec, Start: start, End: end, Kind: kind})
		}
		return next
	}

	// Named/default/namespace clause: scan ahead to `from`, tracking
	// whether every brace-list member carries an inline `type`.
	allType := true
	sawBrace := false
	for i < s.n {
		if s.wordAt(i, "from") {
			i += len("from")
			break
		}
		switch {
		case s.src[i] == '{':
			sawBrace = true
			i++
			i = s.skipSpacesAndComments(i)
			for i < s.n && s.src[i] != '}' {
				if !s.wordAt(i, "type") {
					allType = false
				}
				// skip to next comma or closing brace
				for i < s.n && s.src[i] != ',' && s.src[i] != '}' {
					i++
				}
				if i < s.n && s.src[i] == ',' {
					i++
					i = s.skipSpacesAndComments(i)
				}
			}
		case s.src[i] == ';':
			// malformed or bare `import x`; give up on this statement
			return i
		case s.wordAt(i, "import") || s.wordAt(i, "export") || s.wordAt(i, "require"):
			// ran into the next statement without finding `from`
			return i
		case s.src[i] == '/' && i+1 < s.n && s.src[i+1] == '/':
			i = s.skipLineComment(i)
		case s.src[i] == '/' && i+1 < s.n && s.src[i+1] == '*':
			i = s.skipBlockComment(i)
		default:
			i++
		}
	}
	if kind == KindRuntime && sawBrace && allType {
		kind = KindTypeOnly
	}

	i = s.skipSpacesAndComments(i)
	if i < s.n && (s.src[i] == '\'' || s.src[i] == '"') {
		spec, start, end, next, ok := s.stringLiteral(i)
		if ok && spec != "" {
			s.refs = append(s.refs, Ref{Specifier: spec, Start: start, End: end, Kind: kind})
		}
		return next
	}
	return i
}

func (s *scanner) scanExport(i int) int {
	i = s.skipSpacesAndComments(i)
	if i >= s.n {
		return i
	}

	kind := KindRuntime
	if s.wordAt(i, "type") {
		j := s.skipSpacesAndComments(i + len("type"))
		if j < s.n && (s.src[j] == '{' || s.src[j] == '*') {
			kind = KindTypeOnly
			i = j
		} else {
			// `export type X = ...` is a local declaration, no specifier
			return i
		}
	}

	// Only `export ... from "mod"` forms produce references; local exports
	// are skipped by the `from` scan bailing out at statement boundaries.
	if s.src[i] != '{' && s.src[i] != '*' {
		return i
	}

	for i < s.n {
		if s.wordAt(i, "from") {
			i += len("from")
			i = s.skipSpacesAndComments(i)
			if i < s.n && (s.src[i] == '\'' || s.src[i] == '"') {
				spec, start, end, next, ok := s.stringLiteral(i)
				if ok && spec != "" {
					s.refs = append(s.refs, Ref{Specifier: spec, Start: start, End: end, Kind: kind})
				}
				return next
			}
			return i
		}
		if s.src[i] == ';' {
			return i
		}
		if s.wordAt(i, "import") || s.wordAt(i, "export") || s.wordAt(i, "require") {
			return i
		}
		if s.src[i] == '/' && i+1 < s.n && s.src[i+1] == '/' {
			i = s.skipLineComment(i)
			continue
		}
		if s.src[i] == '/' && i+1 < s.n && s.src[i+1] == '*' {
			i = s.skipBlockComment(i)
			continue
		}
		i++
	}
	return i
}
