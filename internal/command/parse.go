package command

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"datalogbridge/internal/ir"
	"datalogbridge/internal/logging"
)

const (
	separators     = ":-"
	literalDelims  = "(,)."
	bodyLiteralSep = "."
	argumentSep    = ","
	openParen      = '('
	closeParen     = ')'
)

// Parse normalizes one line of input. Any error is an *ir.SyntaxError and no
// partial Command is returned with it.
func Parse(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case ExitWord:
		return Command{Kind: KindExit, Input: line}, nil
	case HelpWord:
		return Command{Kind: KindHelp, Input: line}, nil
	}

	stripped := stripSpace(trimmed)
	if stripped == "" {
		return Command{}, ir.NewSyntaxError(ir.ErrEmptyLine, line, "nothing to parse")
	}

	marker := markerOf(stripped[len(stripped)-1])
	if marker == MarkerNone {
		return Command{}, ir.NewSyntaxError(ir.ErrMissingTerminator, line,
			"line must end with '.', '?' or '~'")
	}
	content := stripped[:len(stripped)-1]

	headText, bodyText, hasBody := splitClause(content)
	if hasBody && marker == MarkerQuery {
		return Command{}, ir.NewSyntaxError(ir.ErrQueryCannotHaveBody, line,
			"queries take a single literal")
	}

	head, err := parseLiteral(headText, line)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Marker: marker, Head: head, Input: line}
	if hasBody {
		body, err := parseBody(bodyText, line)
		if err != nil {
			return Command{}, err
		}
		cmd.Body = body
	}
	cmd.Kind = kindOf(marker, hasBody)

	logging.ParseDebug("parsed %s: %s", cmd.Kind, cmd)
	return cmd, nil
}

// ParseLiteral parses a single literal with no terminator, e.g. "likes(mary,X)".
func ParseLiteral(text string) (ir.Literal, error) {
	return parseLiteral(stripSpace(text), text)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func markerOf(b byte) Marker {
	switch b {
	case '?':
		return MarkerQuery
	case '.':
		return MarkerStatement
	case '~':
		return MarkerRetraction
	default:
		return MarkerNone
	}
}

func kindOf(marker Marker, hasBody bool) Kind {
	switch marker {
	case MarkerQuery:
		return KindQuery
	case MarkerRetraction:
		return KindRetraction
	default:
		if hasBody {
			return KindRule
		}
		return KindFact
	}
}

// splitClause cuts at the first ':' or '-'. The second character of a ":-"
// token is dropped with it.
func splitClause(content string) (head, body string, ok bool) {
	idx := strings.IndexAny(content, separators)
	if idx < 0 {
		return content, "", false
	}
	head, body = content[:idx], content[idx+1:]
	if strings.HasPrefix(body, "-") || strings.HasPrefix(body, ":") {
		body = body[1:]
	}
	return head, body, true
}

func parseBody(text, input string) ([]ir.Literal, error) {
	if text == "" {
		return nil, ir.NewSyntaxError(ir.ErrMalformedLiteral, input, "rule body is empty")
	}
	parts := strings.Split(text, bodyLiteralSep)
	body := make([]ir.Literal, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, ir.NewSyntaxError(ir.ErrMalformedLiteral, input, "body literal %d is empty", i+1)
		}
		lit, err := parseLiteral(part, input)
		if err != nil {
			return nil, err
		}
		body = append(body, lit)
	}
	return body, nil
}

// parseLiteral reads predicate(term,...) from whitespace-free text.
func parseLiteral(text, input string) (ir.Literal, error) {
	cut := strings.IndexAny(text, literalDelims)
	if cut < 0 {
		cut = len(text)
	}
	predicate, rest := text[:cut], text[cut:]
	if predicate == "" {
		return ir.Literal{}, ir.NewSyntaxError(ir.ErrEmptyPredicate, input, "literal %q has no predicate", text)
	}
	if rest == "" {
		return ir.NewLiteral(predicate)
	}

	if rest[0] != openParen || rest[len(rest)-1] != closeParen || len(rest) < 2 {
		return ir.Literal{}, ir.NewSyntaxError(ir.ErrMalformedLiteral, input,
			"literal %q must be predicate(term,...)", text)
	}
	inner := rest[1 : len(rest)-1]
	if inner == "" {
		return ir.Literal{}, ir.NewSyntaxError(ir.ErrMalformedLiteral, input, "literal %q has an empty argument list", text)
	}
	if strings.ContainsAny(inner, "().") {
		return ir.Literal{}, ir.NewSyntaxError(ir.ErrMalformedLiteral, input,
			"unexpected delimiter inside %q", text)
	}

	args := strings.Split(inner, argumentSep)
	terms := make([]ir.Term, 0, len(args))
	for i, arg := range args {
		term, err := parseTerm(arg, i, text, input)
		if err != nil {
			return ir.Literal{}, err
		}
		terms = append(terms, term)
	}
	return ir.NewLiteral(predicate, terms...)
}

// parseTerm classifies by first letter: upper-case is a variable, lower-case
// a constant, anything else is rejected.
func parseTerm(arg string, pos int, literal, input string) (ir.Term, error) {
	if arg == "" {
		return ir.Term{}, ir.NewSyntaxError(ir.ErrMalformedLiteral, input,
			"argument %d of %q is empty", pos+1, literal)
	}
	first, _ := utf8.DecodeRuneInString(arg)
	switch {
	case unicode.IsUpper(first):
		return ir.NewTerm(arg, ir.Variable)
	case unicode.IsLower(first):
		return ir.NewTerm(arg, ir.Constant)
	default:
		return ir.Term{}, ir.NewSyntaxError(ir.ErrInvalidTermStart, input,
			"term %q must start with a letter", arg)
	}
}
