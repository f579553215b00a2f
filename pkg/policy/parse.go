package policy

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("policy: syntax error")

type node interface {
	eval(Subject) bool
}

type orNode struct{ left, right node }
type andNode struct{ left, right node }
type notNode struct{ inner node }
type callNode struct {
	fn   func(Subject, []string) bool
	args []string
}

func (n orNode) eval(s Subject) bool   { return n.left.eval(s) || n.right.eval(s) }
func (n andNode) eval(s Subject) bool  { return n.left.eval(s) && n.right.eval(s) }
func (n notNode) eval(s Subject) bool  { return !n.inner.eval(s) }
func (n callNode) eval(s Subject) bool { return n.fn(s, n.args) }

type arity struct{ min, max int } // max < 0 means variadic

type builtin struct {
	arity arity
	fn    func(Subject, []string) bool
}

var builtins = map[string]builtin{
	"permitAll": {arity{0, 0}, func(Subject, []string) bool { return true }},
	"denyAll":   {arity{0, 0}, func(Subject, []string) bool { return false }},

	"isAnonymous":          {arity{0, 0}, func(s Subject, _ []string) bool { return s.Anonymous }},
	"isAuthenticated":      {arity{0, 0}, func(s Subject, _ []string) bool { return !s.Anonymous }},
	"isFullyAuthenticated": {arity{0, 0}, func(s Subject, _ []string) bool { return !s.Anonymous }},

	"hasAuthority":    {arity{1, 1}, anyAuthority},
	"hasAnyAuthority": {arity{1, -1}, anyAuthority},
	"hasRole":         {arity{1, 1}, anyRole},
	"hasAnyRole":      {arity{1, -1}, anyRole},
	"hasScope":        {arity{1, 1}, anyScope},
	"hasAnyScope":     {arity{1, -1}, anyScope},
}

func anyAuthority(s Subject, args []string) bool {
	for _, a := range args {
		if s.HasAuthority(a) {
			return true
		}
	}
	return false
}

func anyRole(s Subject, args []string) bool {
	for _, r := range args {
		if s.HasAuthority(roleAuthority(r)) {
			return true
		}
	}
	return false
}

func anyScope(s Subject, args []string) bool {
	for _, sc := range args {
		if s.HasScope(sc) {
			return true
		}
	}
	return false
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokComma
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case c == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case c == ',':
			out = append(out, token{tokComma, ",", i})
			i++
		case c == '!':
			out = append(out, token{tokNot, "!", i})
			i++
		case strings.HasPrefix(src[i:], "&&"):
			out = append(out, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			out = append(out, token{tokOr, "||", i})
			i += 2
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, i)
			}
			out = append(out, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case isIdentStart(rune(c)):
			start := i
			for i < len(src) && isIdentPart(rune(src[i])) {
				i++
			}
			word := src[start:i]
			switch strings.ToLower(word) {
			case "and":
				out = append(out, token{tokAnd, word, start})
			case "or":
				out = append(out, token{tokOr, word, start})
			case "not":
				out = append(out, token{tokNot, word, start})
			default:
				out = append(out, token{tokIdent, word, start})
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
		}
	}
	return append(out, token{tokEOF, "", len(src)}), nil
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

type parser struct {
	toks []token
	pos  int
}

func parse(src string) (node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("%w: expected %s at %d", ErrSyntax, what, t.pos)
	}
	return t, nil
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		n, err := p.or()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return n, nil
	case tokIdent:
		return p.call(t)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
}

func (p *parser) call(name token) (node, error) {
	b, ok := builtins[name.text]
	if !ok {
		return nil, fmt.Errorf("%w: unknown function %q at %d", ErrSyntax, name.text, name.pos)
	}

	var args []string
	if p.peek().kind == tokLParen {
		p.next()
		if p.peek().kind != tokRParen {
			for {
				arg, err := p.expect(tokString, "string argument")
				if err != nil {
					return nil, err
				}
				args = append(args, arg.text)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
	}

	if len(args) < b.arity.min || (b.arity.max >= 0 && len(args) > b.arity.max) {
		return nil, fmt.Errorf("%w: %s takes %s, got %d", ErrSyntax, name.text, b.arity, len(args))
	}
	return callNode{fn: b.fn, args: args}, nil
}

func (a arity) String() string {
	switch {
	case a.max < 0:
		return fmt.Sprintf("at least %d argument(s)", a.min)
	case a.min == a.max:
		return fmt.Sprintf("%d argument(s)", a.min)
	default:
		return fmt.Sprintf("%d to %d arguments", a.min, a.max)
	}
}
