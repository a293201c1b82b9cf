package repl

import (
	"fmt"
	"strings"
	"unicode"

	"hotscript/internal/vm"
)

// expr is one parsed shell expression
type expr interface{}

type (
	literal  struct{ v vm.Value }
	variable struct{ name string }
	call     struct {
		name string
		args []expr
	}
)

// statement is "[name :=] expr"
type statement struct {
	assign string
	value  expr
}

type parser struct {
	src []rune
	pos int
}

// parseStatement parses one shell line. Strings are double quoted with ""
// standing for a literal quote; an omitted argument (",,") is empty.
func parseStatement(line string) (*statement, error) {
	p := &parser{src: []rune(line)}
	st := &statement{}
	p.skipSpace()
	if name := p.peekIdent(); name != "" {
		save := p.pos
		p.pos += len([]rune(name))
		p.skipSpace()
		if p.consume(":=") {
			st.assign = name
		} else {
			p.pos = save
		}
	}
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unexpected %q at column %d", string(p.src[p.pos:]), p.pos+1)
	}
	st.value = v
	return st, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) consume(s string) bool {
	r := []rune(s)
	if p.pos+len(r) > len(p.src) || string(p.src[p.pos:p.pos+len(r)]) != s {
		return false
	}
	p.pos += len(r)
	return true
}

func isIdent(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}

func (p *parser) peekIdent() string {
	i := p.pos
	for i < len(p.src) && isIdent(p.src[i], i == p.pos) {
		i++
	}
	return string(p.src[p.pos:i])
}

func (p *parser) expr() (expr, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("expected an expression")
	}
	switch r := p.src[p.pos]; {
	case r == '"':
		return p.str()
	case r == '&':
		p.pos++
		name := p.peekIdent()
		if name == "" {
			return nil, fmt.Errorf("expected a variable after & at column %d", p.pos+1)
		}
		p.pos += len([]rune(name))
		return variable{name}, nil
	case isIdent(r, true):
		name := p.peekIdent()
		p.pos += len([]rune(name))
		p.skipSpace()
		if p.consume("(") {
			return p.args(name)
		}
		return variable{name}, nil
	default:
		return p.number()
	}
}

func (p *parser) str() (expr, error) {
	var b strings.Builder
	p.pos++
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		p.pos++
		if r != '"' {
			b.WriteRune(r)
			continue
		}
		if p.pos < len(p.src) && p.src[p.pos] == '"' {
			b.WriteRune('"')
			p.pos++
			continue
		}
		return literal{b.String()}, nil
	}
	return nil, fmt.Errorf("unterminated string")
}

func (p *parser) number() (expr, error) {
	start := p.pos
	for p.pos < len(p.src) && !unicode.IsSpace(p.src[p.pos]) && p.src[p.pos] != ',' && p.src[p.pos] != ')' {
		p.pos++
	}
	text := string(p.src[start:p.pos])
	v, ok := vm.ParseNumber(text)
	if !ok {
		return nil, fmt.Errorf("invalid value %q at column %d", text, start+1)
	}
	return literal{v}, nil
}

func (p *parser) args(name string) (expr, error) {
	c := call{name: name}
	p.skipSpace()
	if p.consume(")") {
		return c, nil
	}
	for {
		p.skipSpace()
		if p.pos < len(p.src) && (p.src[p.pos] == ',' || p.src[p.pos] == ')') {
			c.args = append(c.args, literal{nil})
		} else {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			c.args = append(c.args, a)
		}
		p.skipSpace()
		switch {
		case p.consume(","):
		case p.consume(")"):
			return c, nil
		default:
			return nil, fmt.Errorf("expected , or ) after argument %d of %s", len(c.args), name)
		}
	}
}
