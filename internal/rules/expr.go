// Package rules provides the best-practice rule catalog, the rule
// expression compiler, and the evaluation engine.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"modelsentry/internal/domain"
)

// Object is one evaluable model object flattened out of a snapshot.
// Attrs holds the metadata fields rule expressions can reference, keyed
// by lowercased attribute name; values are string, bool, or float64.
type Object struct {
	Type  string
	Table string
	Name  string
	Path  string
	Attrs map[string]interface{}
}

// Predicate is a compiled rule expression.
type Predicate func(obj *Object) (bool, error)

// Expression grammar, case-insensitive keywords:
//
//	expr   := or
//	or     := and { "or" and }
//	and    := unary { "and" unary }
//	unary  := "not" unary | primary
//	primary:= "(" expr ")" | operand [ cmp operand ]
//	operand:= ident [ "." func "(" literal ")" ] | literal
//	cmp    := "=" | "<>" | "<" | "<=" | ">" | ">="
//	func   := Contains | StartsWith | EndsWith | Matches | Length
//
// A bare boolean attribute (e.g. IsHidden) is truthy on its own.
// String comparisons are case-insensitive; Matches uses RE2.

// Compile parses an expression into a Predicate. A malformed
// expression returns an error and must fail only its own rule.
func Compile(expression string) (Predicate, error) {
	toks, err := lex(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("unexpected token %q", p.peek().text)
	}
	return node.eval, nil
}

// === lexer ===

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp    // = <> < <= > >=
	tokDot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, "."})
			i++
		case c == '=':
			toks = append(toks, token{tokOp, "="})
			i++
		case c == '<':
			if i+1 < len(s) && (s[i+1] == '>' || s[i+1] == '=') {
				toks = append(toks, token{tokOp, s[i : i+2]})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "<"})
				i++
			}
		case c == '>':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, ">="})
				i += 2
			} else {
				toks = append(toks, token{tokOp, ">"})
				i++
			}
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for {
				if j >= len(s) {
					return nil, fmt.Errorf("unterminated string literal")
				}
				if s[j] == '"' {
					if j+1 < len(s) && s[j+1] == '"' {
						sb.WriteByte('"')
						j += 2
						continue
					}
					break
				}
				sb.WriteByte(s[j])
				j++
			}
			toks = append(toks, token{tokString, sb.String()})
			i = j + 1
		case c >= '0' && c <= '9' || c == '-' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9':
			j := i + 1
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// === parser ===

type parser struct {
	toks []token
	pos  int
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

type node interface {
	eval(obj *Object) (bool, error)
}

type orNode struct{ left, right node }

func (n *orNode) eval(obj *Object) (bool, error) {
	v, err := n.left.eval(obj)
	if err != nil || v {
		return v, err
	}
	return n.right.eval(obj)
}

type andNode struct{ left, right node }

func (n *andNode) eval(obj *Object) (bool, error) {
	v, err := n.left.eval(obj)
	if err != nil || !v {
		return v, err
	}
	return n.right.eval(obj)
}

type notNode struct{ inner node }

func (n *notNode) eval(obj *Object) (bool, error) {
	v, err := n.inner.eval(obj)
	return !v, err
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.keyword("not") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().kind == tokOp {
		op := p.next().text
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &cmpNode{left: left, op: op, right: right}, nil
	}

	// Bare operand: must be truthy on its own (boolean attribute or
	// string-function call).
	return &truthyNode{operand: left}, nil
}

// operand is an attribute reference, a literal, or a string-function
// call on an attribute.
type operand struct {
	attr    string         // attribute name, lowercased; "" for literals
	literal interface{}    // string or float64 when attr == ""
	fn      string         // contains/startswith/endswith/matches/length
	fnArg   string
	fnRe    *regexp.Regexp // precompiled for matches
}

func (p *parser) parseOperand() (*operand, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return &operand{literal: t.text}, nil
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return &operand{literal: f}, nil
	case tokIdent:
		if strings.EqualFold(t.text, "true") || strings.EqualFold(t.text, "false") {
			p.next()
			return &operand{literal: strings.EqualFold(t.text, "true")}, nil
		}
		p.next()
		op := &operand{attr: strings.ToLower(t.text)}
		if p.peek().kind == tokDot {
			p.next()
			fn := p.next()
			if fn.kind != tokIdent {
				return nil, fmt.Errorf("expected function name after '.'")
			}
			op.fn = strings.ToLower(fn.text)
			switch op.fn {
			case "contains", "startswith", "endswith", "matches":
				if p.next().kind != tokLParen {
					return nil, fmt.Errorf("expected '(' after %s", fn.text)
				}
				arg := p.next()
				if arg.kind != tokString {
					return nil, fmt.Errorf("%s expects a string argument", fn.text)
				}
				op.fnArg = arg.text
				if op.fn == "matches" {
					re, err := regexp.Compile(arg.text)
					if err != nil {
						return nil, fmt.Errorf("bad pattern %q: %v", arg.text, err)
					}
					op.fnRe = re
				}
				if p.next().kind != tokRParen {
					return nil, fmt.Errorf("missing ')' after %s argument", fn.text)
				}
			case "length":
				if p.next().kind != tokLParen {
					return nil, fmt.Errorf("expected '(' after Length")
				}
				if p.next().kind != tokRParen {
					return nil, fmt.Errorf("Length takes no argument")
				}
			default:
				return nil, fmt.Errorf("unknown function %q", fn.text)
			}
		}
		return op, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// value resolves the operand against an object. String functions yield
// bool (or float64 for Length).
func (o *operand) value(obj *Object) (interface{}, error) {
	if o.attr == "" {
		return o.literal, nil
	}
	raw, ok := obj.Attrs[o.attr]
	if !ok {
		return nil, fmt.Errorf("unknown attribute %q for %s", o.attr, obj.Type)
	}
	if o.fn == "" {
		return raw, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("attribute %q is not a string", o.attr)
	}
	switch o.fn {
	case "contains":
		return strings.Contains(strings.ToLower(s), strings.ToLower(o.fnArg)), nil
	case "startswith":
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(o.fnArg)), nil
	case "endswith":
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(o.fnArg)), nil
	case "matches":
		return o.fnRe.MatchString(s), nil
	case "length":
		return float64(len(s)), nil
	}
	return nil, fmt.Errorf("unknown function %q", o.fn)
}

type truthyNode struct{ operand *operand }

func (n *truthyNode) eval(obj *Object) (bool, error) {
	v, err := n.operand.value(obj)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expression is not boolean")
	}
	return b, nil
}

type cmpNode struct {
	left  *operand
	op    string
	right *operand
}

func (n *cmpNode) eval(obj *Object) (bool, error) {
	lv, err := n.left.value(obj)
	if err != nil {
		return false, err
	}
	rv, err := n.right.value(obj)
	if err != nil {
		return false, err
	}

	if lf, lok := toFloat(lv); lok {
		if rf, rok := toFloat(rv); rok {
			return compareFloats(lf, rf, n.op)
		}
	}

	ls, lok := toCmpString(lv)
	rs, rok := toCmpString(rv)
	if !lok || !rok {
		return false, fmt.Errorf("cannot compare %T with %T", lv, rv)
	}
	switch n.op {
	case "=":
		return strings.EqualFold(ls, rs), nil
	case "<>":
		return !strings.EqualFold(ls, rs), nil
	default:
		return false, fmt.Errorf("operator %q requires numeric operands", n.op)
	}
}

func compareFloats(l, r float64, op string) (bool, error) {
	switch op {
	case "=":
		return l == r, nil
	case "<>":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

func toFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func toCmpString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// FlattenSnapshot lists a snapshot's evaluable objects in schema
// declaration order: the model, then each table with its columns,
// measures, and partitions, then relationships. This order is what
// makes repeated evaluations produce identically ordered findings.
func FlattenSnapshot(snap *domain.ModelSnapshot) []Object {
	var objs []Object

	objs = append(objs, Object{
		Type: domain.ObjectTypeModel,
		Name: snap.Name,
		Path: snap.Name,
		Attrs: map[string]interface{}{
			"name":       snap.Name,
			"objecttype": domain.ObjectTypeModel,
			"tablecount": float64(len(snap.Tables)),
		},
	})

	for _, t := range snap.Tables {
		tableType := domain.ObjectTypeTable
		if t.IsCalculated {
			tableType = domain.ObjectTypeCalculatedTable
		}
		objs = append(objs, Object{
			Type:  tableType,
			Table: t.Name,
			Name:  t.Name,
			Path:  t.Name,
			Attrs: map[string]interface{}{
				"name":         t.Name,
				"objecttype":   tableType,
				"ishidden":     t.IsHidden,
				"iscalculated": t.IsCalculated,
				"expression":   t.Expression,
				"tablename":    t.Name,
			},
		})

		for _, c := range t.Columns {
			colType := domain.ObjectTypeDataColumn
			if c.IsCalculated {
				colType = domain.ObjectTypeCalculatedColumn
			}
			objs = append(objs, Object{
				Type:  colType,
				Table: t.Name,
				Name:  c.Name,
				Path:  domain.ObjectPath(t.Name, c.Name),
				Attrs: map[string]interface{}{
					"name":         c.Name,
					"objecttype":   colType,
					"datatype":     c.DataType,
					"ishidden":     c.IsHidden,
					"iscalculated": c.IsCalculated,
					"iskey":        c.IsKey,
					"expression":   c.Expression,
					"formatstring": c.FormatString,
					"summarizeby":  c.SummarizeBy,
					"tablename":    t.Name,
				},
			})
		}

		for _, ms := range t.Measures {
			objs = append(objs, Object{
				Type:  domain.ObjectTypeMeasure,
				Table: t.Name,
				Name:  ms.Name,
				Path:  domain.ObjectPath(t.Name, ms.Name),
				Attrs: map[string]interface{}{
					"name":         ms.Name,
					"objecttype":   domain.ObjectTypeMeasure,
					"expression":   ms.Expression,
					"formatstring": ms.FormatString,
					"ishidden":     ms.IsHidden,
					"tablename":    t.Name,
				},
			})
		}

		for _, pt := range t.Partitions {
			objs = append(objs, Object{
				Type:  domain.ObjectTypePartition,
				Table: t.Name,
				Name:  pt.Name,
				Path:  domain.ObjectPath(t.Name, pt.Name),
				Attrs: map[string]interface{}{
					"name":       pt.Name,
					"objecttype": domain.ObjectTypePartition,
					"mode":       pt.Mode,
					"expression": pt.Expression,
					"tablename":  t.Name,
				},
			})
		}
	}

	for _, rel := range snap.Relationships {
		objs = append(objs, Object{
			Type: domain.ObjectTypeRelationship,
			Name: rel.Name,
			Path: fmt.Sprintf("%s[%s] -> %s[%s]", rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn),
			Attrs: map[string]interface{}{
				"name":           rel.Name,
				"objecttype":     domain.ObjectTypeRelationship,
				"fromtable":      rel.FromTable,
				"fromcolumn":     rel.FromColumn,
				"totable":        rel.ToTable,
				"tocolumn":       rel.ToColumn,
				"isactive":       rel.IsActive,
				"crossfiltering": rel.CrossFiltering,
			},
		})
	}

	return objs
}
