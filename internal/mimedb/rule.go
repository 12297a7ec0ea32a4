/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mimedb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// EvalContext is the evidence a typer rule evaluates against: the
// file's basename and up to MaxSniffBytes of its leading content.
type EvalContext struct {
	Filename string
	Bytes    []byte
	Locale   string
}

// MaxSniffBytes is the default amount of leading file content a typer
// rule may inspect; callers may read and pass fewer bytes for a short
// file, never more than this.
const MaxSniffBytes = 1024

// Node is one predicate or boolean connective in a typer's rule tree.
type Node interface {
	Eval(ctx *EvalContext) bool
}

type andNode struct{ kids []Node }

func (n andNode) Eval(ctx *EvalContext) bool {
	for _, k := range n.kids {
		if !k.Eval(ctx) {
			return false
		}
	}
	return true
}

type orNode struct{ kids []Node }

func (n orNode) Eval(ctx *EvalContext) bool {
	for _, k := range n.kids {
		if k.Eval(ctx) {
			return true
		}
	}
	return false
}

type notNode struct{ kid Node }

func (n notNode) Eval(ctx *EvalContext) bool { return !n.kid.Eval(ctx) }

// And combines rules with boolean AND.
func And(kids ...Node) Node { return andNode{kids: kids} }

// Or combines rules with boolean OR.
func Or(kids ...Node) Node { return orNode{kids: kids} }

// Not negates a rule.
func Not(kid Node) Node { return notNode{kid: kid} }

type globNode struct {
	pattern string
	g       glob.Glob
}

func (n globNode) Eval(ctx *EvalContext) bool {
	return n.g.Match(filepath.Base(ctx.Filename))
}

// Pattern matches the file's basename against a shell glob.
func Pattern(pattern string) (Node, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filename pattern %q: %w", pattern, err)
	}
	return globNode{pattern: pattern, g: g}, nil
}

// priorityNode always matches; it exists only to carry a priority
// weight up to the owning Typer during rule construction.
type priorityNode struct{ n int }

func (n priorityNode) Eval(ctx *EvalContext) bool { return true }

// Priority attaches a tie-break weight (0-100) to the typer that owns
// this rule; it always evaluates true.
func Priority(n int) (Node, error) {
	if n < 0 || n > 100 {
		return nil, fmt.Errorf("priority %d out of range [0,100]", n)
	}
	return priorityNode{n: n}, nil
}

type stringNode struct {
	offset int
	want   []byte
	fold   bool
}

func (n stringNode) Eval(ctx *EvalContext) bool {
	if n.offset < 0 || n.offset+len(n.want) > len(ctx.Bytes) {
		return false
	}
	got := ctx.Bytes[n.offset : n.offset+len(n.want)]
	if n.fold {
		return bytes.EqualFold(got, n.want)
	}
	return bytes.Equal(got, n.want)
}

// StringAt matches an exact byte sequence at offset.
func StringAt(offset int, s string) Node {
	return stringNode{offset: offset, want: []byte(s)}
}

// IStringAt matches a case-insensitive byte sequence at offset.
func IStringAt(offset int, s string) Node {
	return stringNode{offset: offset, want: []byte(s), fold: true}
}

type intNode struct {
	offset int
	width  int
	want   int64
}

func (n intNode) Eval(ctx *EvalContext) bool {
	if n.offset < 0 || n.offset+n.width > len(ctx.Bytes) {
		return false
	}
	b := ctx.Bytes[n.offset : n.offset+n.width]
	var got int64
	switch n.width {
	case 1:
		got = int64(b[0])
	case 2:
		got = int64(binary.BigEndian.Uint16(b))
	case 4:
		got = int64(binary.BigEndian.Uint32(b))
	}
	return got == n.want
}

// CharAt matches a 1-byte big-endian integer at offset.
func CharAt(offset int, n int64) Node { return intNode{offset: offset, width: 1, want: n} }

// ShortAt matches a 2-byte big-endian integer at offset.
func ShortAt(offset int, n int64) Node { return intNode{offset: offset, width: 2, want: n} }

// IntAt matches a 4-byte big-endian integer at offset.
func IntAt(offset int, n int64) Node { return intNode{offset: offset, width: 4, want: n} }

type localeNode struct{ prefix string }

func (n localeNode) Eval(ctx *EvalContext) bool {
	return strings.HasPrefix(ctx.Locale, n.prefix)
}

// Locale matches if the evaluation context's locale has the given prefix.
func Locale(prefix string) Node { return localeNode{prefix: prefix} }

type containsNode struct {
	offset, rng int
	want        []byte
}

func (n containsNode) Eval(ctx *EvalContext) bool {
	lo := n.offset
	if lo < 0 {
		lo = 0
	}
	hi := n.offset + n.rng
	if hi > len(ctx.Bytes) {
		hi = len(ctx.Bytes)
	}
	if lo >= hi {
		return false
	}
	return bytes.Contains(ctx.Bytes[lo:hi], n.want)
}

// Contains searches for s within bytes [offset, offset+rng).
func Contains(offset, rng int, s string) Node {
	return containsNode{offset: offset, rng: rng, want: []byte(s)}
}

// extractPriority walks a rule tree depth-first and returns the
// weight of the first priority() leaf found.
func extractPriority(n Node) (p int, found bool) {
	switch v := n.(type) {
	case priorityNode:
		return v.n, true
	case andNode:
		for _, k := range v.kids {
			if p, found = extractPriority(k); found {
				return
			}
		}
	case orNode:
		for _, k := range v.kids {
			if p, found = extractPriority(k); found {
				return
			}
		}
	case notNode:
		return extractPriority(v.kid)
	}
	return 0, false
}

func localeEnv() string {
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if s := os.Getenv(v); s != `` {
			return s
		}
	}
	return ``
}

// ParseRule parses the textual typer grammar into a rule tree:
// function-call syntax over and/or/not/pattern/priority/string/
// istring/char/short/int/locale/contains, e.g.
//
//	and(pattern("*.pdf"), string(0,"%PDF"))
//
// A malformed rule is rejected in full; there is no partial parse.
func ParseRule(src string) (Node, error) {
	p := &ruleParser{s: src}
	p.skipSpace()
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("unexpected trailing input at %d in %q", p.pos, src)
	}
	return n, nil
}

type ruleParser struct {
	s   string
	pos int
}

func (p *ruleParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *ruleParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *ruleParser) parseExpr() (Node, error) {
	p.skipSpace()
	ident, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after %q at %d", ident, p.pos)
	}
	p.pos++ // consume '('
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' at %d", p.pos)
	}
	p.pos++ // consume ')'
	return buildNode(ident, args)
}

func (p *ruleParser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return ``, fmt.Errorf("expected identifier at %d", start)
	}
	return p.s[start:p.pos], nil
}

// arg is either a nested Node, a quoted string, or an integer.
type arg struct {
	node Node
	str  string
	num  int64
	kind int // 0=node, 1=string, 2=number
}

func (p *ruleParser) parseArgs() (args []arg, err error) {
	p.skipSpace()
	if p.peek() == ')' {
		return
	}
	for {
		p.skipSpace()
		var a arg
		switch {
		case p.peek() == '"':
			if a.str, err = p.parseQuoted(); err != nil {
				return nil, err
			}
			a.kind = 1
		case isDigitOrSign(p.peek()):
			if a.num, err = p.parseNumber(); err != nil {
				return nil, err
			}
			a.kind = 2
		default:
			if a.node, err = p.parseExpr(); err != nil {
				return nil, err
			}
			a.kind = 0
		}
		args = append(args, a)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	return
}

func isDigitOrSign(c byte) bool { return (c >= '0' && c <= '9') || c == '-' }

func (p *ruleParser) parseNumber() (int64, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at %d", start)
	}
	return strconv.ParseInt(p.s[start:p.pos], 10, 64)
}

func (p *ruleParser) parseQuoted() (string, error) {
	if p.peek() != '"' {
		return ``, fmt.Errorf("expected '\"' at %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '\\' && p.pos+1 < len(p.s) {
			esc, n, err := decodeEscape(p.s[p.pos+1:])
			if err != nil {
				return ``, fmt.Errorf("%w at %d", err, p.pos)
			}
			b.WriteByte(esc)
			p.pos += 1 + n
			continue
		}
		if c == '"' {
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return ``, fmt.Errorf("unterminated quoted string")
}

// decodeEscape reads one escape sequence (following the backslash)
// from s and returns the decoded byte and how many bytes it consumed.
func decodeEscape(s string) (byte, int, error) {
	if len(s) == 0 {
		return 0, 0, fmt.Errorf("dangling escape")
	}
	switch s[0] {
	case 'n':
		return '\n', 1, nil
	case 'r':
		return '\r', 1, nil
	case 't':
		return '\t', 1, nil
	case '\\':
		return '\\', 1, nil
	case '"':
		return '"', 1, nil
	case 'x':
		if len(s) < 3 {
			return 0, 0, fmt.Errorf("short hex escape")
		}
		v, err := strconv.ParseUint(s[1:3], 16, 8)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid hex escape: %w", err)
		}
		return byte(v), 3, nil
	}
	return s[0], 1, nil
}

func buildNode(ident string, args []arg) (Node, error) {
	switch ident {
	case `and`:
		kids, err := nodeArgs(ident, args, -1)
		if err != nil {
			return nil, err
		}
		return And(kids...), nil
	case `or`:
		kids, err := nodeArgs(ident, args, -1)
		if err != nil {
			return nil, err
		}
		return Or(kids...), nil
	case `not`:
		kids, err := nodeArgs(ident, args, 1)
		if err != nil {
			return nil, err
		}
		return Not(kids[0]), nil
	case `pattern`:
		s, err := strArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		return Pattern(s)
	case `priority`:
		n, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		return Priority(int(n))
	case `string`, `istring`:
		off, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		s, err := strArg(ident, args, 1)
		if err != nil {
			return nil, err
		}
		if ident == `string` {
			return StringAt(int(off), s), nil
		}
		return IStringAt(int(off), s), nil
	case `char`:
		off, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		n, err := numArg(ident, args, 1)
		if err != nil {
			return nil, err
		}
		return CharAt(int(off), n), nil
	case `short`:
		off, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		n, err := numArg(ident, args, 1)
		if err != nil {
			return nil, err
		}
		return ShortAt(int(off), n), nil
	case `int`:
		off, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		n, err := numArg(ident, args, 1)
		if err != nil {
			return nil, err
		}
		return IntAt(int(off), n), nil
	case `locale`:
		s, err := strArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		return Locale(s), nil
	case `contains`:
		off, err := numArg(ident, args, 0)
		if err != nil {
			return nil, err
		}
		rng, err := numArg(ident, args, 1)
		if err != nil {
			return nil, err
		}
		s, err := strArg(ident, args, 2)
		if err != nil {
			return nil, err
		}
		return Contains(int(off), int(rng), s), nil
	}
	return nil, fmt.Errorf("unknown rule function %q", ident)
}

func nodeArgs(ident string, args []arg, want int) ([]Node, error) {
	if want >= 0 && len(args) != want {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", ident, want, len(args))
	}
	if want < 0 && len(args) < 2 {
		return nil, fmt.Errorf("%s: expected at least 2 arguments, got %d", ident, len(args))
	}
	out := make([]Node, 0, len(args))
	for i, a := range args {
		if a.kind != 0 {
			return nil, fmt.Errorf("%s: argument %d must be a nested rule", ident, i)
		}
		out = append(out, a.node)
	}
	return out, nil
}

func strArg(ident string, args []arg, i int) (string, error) {
	if i >= len(args) || args[i].kind != 1 {
		return ``, fmt.Errorf("%s: argument %d must be a quoted string", ident, i)
	}
	return args[i].str, nil
}

func numArg(ident string, args []arg, i int) (int64, error) {
	if i >= len(args) || args[i].kind != 2 {
		return 0, fmt.Errorf("%s: argument %d must be a number", ident, i)
	}
	return args[i].num, nil
}
