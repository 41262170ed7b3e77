package dart

import (
	"strings"
)

// SourceFile is the syntactic surface extracted from one Dart unit.
type SourceFile struct {
	Path    string
	Classes []*ClassDecl
	Errors  []*ParseError
}

// Base kinds a parsed class can extend.
const (
	BaseStateless = "StatelessWidget"
	BaseStateful  = "StatefulWidget"
	BaseState     = "State"
)

// ClassDecl is one parsed class.
type ClassDecl struct {
	Name      string
	Base      string // StatelessWidget, StatefulWidget, State, or other
	StateOf   string // for State<X>, the widget name X
	Fields    []FieldDecl
	Ctor      []CtorParam
	Build     *WidgetExpr
	Methods   []MethodDecl
	Platforms []PlatformChain
	Line, Col int
}

// FieldDecl is one instance field.
type FieldDecl struct {
	Name     string
	Type     string
	Nullable bool
	Final    bool
	Init     string
	Line     int
}

// CtorParam is one named constructor parameter.
type CtorParam struct {
	Name     string
	Type     string
	Required bool
	Default  string
}

// MethodDecl is one method with its body preserved verbatim.
type MethodDecl struct {
	Name   string
	Params string
	Body   string
	Line   int
}

// PlatformChain mirrors the Platform.isX if/else chain.
type PlatformChain struct {
	Branches []PlatformBranch
	Else     string
	HasElse  bool
	Line     int
}

// PlatformBranch is one arm keyed by a platform predicate.
type PlatformBranch struct {
	Predicate string // Platform.isIOS etc., verbatim
	Code      string
}

// WidgetExpr is one widget constructor call in a build expression.
type WidgetExpr struct {
	Name       string
	Positional []ArgExpr
	Named      []NamedArg
	Const      bool
	Line, Col  int
	// StartOff/EndOff delimit the verbatim source span of the call, kept so
	// non-tree arguments can be preserved opaquely.
	StartOff, EndOff int
}

// NamedArg is one named constructor argument in declaration order.
type NamedArg struct {
	Name  string
	Value ArgExpr
}

// ArgExpr kinds.
const (
	ArgWidget  = "widget"
	ArgList    = "list"
	ArgString  = "string"
	ArgLiteral = "literal" // numbers, booleans, null, identifiers
	ArgClosure = "closure"
	ArgOpaque  = "opaque"
)

// ArgExpr is one constructor argument value.
type ArgExpr struct {
	Kind   string
	Widget *WidgetExpr
	List   []ArgExpr
	Text   string // string body, literal text, closure text, opaque span
}

// Parse lexes and parses one Dart source unit.
func Parse(path, src string) (*SourceFile, error) {
	toks, err := Lex(path, src)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			return &SourceFile{Path: path, Errors: []*ParseError{perr}}, nil
		}
		return nil, err
	}
	p := &parser{path: path, src: src, toks: toks}
	file := &SourceFile{Path: path}
	for !p.atEOF() {
		switch {
		case p.atIdent("class"):
			if c := p.parseClass(); c != nil {
				file.Classes = append(file.Classes, c)
			}
		default:
			p.pos++
		}
	}
	file.Errors = p.errors
	return file, nil
}

type parser struct {
	path   string
	src    string
	toks   []Token
	pos    int
	errors []*ParseError
}

// =============================================================================
// Classes
// =============================================================================

func (p *parser) parseClass() *ClassDecl {
	start := p.cur()
	p.pos++ // class
	if !p.at(TokenIdent) {
		p.pos++
		return nil
	}
	c := &ClassDecl{Name: p.cur().Text, Line: start.Line, Col: start.Col}
	p.pos++

	if p.atIdent("extends") {
		p.pos++
		if p.at(TokenIdent) {
			c.Base = p.cur().Text
			p.pos++
			if c.Base == BaseState && p.atPunct("<") {
				if p.identAt(p.pos + 1) {
					c.StateOf = p.toks[p.pos+1].Text
				}
				genericEnd := p.matchIndex("<", ">")
				p.pos = genericEnd + 1
			}
		}
	}
	for !p.atEOF() && !p.atPunct("{") {
		p.pos++
	}
	if p.atEOF() {
		return nil
	}
	classEnd := p.matchIndex("{", "}")
	p.pos++
	p.parseClassBody(c, classEnd)
	p.pos = classEnd + 1
	return c
}

func (p *parser) parseClassBody(c *ClassDecl, end int) {
	for p.pos < end {
		switch {
		case p.atPunct("@"):
			// Annotation: skip @override and friends.
			p.pos += 2

		case p.atIdent("const") && p.identAtText(p.pos+1, c.Name),
			p.atIdent(c.Name) && p.punctAt(p.pos+1, "("):
			p.parseCtor(c)

		case p.atIdent("factory"):
			p.skipStatementWithin(end)

		case p.atIdent("Widget") && p.identAtText(p.pos+1, "build"):
			p.parseBuild(c, end)

		case p.isMethodStart():
			p.parseMethod(c)

		case p.isFieldStart():
			p.parseField(c, end)

		default:
			p.pos++
		}
	}
}

// isFieldStart looks for "[final] Type [?] name [= init] ;".
func (p *parser) isFieldStart() bool {
	i := p.pos
	if p.identAtText(i, "final") || p.identAtText(i, "static") {
		i++
	}
	if !p.identAt(i) || !isTypeName(p.toks[i].Text) {
		return false
	}
	i++
	if p.punctAt(i, "<") {
		// Generic type argument.
		depth := 0
		for ; i < len(p.toks); i++ {
			if p.punctAt(i, "<") {
				depth++
			} else if p.punctAt(i, ">") {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
	}
	if p.punctAt(i, "?") {
		i++
	}
	if !p.identAt(i) {
		return false
	}
	i++
	return p.punctAt(i, "=") || p.punctAt(i, ";")
}

// isMethodStart looks for "ReturnType name ( ... ) {".
func (p *parser) isMethodStart() bool {
	i := p.pos
	if !p.identAt(i) {
		return false
	}
	i++
	if p.punctAt(i, "<") {
		depth := 0
		for ; i < len(p.toks); i++ {
			if p.punctAt(i, "<") {
				depth++
			} else if p.punctAt(i, ">") {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
	}
	if p.punctAt(i, "?") {
		i++
	}
	if !p.identAt(i) {
		return false
	}
	i++
	return p.punctAt(i, "(")
}

func (p *parser) parseField(c *ClassDecl, end int) {
	line := p.cur().Line
	f := FieldDecl{Line: line}
	if p.atIdent("final") {
		f.Final = true
		p.pos++
	}
	if p.atIdent("static") {
		p.pos++
	}
	typeStart := p.cur().Offset
	p.pos++ // base type
	if p.atPunct("<") {
		genericEnd := p.matchIndex("<", ">")
		p.pos = genericEnd + 1
	}
	typeEnd := p.toks[p.pos-1].End
	f.Type = strings.TrimSpace(p.src[typeStart:typeEnd])
	if p.atPunct("?") {
		f.Nullable = true
		p.pos++
	}
	if !p.at(TokenIdent) {
		p.skipStatementWithin(end)
		return
	}
	f.Name = p.cur().Text
	p.pos++
	if p.atPunct("=") {
		p.pos++
		initStart := p.cur().Offset
		depth := 0
		for p.pos < end {
			t := p.cur()
			if t.Kind == TokenPunct {
				switch t.Text {
				case "(", "[", "{":
					depth++
				case ")", "]", "}":
					depth--
				case ";":
					if depth == 0 {
						f.Init = strings.TrimSpace(p.src[initStart:t.Offset])
						p.pos++
						c.Fields = append(c.Fields, f)
						return
					}
				}
			}
			p.pos++
		}
	}
	if p.atPunct(";") {
		p.pos++
	}
	c.Fields = append(c.Fields, f)
}

func (p *parser) parseCtor(c *ClassDecl) {
	if p.atIdent("const") {
		p.pos++
	}
	p.pos++ // class name
	if !p.atPunct("(") {
		return
	}
	parenEnd := p.matchIndex("(", ")")
	p.pos++
	if p.atPunct("{") {
		namedEnd := p.matchIndex("{", "}")
		p.pos++
		for p.pos < namedEnd {
			param := CtorParam{}
			if p.atIdent("required") {
				param.Required = true
				p.pos++
			}
			// super.key and other super-forwards are not component props.
			if p.atIdent("super") {
				for p.pos < namedEnd && !p.atPunct(",") {
					p.pos++
				}
				if p.atPunct(",") {
					p.pos++
				}
				continue
			}
			// "this.name" or "Type name".
			if p.atIdent("this") && p.punctAt(p.pos+1, ".") && p.identAt(p.pos+2) {
				param.Name = p.toks[p.pos+2].Text
				p.pos += 3
			} else if p.at(TokenIdent) && p.identAt(p.pos+1) {
				param.Type = p.cur().Text
				param.Name = p.toks[p.pos+1].Text
				p.pos += 2
			} else if p.at(TokenIdent) {
				param.Name = p.cur().Text
				p.pos++
			}
			if p.atPunct("=") {
				p.pos++
				defStart := p.cur().Offset
				for p.pos < namedEnd && !p.atPunct(",") {
					p.pos++
				}
				param.Default = strings.TrimSpace(p.src[defStart:p.cur().Offset])
			}
			if param.Name != "" {
				c.Ctor = append(c.Ctor, param)
			}
			if p.atPunct(",") {
				p.pos++
			}
		}
	}
	p.pos = parenEnd + 1
	p.skipStatement()
}

func (p *parser) parseBuild(c *ClassDecl, end int) {
	p.pos += 2 // Widget build
	if !p.atPunct("(") {
		return
	}
	parenEnd := p.matchIndex("(", ")")
	p.pos = parenEnd + 1
	if !p.atPunct("{") {
		return
	}
	bodyEnd := p.matchIndex("{", "}")
	p.pos++
	for p.pos < bodyEnd {
		switch {
		case p.atIdent("if") && p.isPlatformIf():
			p.parsePlatformChain(c)
		case p.atIdent("return"):
			p.pos++
			if p.atIdent("const") {
				p.pos++
			}
			c.Build = p.parseWidgetExpr()
			if p.atPunct(";") {
				p.pos++
			}
		default:
			p.pos++
		}
	}
	p.pos = bodyEnd + 1
	_ = end
}

func (p *parser) parseMethod(c *ClassDecl) {
	line := p.cur().Line
	p.pos++ // return type
	if p.atPunct("<") {
		genericEnd := p.matchIndex("<", ">")
		p.pos = genericEnd + 1
	}
	if p.atPunct("?") {
		p.pos++
	}
	if !p.at(TokenIdent) {
		return
	}
	m := MethodDecl{Name: p.cur().Text, Line: line}
	p.pos++
	parenEnd := p.matchIndex("(", ")")
	m.Params = strings.TrimSpace(p.src[p.cur().End:p.toks[parenEnd].Offset])
	p.pos = parenEnd + 1
	if p.atPunct("=>") {
		// Expression body: capture to the semicolon.
		p.pos++
		bodyStart := p.cur().Offset
		p.skipStatement()
		m.Body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.src[bodyStart:p.cur().Offset]), ";"))
		c.Methods = append(c.Methods, m)
		return
	}
	if !p.atPunct("{") {
		p.skipStatement()
		return
	}
	bodyEnd := p.matchIndex("{", "}")
	m.Body = strings.TrimSpace(p.src[p.cur().End:p.toks[bodyEnd].Offset])
	p.pos = bodyEnd + 1
	c.Methods = append(c.Methods, m)
}

// =============================================================================
// Platform conditionals
// =============================================================================

func (p *parser) isPlatformIf() bool {
	return p.identAtText(p.pos+2, "Platform") && p.punctAt(p.pos+3, ".") && p.identAt(p.pos+4)
}

func (p *parser) parsePlatformChain(c *ClassDecl) {
	chain := PlatformChain{Line: p.cur().Line}
	for p.atIdent("if") {
		p.pos++
		if !p.atPunct("(") {
			return
		}
		condEnd := p.matchIndex("(", ")")
		predicate := strings.TrimSpace(p.src[p.cur().End:p.toks[condEnd].Offset])
		p.pos = condEnd + 1
		if !p.atPunct("{") {
			return
		}
		blockEnd := p.matchIndex("{", "}")
		code := strings.TrimSpace(p.src[p.cur().End:p.toks[blockEnd].Offset])
		p.pos = blockEnd + 1
		chain.Branches = append(chain.Branches, PlatformBranch{Predicate: predicate, Code: code})
		if p.atIdent("else") {
			p.pos++
			if p.atIdent("if") {
				continue
			}
			if p.atPunct("{") {
				elseEnd := p.matchIndex("{", "}")
				chain.Else = strings.TrimSpace(p.src[p.cur().End:p.toks[elseEnd].Offset])
				chain.HasElse = true
				p.pos = elseEnd + 1
			}
		}
		break
	}
	if len(chain.Branches) > 0 {
		c.Platforms = append(c.Platforms, chain)
	}
}

// =============================================================================
// Widget expressions
// =============================================================================

// parseWidgetExpr parses Name(args...) recursively.
func (p *parser) parseWidgetExpr() *WidgetExpr {
	isConst := false
	if p.atIdent("const") {
		isConst = true
		p.pos++
	}
	if !p.at(TokenIdent) {
		return nil
	}
	start := p.cur()
	w := &WidgetExpr{Name: start.Text, Const: isConst, Line: start.Line, Col: start.Col}
	p.pos++
	if !p.atPunct("(") {
		return nil
	}
	argsEnd := p.matchIndex("(", ")")
	w.StartOff = start.Offset
	w.EndOff = p.toks[argsEnd].End
	p.pos++
	for p.pos < argsEnd {
		if p.atPunct(",") {
			p.pos++
			continue
		}
		// Named argument: ident ":".
		if p.at(TokenIdent) && p.punctAt(p.pos+1, ":") {
			name := p.cur().Text
			p.pos += 2
			value := p.parseArgExpr(argsEnd)
			w.Named = append(w.Named, NamedArg{Name: name, Value: value})
			continue
		}
		w.Positional = append(w.Positional, p.parseArgExpr(argsEnd))
	}
	p.pos = argsEnd + 1
	return w
}

// parseArgExpr parses one argument value ending at a top-level comma or the
// enclosing close paren.
func (p *parser) parseArgExpr(limit int) ArgExpr {
	switch {
	case p.atIdent("const") && p.identAt(p.pos+1) && p.punctAt(p.pos+2, "("),
		p.at(TokenIdent) && isWidgetName(p.cur().Text) && p.punctAt(p.pos+1, "("):
		if w := p.parseWidgetExpr(); w != nil {
			return ArgExpr{Kind: ArgWidget, Widget: w}
		}
		return ArgExpr{Kind: ArgOpaque}

	case p.atPunct("["):
		listEnd := p.matchIndex("[", "]")
		p.pos++
		var items []ArgExpr
		for p.pos < listEnd {
			if p.atPunct(",") {
				p.pos++
				continue
			}
			items = append(items, p.parseArgExpr(listEnd))
		}
		p.pos = listEnd + 1
		return ArgExpr{Kind: ArgList, List: items}

	case p.at(TokenString):
		body := p.cur().Text
		p.pos++
		return ArgExpr{Kind: ArgString, Text: body}

	default:
		// Literal, closure, or opaque expression: capture to the next
		// top-level comma.
		startOff := p.cur().Offset
		depth := 0
		for p.pos < limit {
			t := p.cur()
			if t.Kind == TokenPunct {
				switch t.Text {
				case "(", "[", "{":
					depth++
				case ")", "]", "}":
					depth--
				case ",":
					if depth == 0 {
						text := strings.TrimSpace(p.src[startOff:t.Offset])
						return classifyArg(text)
					}
				}
			}
			p.pos++
		}
		text := strings.TrimSpace(p.src[startOff:p.toks[limit].Offset])
		return classifyArg(text)
	}
}

func classifyArg(text string) ArgExpr {
	if strings.HasPrefix(text, "(") || strings.HasPrefix(text, "() ") ||
		strings.HasPrefix(text, "()") || strings.HasPrefix(text, "async") {
		return ArgExpr{Kind: ArgClosure, Text: text}
	}
	return ArgExpr{Kind: ArgLiteral, Text: text}
}

// isWidgetName reports whether an identifier looks like a widget
// constructor: capitalized and not a known literal keyword.
func isWidgetName(name string) bool {
	if name == "" {
		return false
	}
	r := rune(name[0])
	return r >= 'A' && r <= 'Z'
}

// isTypeName reports whether an identifier can begin a field declaration.
func isTypeName(name string) bool {
	switch name {
	case "int", "double", "num", "String", "bool", "List", "Map", "Set", "dynamic", "Object":
		return true
	}
	return isWidgetName(name)
}

// =============================================================================
// Token helpers
// =============================================================================

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.toks[p.pos].Kind == TokenEOF }

func (p *parser) at(kind TokenKind) bool { return p.cur().Kind == kind }

func (p *parser) atIdent(text string) bool {
	return p.cur().Kind == TokenIdent && p.cur().Text == text
}

func (p *parser) atPunct(text string) bool {
	return p.cur().Kind == TokenPunct && p.cur().Text == text
}

func (p *parser) identAt(i int) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenIdent
}

func (p *parser) identAtText(i int, text string) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenIdent && p.toks[i].Text == text
}

func (p *parser) punctAt(i int, text string) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenPunct && p.toks[i].Text == text
}

func (p *parser) matchIndex(open, close string) int {
	depth := 0
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(p.toks) - 1
}

func (p *parser) skipStatement() {
	p.skipStatementWithin(len(p.toks) - 1)
}

func (p *parser) skipStatementWithin(end int) {
	depth := 0
	for p.pos < end && !p.atEOF() {
		t := p.cur()
		if t.Kind == TokenPunct {
			switch t.Text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ";":
				if depth <= 0 {
					p.pos++
					return
				}
			}
		}
		p.pos++
		if depth < 0 {
			return
		}
	}
}
