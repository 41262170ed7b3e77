package jsx

import (
	"strings"
)

// SourceFile is the syntactic surface the parser extracts from one unit.
// Only the component-producing subset is modeled; everything else is either
// captured verbatim (type declarations) or skipped.
type SourceFile struct {
	Path       string
	Components []*ComponentDecl
	Types      map[string]string
	Errors     []*ParseError
}

// ComponentDecl is one function, arrow, or class component.
type ComponentDecl struct {
	Name       string
	Params     []ParamDecl
	PropsParam string // un-destructured props identifier
	PropsType  string // verbatim type annotation of the props parameter
	Hooks      []HookCall
	Platforms  []PlatformChain
	Return     *JSXNode
	Line, Col  int
	Class      bool
}

// ParamDecl is one destructured prop.
type ParamDecl struct {
	Name    string
	Default string
}

// Hook kinds recognized by the front-end.
const (
	HookState    = "useState"
	HookEffect   = "useEffect"
	HookContext  = "useContext"
	HookRef      = "useRef"
	HookMemo     = "useMemo"
	HookCallback = "useCallback"
)

// HookCall is one recognized hook invocation in a component body.
type HookCall struct {
	Kind     string
	Name     string // bound identifier (state var, context var, ref, helper)
	Setter   string // second element of a useState pair
	Init     string // verbatim initializer / argument span
	Body     string // effect body span
	Cleanup  string // effect teardown body, when the effect returns a function
	HasDeps  bool
	DepsText string
	Line     int
}

// PlatformChain is a lowered-to-be platform conditional: an if/else-if/else
// chain or a ternary over Platform.OS comparisons.
type PlatformChain struct {
	Branches []PlatformBranch
	Else     string
	HasElse  bool
	Line     int
}

// PlatformBranch is one arm of a platform conditional.
type PlatformBranch struct {
	Platform string
	Negated  bool
	Code     string
}

// JSX tree.

// Synthetic tags used by the parser.
const (
	tagFragment = ""         // <>...</>
	tagText     = "#text"    // raw text run
	tagExpr     = "#expr"    // {expression} child
	tagUnknown  = "#unknown" // malformed subtree, preserved as a placeholder
)

// JSXNode is one element, fragment, text run, or expression child.
type JSXNode struct {
	Tag      string
	Attrs    []JSXAttr
	Children []*JSXNode
	Text     string // tagText: raw text; tagExpr: expression span
	Line     int
	Col      int
}

// JSXAttr is one attribute.
type JSXAttr struct {
	Name string
	// Expr is true when the value was brace-wrapped; Value then holds the
	// verbatim expression span. Otherwise Value is the cooked string
	// literal, or "true" for a bare attribute.
	Expr  bool
	Value string
	Bare  bool
}

// Parser consumes the token stream produced by Lex.
type Parser struct {
	path   string
	src    string
	toks   []Token
	pos    int
	errors []*ParseError
}

// Parse lexes and parses one source unit. Parse errors inside component
// bodies are recoverable: they are collected and the offending subtree is
// skipped.
func Parse(path, src string) (*SourceFile, error) {
	toks, err := Lex(path, src)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			return &SourceFile{Path: path, Types: map[string]string{}, Errors: []*ParseError{perr}}, nil
		}
		return nil, err
	}
	p := &Parser{path: path, src: src, toks: toks}
	file := &SourceFile{Path: path, Types: map[string]string{}}

	for !p.atEOF() {
		switch {
		case p.atIdent("export"), p.atIdent("default"):
			p.pos++
		case p.atIdent("function"):
			if c := p.parseFunctionComponent(); c != nil {
				file.Components = append(file.Components, c)
			}
		case p.atIdent("class"):
			if c := p.parseClassComponent(); c != nil {
				file.Components = append(file.Components, c)
			}
		case p.atIdent("const"), p.atIdent("let"), p.atIdent("var"):
			if c := p.parseArrowComponent(); c != nil {
				file.Components = append(file.Components, c)
			}
		case p.atIdent("interface"), p.atIdent("enum"):
			p.captureTypeDecl(file, true)
		case p.atIdent("type"):
			p.captureTypeDecl(file, false)
		default:
			p.pos++
		}
	}
	file.Errors = p.errors
	return file, nil
}

// =============================================================================
// Declarations
// =============================================================================

func (p *Parser) parseFunctionComponent() *ComponentDecl {
	start := p.cur()
	p.pos++ // function
	if !p.at(TokenIdent) {
		p.skipStatement()
		return nil
	}
	name := p.cur().Text
	p.pos++
	if !p.atPunct("(") {
		p.skipStatement()
		return nil
	}
	c := &ComponentDecl{Name: name, Line: start.Line, Col: start.Col}
	p.parseParams(c)
	p.skipTypeAnnotation()
	if !p.atPunct("{") {
		p.skipStatement()
		return nil
	}
	bodyEnd := p.matchIndex("{", "}")
	p.pos++ // {
	p.parseComponentBody(c, bodyEnd)
	p.pos = bodyEnd + 1
	if c.Return == nil {
		return nil // not a component: no JSX return
	}
	return c
}

func (p *Parser) parseArrowComponent() *ComponentDecl {
	save := p.pos
	p.pos++ // const / let / var
	if !p.at(TokenIdent) {
		p.pos = save
		p.skipStatement()
		return nil
	}
	start := p.cur()
	name := start.Text
	p.pos++
	p.skipTypeAnnotation()
	if !p.atPunct("=") {
		p.pos = save
		p.skipStatement()
		return nil
	}
	p.pos++
	if !p.atPunct("(") {
		p.pos = save
		p.skipStatement()
		return nil
	}
	// Look past the parameter list for "=>".
	closeParen := p.matchIndex("(", ")")
	if closeParen < 0 || !p.punctAt(closeParen+1, "=>") &&
		!(p.toks[minIdx(closeParen+1, len(p.toks)-1)].Kind == TokenPunct && p.toks[minIdx(closeParen+1, len(p.toks)-1)].Text == ":") {
		p.pos = save
		p.skipStatement()
		return nil
	}
	c := &ComponentDecl{Name: name, Line: start.Line, Col: start.Col}
	p.parseParams(c)
	p.skipTypeAnnotation()
	if !p.atPunct("=>") {
		p.pos = save
		p.skipStatement()
		return nil
	}
	p.pos++
	switch {
	case p.atPunct("("):
		// Concise body: (<JSX/>)
		p.pos++
		c.Return = p.parseJSX()
		if p.atPunct(")") {
			p.pos++
		}
	case p.atPunct("<"):
		c.Return = p.parseJSX()
	case p.atPunct("{"):
		bodyEnd := p.matchIndex("{", "}")
		p.pos++
		p.parseComponentBody(c, bodyEnd)
		p.pos = bodyEnd + 1
	default:
		p.pos = save
		p.skipStatement()
		return nil
	}
	if c.Return == nil {
		return nil
	}
	return c
}

func (p *Parser) parseClassComponent() *ComponentDecl {
	start := p.cur()
	p.pos++ // class
	if !p.at(TokenIdent) {
		p.skipStatement()
		return nil
	}
	name := p.cur().Text
	p.pos++
	// Skip heritage and generics up to the class body.
	for !p.atEOF() && !p.atPunct("{") {
		p.pos++
	}
	if p.atEOF() {
		return nil
	}
	classEnd := p.matchIndex("{", "}")
	p.pos++
	c := &ComponentDecl{Name: name, Line: start.Line, Col: start.Col, Class: true}
	// Find the render method inside the class body.
	for p.pos < classEnd {
		if p.atIdent("render") && p.punctAt(p.pos+1, "(") {
			p.pos++ // render
			parenEnd := p.matchIndex("(", ")")
			p.pos = parenEnd + 1
			if p.atPunct("{") {
				bodyEnd := p.matchIndex("{", "}")
				p.pos++
				p.parseComponentBody(c, bodyEnd)
				p.pos = bodyEnd + 1
			}
			break
		}
		p.pos++
	}
	p.pos = classEnd + 1
	if c.Return == nil {
		return nil
	}
	return c
}

// parseParams parses the props parameter: either a destructuring pattern or
// a plain identifier. Type annotations are preserved verbatim.
func (p *Parser) parseParams(c *ComponentDecl) {
	parenEnd := p.matchIndex("(", ")")
	p.pos++ // (
	if p.pos >= parenEnd {
		p.pos = parenEnd + 1
		return
	}
	if p.atPunct("{") {
		patEnd := p.matchIndex("{", "}")
		p.pos++
		for p.pos < patEnd {
			if p.at(TokenIdent) {
				param := ParamDecl{Name: p.cur().Text}
				p.pos++
				if p.atPunct("=") {
					p.pos++
					defStart := p.cur().Offset
					for p.pos < patEnd && !p.atPunct(",") {
						p.pos++
					}
					param.Default = strings.TrimSpace(p.src[defStart:p.cur().Offset])
				}
				c.Params = append(c.Params, param)
			}
			if p.atPunct(",") {
				p.pos++
				continue
			}
			if p.pos < patEnd && !p.at(TokenIdent) {
				p.pos++
			}
		}
		p.pos = patEnd + 1
	} else if p.at(TokenIdent) {
		c.PropsParam = p.cur().Text
		p.pos++
	}
	// Type annotation on the parameter.
	if p.atPunct(":") {
		typeStart := p.toks[p.pos+1].Offset
		p.pos = parenEnd
		c.PropsType = strings.TrimSpace(p.src[typeStart:p.cur().Offset])
	}
	p.pos = parenEnd + 1
}

// captureTypeDecl preserves interface/type/enum declarations verbatim in
// canonical string form, keyed by declared name.
func (p *Parser) captureTypeDecl(file *SourceFile, braced bool) {
	start := p.cur()
	p.pos++
	if !p.at(TokenIdent) {
		return
	}
	name := p.cur().Text
	var end int
	if braced {
		for !p.atEOF() && !p.atPunct("{") {
			p.pos++
		}
		if p.atEOF() {
			return
		}
		closeIdx := p.matchIndex("{", "}")
		end = p.toks[closeIdx].End
		p.pos = closeIdx + 1
	} else {
		// type alias: runs to the terminating semicolon at depth zero.
		depth := 0
		for !p.atEOF() {
			switch {
			case p.atPunct("{"), p.atPunct("("), p.atPunct("["):
				depth++
			case p.atPunct("}"), p.atPunct(")"), p.atPunct("]"):
				depth--
			case p.atPunct(";") && depth == 0:
				end = p.cur().End
				p.pos++
				file.Types[name] = canonicalSpan(p.src[start.Offset:end])
				return
			}
			p.pos++
		}
		end = len(p.src)
	}
	file.Types[name] = canonicalSpan(p.src[start.Offset:end])
}

// =============================================================================
// Component bodies
// =============================================================================

// parseComponentBody scans statements up to end (the index of the closing
// brace token), recognizing hook calls, platform conditionals and the JSX
// return.
func (p *Parser) parseComponentBody(c *ComponentDecl, end int) {
	for p.pos < end {
		switch {
		case p.atIdent("const"), p.atIdent("let"), p.atIdent("var"):
			if !p.parseHookBinding(c, end) {
				p.skipStatementWithin(end)
			}
		case p.atIdent(HookEffect):
			p.parseEffect(c, end)
		case p.atIdent("if") && p.isPlatformIf():
			p.parsePlatformChain(c, end)
		case p.atIdent("Platform") && p.isPlatformTernaryStmt():
			p.parsePlatformTernary(c, end)
		case p.atIdent("return"):
			p.pos++
			wrapped := false
			if p.atPunct("(") {
				p.pos++
				wrapped = true
			}
			if p.atPunct("<") {
				c.Return = p.parseJSX()
			} else {
				p.skipStatementWithin(end)
			}
			if wrapped && p.atPunct(")") {
				p.pos++
			}
			if p.atPunct(";") {
				p.pos++
			}
		default:
			p.pos++
		}
	}
}

// parseHookBinding recognizes the hook binding forms:
//
//	const [x, setX] = useState(init)
//	const x = useContext(Ctx) | useRef(init) | useMemo(...) | useCallback(...)
func (p *Parser) parseHookBinding(c *ComponentDecl, end int) bool {
	save := p.pos
	p.pos++ // const
	line := p.cur().Line

	if p.atPunct("[") {
		// Destructured pair.
		if !p.identAt(p.pos+1) || !p.punctAt(p.pos+2, ",") || !p.identAt(p.pos+3) || !p.punctAt(p.pos+4, "]") {
			p.pos = save
			return false
		}
		name := p.toks[p.pos+1].Text
		setter := p.toks[p.pos+3].Text
		p.pos += 5
		if !p.atPunct("=") || !p.identAtText(p.pos+1, HookState) {
			p.pos = save
			return false
		}
		p.pos += 2 // = useState
		if !p.atPunct("(") {
			p.pos = save
			return false
		}
		closeIdx := p.matchIndex("(", ")")
		init := strings.TrimSpace(p.src[p.toks[p.pos].End:p.toks[closeIdx].Offset])
		p.pos = closeIdx + 1
		if p.atPunct(";") {
			p.pos++
		}
		c.Hooks = append(c.Hooks, HookCall{
			Kind: HookState, Name: name, Setter: setter, Init: init, Line: line,
		})
		return true
	}

	if !p.at(TokenIdent) {
		p.pos = save
		return false
	}
	name := p.cur().Text
	p.pos++
	p.skipTypeAnnotation()
	if !p.atPunct("=") {
		p.pos = save
		return false
	}
	p.pos++
	if !p.at(TokenIdent) {
		p.pos = save
		return false
	}
	kind := p.cur().Text
	switch kind {
	case HookContext, HookRef, HookMemo, HookCallback:
	default:
		p.pos = save
		return false
	}
	p.pos++
	if !p.atPunct("(") {
		p.pos = save
		return false
	}
	closeIdx := p.matchIndex("(", ")")
	arg := strings.TrimSpace(p.src[p.toks[p.pos].End:p.toks[closeIdx].Offset])
	p.pos = closeIdx + 1
	if p.atPunct(";") {
		p.pos++
	}
	c.Hooks = append(c.Hooks, HookCall{Kind: kind, Name: name, Init: arg, Line: line})
	return true
}

// parseEffect recognizes useEffect(() => { body }, [deps]).
func (p *Parser) parseEffect(c *ComponentDecl, end int) {
	line := p.cur().Line
	p.pos++ // useEffect
	if !p.atPunct("(") {
		return
	}
	callEnd := p.matchIndex("(", ")")
	p.pos++
	// Arrow argument.
	if p.atPunct("(") {
		argEnd := p.matchIndex("(", ")")
		p.pos = argEnd + 1
	}
	if p.atPunct("=>") {
		p.pos++
	}
	hook := HookCall{Kind: HookEffect, Line: line}
	if p.atPunct("{") {
		bodyEnd := p.matchIndex("{", "}")
		body := p.src[p.toks[p.pos].End:p.toks[bodyEnd].Offset]
		hook.Body, hook.Cleanup = splitEffectCleanup(body)
		p.pos = bodyEnd + 1
	}
	if p.atPunct(",") {
		p.pos++
		if p.atPunct("[") {
			depsEnd := p.matchIndex("[", "]")
			hook.HasDeps = true
			hook.DepsText = strings.TrimSpace(p.src[p.toks[p.pos].End:p.toks[depsEnd].Offset])
			p.pos = depsEnd + 1
		}
	}
	p.pos = callEnd + 1
	if p.atPunct(";") {
		p.pos++
	}
	c.Hooks = append(c.Hooks, hook)
	_ = end
}

// splitEffectCleanup separates the effect body from a trailing
// "return () => { ... }" teardown, when present at the top level.
func splitEffectCleanup(body string) (string, string) {
	idx := lastTopLevelReturn(body)
	if idx < 0 {
		return strings.TrimSpace(body), ""
	}
	after := body[idx+len("return"):]
	trimmed := strings.TrimSpace(after)
	if !strings.HasPrefix(trimmed, "()") && !strings.HasPrefix(trimmed, "function") {
		return strings.TrimSpace(body), ""
	}
	return strings.TrimSpace(body[:idx]), strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
}

// lastTopLevelReturn finds the offset of the last "return" keyword at brace
// depth zero within body, or -1.
func lastTopLevelReturn(body string) int {
	depth := 0
	last := -1
	for i := 0; i+6 <= len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth == 0 && strings.HasPrefix(body[i:], "return") {
			before := i == 0 || !isIdentPart(rune(body[i-1]))
			after := i+6 == len(body) || !isIdentPart(rune(body[i+6]))
			if before && after {
				last = i
			}
		}
	}
	return last
}

// =============================================================================
// Platform conditionals
// =============================================================================

// isPlatformIf looks ahead for if (Platform.OS === "tag") without consuming.
func (p *Parser) isPlatformIf() bool {
	return p.identAtText(p.pos+2, "Platform") && p.punctAt(p.pos+3, ".") && p.identAtText(p.pos+4, "OS")
}

func (p *Parser) isPlatformTernaryStmt() bool {
	return p.punctAt(p.pos+1, ".") && p.identAtText(p.pos+2, "OS")
}

// parsePlatformChain lowers an if / else if / else chain over Platform.OS
// comparisons.
func (p *Parser) parsePlatformChain(c *ComponentDecl, end int) {
	chain := PlatformChain{Line: p.cur().Line}
	for p.atIdent("if") {
		p.pos++ // if
		if !p.atPunct("(") {
			return
		}
		condEnd := p.matchIndex("(", ")")
		branch, ok := p.parsePlatformCond(condEnd)
		p.pos = condEnd + 1
		if !p.atPunct("{") {
			return
		}
		blockEnd := p.matchIndex("{", "}")
		branch.Code = strings.TrimSpace(p.src[p.toks[p.pos].End:p.toks[blockEnd].Offset])
		p.pos = blockEnd + 1
		if ok {
			chain.Branches = append(chain.Branches, branch)
		}
		if p.atIdent("else") {
			p.pos++
			if p.atIdent("if") {
				continue
			}
			if p.atPunct("{") {
				elseEnd := p.matchIndex("{", "}")
				chain.Else = strings.TrimSpace(p.src[p.toks[p.pos].End:p.toks[elseEnd].Offset])
				chain.HasElse = true
				p.pos = elseEnd + 1
			}
		}
		break
	}
	if len(chain.Branches) > 0 {
		c.Platforms = append(c.Platforms, chain)
	}
	_ = end
}

// parsePlatformCond parses Platform.OS === "tag" (or !==) between the
// current position and condEnd.
func (p *Parser) parsePlatformCond(condEnd int) (PlatformBranch, bool) {
	i := p.pos + 1 // past (
	if !p.identAtText(i, "Platform") || !p.punctAt(i+1, ".") || !p.identAtText(i+2, "OS") {
		return PlatformBranch{}, false
	}
	i += 3
	if i >= condEnd || p.toks[i].Kind != TokenPunct {
		return PlatformBranch{}, false
	}
	op := p.toks[i].Text
	negated := false
	switch op {
	case "===", "==":
	case "!==", "!=":
		negated = true
	default:
		return PlatformBranch{}, false
	}
	i++
	if i >= condEnd || p.toks[i].Kind != TokenString {
		return PlatformBranch{}, false
	}
	return PlatformBranch{Platform: p.toks[i].Text, Negated: negated}, true
}

// parsePlatformTernary lowers Platform.OS === "tag" ? then : else ;
func (p *Parser) parsePlatformTernary(c *ComponentDecl, end int) {
	chain := PlatformChain{Line: p.cur().Line}
	i := p.pos
	if !p.punctAt(i+1, ".") || !p.identAtText(i+2, "OS") {
		p.pos++
		return
	}
	i += 3
	if i >= len(p.toks) || p.toks[i].Kind != TokenPunct {
		p.pos = i
		return
	}
	op := p.toks[i].Text
	negated := op == "!==" || op == "!="
	if op != "===" && op != "==" && !negated {
		p.pos = i
		return
	}
	i++
	if p.toks[i].Kind != TokenString {
		p.pos = i
		return
	}
	tag := p.toks[i].Text
	i++
	if !p.punctAt(i, "?") {
		p.pos = i
		return
	}
	i++
	// Then-branch runs to the ":" at depth zero; else to the ";".
	thenStart := p.toks[i].Offset
	depth := 0
	for ; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		case ":":
			if depth == 0 {
				goto foundColon
			}
		}
	}
	p.pos = i
	return
foundColon:
	thenCode := strings.TrimSpace(p.src[thenStart:p.toks[i].Offset])
	i++
	elseStart := p.toks[i].Offset
	for ; i < len(p.toks); i++ {
		t := p.toks[i]
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		case ";":
			if depth == 0 {
				goto foundSemi
			}
		}
	}
foundSemi:
	elseCode := strings.TrimSpace(p.src[elseStart:p.toks[minIdx(i, len(p.toks)-1)].Offset])
	chain.Branches = []PlatformBranch{{Platform: tag, Negated: negated, Code: ensureStmt(thenCode)}}
	chain.Else = ensureStmt(elseCode)
	chain.HasElse = chain.Else != ""
	p.pos = minIdx(i+1, len(p.toks))
	c.Platforms = append(c.Platforms, chain)
	_ = end
}

func ensureStmt(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.HasSuffix(code, ";") || strings.HasSuffix(code, "}") {
		return code
	}
	return code + ";"
}

// =============================================================================
// JSX
// =============================================================================

// parseJSX parses one element, fragment or text tree rooted at "<".
func (p *Parser) parseJSX() *JSXNode {
	if !p.atPunct("<") {
		return nil
	}
	start := p.cur()
	p.pos++ // <

	// Fragment.
	if p.atPunct(">") {
		p.pos++
		node := &JSXNode{Tag: tagFragment, Line: start.Line, Col: start.Col}
		p.parseJSXChildren(node)
		return node
	}

	if !p.at(TokenIdent) {
		p.recordError(start, "expected JSX tag name")
		p.recoverJSX()
		return &JSXNode{Tag: tagUnknown, Text: "expected JSX tag name", Line: start.Line, Col: start.Col}
	}
	tag := p.cur().Text
	p.pos++
	for p.atPunct(".") && p.identAt(p.pos+1) {
		tag += "." + p.toks[p.pos+1].Text
		p.pos += 2
	}
	node := &JSXNode{Tag: tag, Line: start.Line, Col: start.Col}

	// Attributes.
	for !p.atEOF() && !p.atPunct(">") && !p.atPunct("/") {
		if !p.at(TokenIdent) {
			at := p.cur()
			p.recordError(at, "expected JSX attribute name")
			p.recoverJSX()
			return &JSXNode{Tag: tagUnknown, Text: "expected JSX attribute name", Line: at.Line, Col: at.Col}
		}
		attr := JSXAttr{Name: p.cur().Text}
		p.pos++
		if p.atPunct("=") {
			p.pos++
			switch {
			case p.at(TokenString):
				attr.Value = p.cur().Text
				p.pos++
			case p.atPunct("{"):
				exprEnd := p.matchIndex("{", "}")
				attr.Expr = true
				attr.Value = strings.TrimSpace(p.src[p.cur().End:p.toks[exprEnd].Offset])
				p.pos = exprEnd + 1
			default:
				p.recordError(p.cur(), "expected JSX attribute value")
				p.pos++
			}
		} else {
			attr.Bare = true
			attr.Value = "true"
		}
		node.Attrs = append(node.Attrs, attr)
	}

	// Self-closing.
	if p.atPunct("/") {
		p.pos++
		if p.atPunct(">") {
			p.pos++
		}
		return node
	}
	if p.atPunct(">") {
		p.pos++
	}
	p.parseJSXChildren(node)
	return node
}

// parseJSXChildren consumes children until the matching closing tag.
func (p *Parser) parseJSXChildren(node *JSXNode) {
	for !p.atEOF() {
		if p.atPunct("<") && p.punctAt(p.pos+1, "/") {
			// Closing tag: consume through ">".
			p.pos += 2
			for !p.atEOF() && !p.atPunct(">") {
				p.pos++
			}
			if !p.atEOF() {
				p.pos++
			}
			return
		}
		switch {
		case p.atPunct("<"):
			if child := p.parseJSX(); child != nil {
				node.Children = append(node.Children, child)
			} else {
				return
			}
		case p.atPunct("{"):
			exprEnd := p.matchIndex("{", "}")
			expr := strings.TrimSpace(p.src[p.cur().End:p.toks[exprEnd].Offset])
			node.Children = append(node.Children, &JSXNode{
				Tag: tagExpr, Text: expr, Line: p.cur().Line, Col: p.cur().Col,
			})
			p.pos = exprEnd + 1
		default:
			// Text run: raw source up to the next "<" or "{" token.
			startTok := p.cur()
			j := p.pos
			for j < len(p.toks) && !(p.toks[j].Kind == TokenPunct && (p.toks[j].Text == "<" || p.toks[j].Text == "{")) {
				j++
			}
			endOff := len(p.src)
			if j < len(p.toks) {
				endOff = p.toks[j].Offset
			}
			text := p.src[startTok.Offset:endOff]
			node.Children = append(node.Children, &JSXNode{
				Tag: tagText, Text: text, Line: startTok.Line, Col: startTok.Col,
			})
			p.pos = j
		}
	}
}

// recoverJSX skips to the end of the malformed element so parsing can
// continue after it.
func (p *Parser) recoverJSX() {
	depth := 1
	for !p.atEOF() && depth > 0 {
		if p.atPunct("<") {
			depth++
		}
		if p.atPunct(">") {
			depth--
		}
		p.pos++
	}
}

// =============================================================================
// Token helpers
// =============================================================================

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool { return p.toks[p.pos].Kind == TokenEOF }

func (p *Parser) at(kind TokenKind) bool { return p.cur().Kind == kind }

func (p *Parser) atIdent(text string) bool {
	return p.cur().Kind == TokenIdent && p.cur().Text == text
}

func (p *Parser) atPunct(text string) bool {
	return p.cur().Kind == TokenPunct && p.cur().Text == text
}

func (p *Parser) identAt(i int) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenIdent
}

func (p *Parser) identAtText(i int, text string) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenIdent && p.toks[i].Text == text
}

func (p *Parser) punctAt(i int, text string) bool {
	return i < len(p.toks) && p.toks[i].Kind == TokenPunct && p.toks[i].Text == text
}

// matchIndex returns the index of the token closing the bracket at the
// current position. The current token must be the opening bracket.
func (p *Parser) matchIndex(open, close string) int {
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

// skipStatement advances past the current statement: through the next ";"
// at bracket depth zero, or through a closing bracket that has no opener
// inside the skipped span.
func (p *Parser) skipStatement() {
	p.skipStatementWithin(len(p.toks) - 1)
}

func (p *Parser) skipStatementWithin(end int) {
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

// skipTypeAnnotation consumes ": T" where T runs to the next "=", ")", ","
// or "=>" at depth zero.
func (p *Parser) skipTypeAnnotation() {
	if !p.atPunct(":") {
		return
	}
	p.pos++
	depth := 0
	for !p.atEOF() {
		t := p.cur()
		if t.Kind == TokenPunct {
			switch t.Text {
			case "(", "[", "{", "<":
				depth++
			case ")", "]", "}", ">":
				if depth == 0 {
					return
				}
				depth--
			case "=", "=>", ",", ";":
				if depth == 0 {
					return
				}
			}
		}
		p.pos++
	}
}

func (p *Parser) recordError(at Token, msg string) {
	p.errors = append(p.errors, &ParseError{
		Path: p.path, Line: at.Line, Column: at.Col,
		Message: msg,
		Excerpt: excerpt(p.src, at.Offset),
	})
}

// canonicalSpan normalizes interior whitespace of a captured declaration.
func canonicalSpan(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func minIdx(a, b int) int {
	if a < b {
		return a
	}
	return b
}
