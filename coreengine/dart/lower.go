package dart

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lumora-labs/lumora-core/coreengine/bridge"
	"github.com/lumora-labs/lumora-core/coreengine/cache"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
	"github.com/lumora-labs/lumora-core/coreengine/observability"
)

// Logger is the structured logger the front-end binds to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Frontend lowers Dart widget source to IR. One instance per pipeline
// worker; the widget-subtree cache is instance-local.
type Frontend struct {
	logger  Logger
	subtree *cache.SubtreeCache
}

// NewFrontend creates a Dart front-end.
func NewFrontend(logger Logger) *Frontend {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Frontend{
		logger:  logger,
		subtree: cache.NewSubtreeCache(0),
	}
}

// Dispose clears instance-local caches.
func (f *Frontend) Dispose() {
	f.subtree.Clear()
}

// Lower parses and lowers one Dart source unit. Deterministic byte-for-byte
// for identical input.
func (f *Frontend) Lower(path string, src []byte) (*ir.IR, error) {
	key := cache.KeyFor(append([]byte(path+"\x00"), src...))
	if v, ok := f.subtree.Get(key); ok {
		return v.(*ir.IR), nil
	}

	file, err := Parse(path, string(src))
	if err != nil {
		return nil, err
	}

	l := &lowerer{
		src:    string(src),
		minter: ir.NewIDMinter(path),
		doc: &ir.IR{
			SchemaVersion: ir.SchemaVersion,
			Metadata: ir.Metadata{
				SourceDialect: ir.DialectDart,
				SourcePath:    path,
			},
			Nodes: map[string]*ir.Node{},
		},
	}

	for _, perr := range file.Errors {
		l.addDiagnostic("error", perr.Line, perr.Column, perr.Message, perr.Excerpt)
	}

	// State classes index by the widget they belong to.
	states := map[string]*ClassDecl{}
	for _, c := range file.Classes {
		if c.Base == BaseState && c.StateOf != "" {
			states[c.StateOf] = c
		}
	}

	for _, c := range file.Classes {
		switch c.Base {
		case BaseStateless:
			l.lowerWidget(c, nil)
		case BaseStateful:
			l.lowerWidget(c, states[c.Name])
		case BaseState:
			// consumed through its widget
		default:
			// A custom base with a build method still renders.
			if c.Build != nil {
				l.lowerWidget(c, nil)
			}
		}
	}

	if err := l.doc.Validate(); err != nil {
		return nil, err
	}
	f.subtree.Put(key, l.doc)

	f.logger.Debug("dart_lowered",
		"path", path,
		"classes", len(file.Classes),
		"nodes", len(l.doc.Nodes),
		"diagnostics", len(l.doc.Metadata.Diagnostics),
	)
	return l.doc, nil
}

type lowerer struct {
	src      string
	minter   *ir.IDMinter
	doc      *ir.IR
	blockSeq int
	scope    map[string]bool
}

func (l *lowerer) addDiagnostic(severity string, line, col int, msg, excerpt string) {
	l.doc.Metadata.Diagnostics = append(l.doc.Metadata.Diagnostics, ir.Diagnostic{
		Severity: severity,
		Path:     l.doc.Metadata.SourcePath,
		Line:     line,
		Column:   col,
		Message:  msg,
		Excerpt:  excerpt,
	})
	observability.RecordDiagnostic(string(ir.DialectDart), severity)
}

// lowerWidget lowers one widget class, pulling state from its companion
// state class when stateful.
func (l *lowerer) lowerWidget(c *ClassDecl, state *ClassDecl) {
	node := &ir.Node{
		ID:   l.minter.Mint(),
		Kind: c.Name,
		Meta: &ir.NodeMeta{Line: c.Line, Column: c.Col},
	}
	l.doc.Nodes[node.ID] = node
	l.doc.Roots = append(l.doc.Roots, node.ID)

	// Constructor surface registers the widget's parameter contract.
	if len(c.Ctor) > 0 {
		if l.doc.Metadata.CustomWidgets == nil {
			l.doc.Metadata.CustomWidgets = map[string]*ir.CustomWidget{}
		}
		w := &ir.CustomWidget{Name: c.Name}
		for _, p := range c.Ctor {
			w.Params = append(w.Params, ir.WidgetParam{
				Name: p.Name, Type: p.Type, Required: p.Required, Default: p.Default,
			})
		}
		l.doc.Metadata.CustomWidgets[c.Name] = w
	}

	l.scope = map[string]bool{}
	buildOwner := c
	if state != nil {
		buildOwner = state
		l.lowerStateClass(state)
	}

	for _, chain := range c.Platforms {
		l.lowerPlatformChain(chain)
	}
	if buildOwner != c {
		for _, chain := range buildOwner.Platforms {
			l.lowerPlatformChain(chain)
		}
	}

	if buildOwner.Build != nil {
		if id, ok := l.lowerWidgetExpr(buildOwner.Build); ok {
			node.Children = append(node.Children, id)
		}
	}
}

// lowerStateClass derives the state definition from the state class's
// fields, and setters from its set<Name> methods. Remaining methods other
// than createState, initState and dispose are preserved opaquely.
func (l *lowerer) lowerStateClass(state *ClassDecl) {
	if len(state.Fields) == 0 && len(state.Methods) == 0 {
		return
	}
	def := &ir.StateDefinition{Scope: ir.ScopeLocal, Adapter: bridge.AdapterListenable}
	for _, f := range state.Fields {
		v := ir.StateVariable{
			Name:    f.Name,
			Type:    dartTypeToSem(f.Type, f.Nullable),
			Initial: literalProp(f.Init),
			Mutable: !f.Final,
		}
		def.Variables = append(def.Variables, v)
		l.scope[f.Name] = true
	}

	for _, m := range state.Methods {
		if m.Name == "createState" || m.Name == "initState" || m.Name == "dispose" {
			continue
		}
		if name, ok := setterTarget(m); ok {
			for i := range def.Variables {
				if def.Variables[i].Name == name {
					def.Variables[i].Setter = m.Name
				}
			}
			continue
		}
		if l.doc.Metadata.Helpers == nil {
			l.doc.Metadata.Helpers = map[string]string{}
		}
		l.doc.Metadata.Helpers[m.Name] = fmt.Sprintf("void %s(%s) { %s }", m.Name, m.Params, m.Body)
	}

	if len(def.Variables) > 0 {
		l.doc.State = def
	}
}

// setterTarget recognizes the generated setter convention:
// "void setX(T value) { setState(() { x = value; }); }".
func setterTarget(m MethodDecl) (string, bool) {
	if !strings.HasPrefix(m.Name, "set") || len(m.Name) < 4 {
		return "", false
	}
	if !strings.Contains(m.Body, "setState(") {
		return "", false
	}
	rest := m.Name[3:]
	return strings.ToLower(rest[:1]) + rest[1:], true
}

// lowerWidgetExpr lowers one widget constructor call to an arena node.
func (l *lowerer) lowerWidgetExpr(w *WidgetExpr) (string, bool) {
	if w == nil {
		return "", false
	}
	kind := bridge.KindForDartWidget(w.Name)
	node := &ir.Node{
		ID:   l.minter.Mint(),
		Kind: kind,
		Meta: &ir.NodeMeta{Line: w.Line, Column: w.Col},
	}
	l.doc.Nodes[node.ID] = node

	// Positional arguments: the Text content, or a generic value prop.
	for i, arg := range w.Positional {
		switch {
		case kind == ir.KindText && arg.Kind == ArgString:
			l.setProp(node, "text", l.stringProp(arg.Text))
		case arg.Kind == ArgWidget:
			if id, ok := l.lowerWidgetExpr(arg.Widget); ok {
				node.Children = append(node.Children, id)
			}
		case arg.Kind == ArgString:
			l.setProp(node, fmt.Sprintf("arg%d", i), l.stringProp(arg.Text))
		default:
			l.setProp(node, fmt.Sprintf("arg%d", i), literalPropScoped(arg.Text, l.scope))
		}
	}

	for _, named := range w.Named {
		switch {
		case named.Name == "children" && named.Value.Kind == ArgList:
			for _, item := range named.Value.List {
				if item.Kind == ArgWidget {
					if id, ok := l.lowerWidgetExpr(item.Widget); ok {
						node.Children = append(node.Children, id)
					}
				}
			}

		case named.Name == "child" && named.Value.Kind == ArgWidget:
			if id, ok := l.lowerWidgetExpr(named.Value.Widget); ok {
				node.Children = append(node.Children, id)
			}

		case named.Value.Kind == ArgClosure:
			if event, ok := bridge.EventForDartParam(named.Name); ok {
				if node.Event(event) == nil {
					node.Events = append(node.Events, ir.EventBinding{
						Event:   event,
						Handler: named.Value.Text,
						Params:  closureParams(named.Value.Text),
						Async:   strings.Contains(named.Value.Text, "async"),
					})
				}
				continue
			}
			l.setProp(node, named.Name, ir.Expr(named.Value.Text))

		case named.Value.Kind == ArgString:
			l.setProp(node, named.Name, l.stringProp(named.Value.Text))

		case named.Value.Kind == ArgWidget:
			// Non-tree widget argument (styles, decorations): preserved
			// opaquely from its source span.
			l.setProp(node, named.Name, ir.Expr(l.span(named.Value.Widget)))

		case named.Value.Kind == ArgList:
			l.setProp(node, named.Name, l.listProp(named.Value.List))

		default:
			l.setProp(node, named.Name, literalPropScoped(named.Value.Text, l.scope))
		}
	}

	l.collapseButtonChild(node)
	return node.ID, true
}

// collapseButtonChild folds "Button > Text(title)" into a title prop so the
// two dialects agree on the Button surface.
func (l *lowerer) collapseButtonChild(node *ir.Node) {
	if node.Kind != ir.KindButton || len(node.Children) != 1 {
		return
	}
	child := l.doc.Nodes[node.Children[0]]
	if child == nil || child.Kind != ir.KindText || len(child.Children) != 0 || len(child.Events) != 0 {
		return
	}
	if len(child.Props) != 1 {
		return
	}
	text, ok := child.Props["text"]
	if !ok {
		return
	}
	l.setProp(node, "title", text)
	node.Children = nil
	delete(l.doc.Nodes, child.ID)
}

func (l *lowerer) setProp(node *ir.Node, key string, v ir.PropValue) {
	if node.Props == nil {
		node.Props = map[string]ir.PropValue{}
	}
	node.Props[key] = v
}

// stringProp folds a raw Dart string body: a lone "$name" interpolation
// resolves to a state ref when the name is in scope.
func (l *lowerer) stringProp(body string) ir.PropValue {
	if name, ok := loneInterpolation(body); ok {
		if l.scope[name] {
			return ir.StateRef(name)
		}
		return ir.Expr(name)
	}
	return ir.Str(unescapeDart(body))
}

func (l *lowerer) listProp(items []ArgExpr) ir.PropValue {
	out := make([]ir.PropValue, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case ArgString:
			out = append(out, l.stringProp(item.Text))
		case ArgList:
			out = append(out, l.listProp(item.List))
		default:
			out = append(out, literalPropScoped(item.Text, l.scope))
		}
	}
	return ir.List(out...)
}

func (l *lowerer) span(w *WidgetExpr) string {
	if w.StartOff < 0 || w.EndOff > len(l.src) || w.StartOff >= w.EndOff {
		return w.Name
	}
	return l.src[w.StartOff:w.EndOff]
}

// loneInterpolation matches "$name" and "${expr}" bodies: strings whose
// whole content is a single interpolation.
func loneInterpolation(body string) (string, bool) {
	if !strings.HasPrefix(body, "$") || len(body) < 2 {
		return "", false
	}
	inner := body[1:]
	if strings.HasPrefix(inner, "{") {
		if !strings.HasSuffix(inner, "}") {
			return "", false
		}
		inner = inner[1 : len(inner)-1]
		return inner, inner != ""
	}
	for i, r := range inner {
		if !isIdentPart(r) || (i == 0 && !isIdentStart(r)) {
			return "", false
		}
	}
	return inner, true
}

func unescapeDart(body string) string {
	replacer := strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\$`, `$`, `\\`, `\`, `\n`, "\n", `\t`, "\t")
	return replacer.Replace(body)
}

// closureParams extracts declared parameter names from "(a, b) { ... }".
func closureParams(text string) []string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "(") {
		return nil
	}
	end := strings.Index(t, ")")
	if end <= 1 {
		return nil
	}
	var params []string
	for _, part := range strings.Split(t[1:end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Drop a leading type annotation: "String value" -> "value".
		fields := strings.Fields(part)
		params = append(params, fields[len(fields)-1])
	}
	return params
}

// literalProp folds a Dart literal into a primitive PropValue.
func literalProp(expr string) ir.PropValue {
	return literalPropScoped(expr, nil)
}

func literalPropScoped(expr string, scope map[string]bool) ir.PropValue {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "":
		return ir.Null()
	case "null":
		return ir.Null()
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	case "[]", "const []":
		return ir.List()
	case "{}", "const {}":
		return ir.Map(map[string]ir.PropValue{})
	}
	if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return ir.Int(i)
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return ir.Dec(f)
	}
	if len(expr) >= 2 && (expr[0] == '\'' || expr[0] == '"') && expr[len(expr)-1] == expr[0] {
		return ir.Str(unescapeDart(expr[1 : len(expr)-1]))
	}
	if scope != nil && scope[expr] {
		return ir.StateRef(expr)
	}
	return ir.Expr(expr)
}

// dartTypeToSem maps a Dart type annotation to the IR type lattice.
func dartTypeToSem(dartType string, nullable bool) ir.SemType {
	var t ir.SemType
	base := dartType
	if idx := strings.Index(base, "<"); idx >= 0 {
		base = base[:idx]
	}
	switch base {
	case "int":
		t = ir.TypeInteger
	case "double", "num":
		t = ir.TypeDecimal
	case "String":
		t = ir.TypeString
	case "bool":
		t = ir.TypeBoolean
	case "List":
		elem := elemType(dartType)
		t = ir.SemType{Kind: "list", Elem: &elem}
	case "Map":
		key, elem := mapTypes(dartType)
		t = ir.SemType{Kind: "map", Key: &key, Elem: &elem}
	default:
		t = ir.TypeUnknown
	}
	t.Nullable = nullable
	return t
}

func elemType(dartType string) ir.SemType {
	open := strings.Index(dartType, "<")
	closeIdx := strings.LastIndex(dartType, ">")
	if open < 0 || closeIdx <= open {
		return ir.TypeUnknown
	}
	return dartTypeToSem(strings.TrimSpace(dartType[open+1:closeIdx]), false)
}

func mapTypes(dartType string) (ir.SemType, ir.SemType) {
	open := strings.Index(dartType, "<")
	closeIdx := strings.LastIndex(dartType, ">")
	if open < 0 || closeIdx <= open {
		return ir.TypeUnknown, ir.TypeUnknown
	}
	parts := strings.SplitN(dartType[open+1:closeIdx], ",", 2)
	if len(parts) != 2 {
		return ir.TypeUnknown, ir.TypeUnknown
	}
	return dartTypeToSem(strings.TrimSpace(parts[0]), false),
		dartTypeToSem(strings.TrimSpace(parts[1]), false)
}

// lowerPlatformChain lowers a Platform.isX if/else chain to a platform code
// block tagged with Dart payloads.
func (l *lowerer) lowerPlatformChain(chain PlatformChain) {
	if l.doc.Platform == nil {
		l.doc.Platform = &ir.PlatformSchema{}
	}
	block := ir.PlatformCodeBlock{ID: fmt.Sprintf("pb%d", l.blockSeq)}
	l.blockSeq++

	for _, b := range chain.Branches {
		tag, ok := bridge.PlatformForDartPredicate(strings.TrimSpace(b.Predicate))
		if !ok {
			block.Warnings = append(block.Warnings,
				fmt.Sprintf("unrecognized platform predicate %q", b.Predicate))
			continue
		}
		block.Implementations = append(block.Implementations, ir.PlatformImplementation{
			Platforms: []string{tag},
			Code:      ir.CodePayload{Language: "dart", Source: b.Code},
		})
	}
	if chain.HasElse {
		block.Fallback = &ir.CodePayload{Language: "dart", Source: chain.Else}
	} else {
		block.Warnings = append(block.Warnings, "platform conditional has no else branch")
		l.addDiagnostic("warning", chain.Line, 0, "platform conditional has no else branch", "")
	}
	l.doc.Platform.Blocks = append(l.doc.Platform.Blocks, block)
}
