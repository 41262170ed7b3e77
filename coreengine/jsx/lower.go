package jsx

import (
	"fmt"
	"strconv"
	"strings"

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

// Frontend lowers JSX/TS source units to IR. One instance per pipeline
// worker; the subtree cache is instance-local and cleared on Dispose.
type Frontend struct {
	logger  Logger
	subtree *cache.SubtreeCache
}

// NewFrontend creates a JSX front-end.
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

// Lower parses and lowers one source unit. Recoverable problems become
// diagnostics on the produced IR; only IO-level and invariant failures
// return an error. Same input always produces the same IR byte-for-byte:
// nothing time- or randomness-dependent is stamped at lowering time.
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
		file:   file,
		src:    string(src),
		minter: ir.NewIDMinter(path),
		doc: &ir.IR{
			SchemaVersion: ir.SchemaVersion,
			Metadata: ir.Metadata{
				SourceDialect: ir.DialectJSX,
				SourcePath:    path,
			},
			Nodes: map[string]*ir.Node{},
		},
	}

	for name, decl := range file.Types {
		if l.doc.Metadata.TypeDefinitions == nil {
			l.doc.Metadata.TypeDefinitions = map[string]string{}
		}
		l.doc.Metadata.TypeDefinitions[name] = decl
	}
	for _, perr := range file.Errors {
		l.addDiagnostic("error", perr.Line, perr.Column, perr.Message, perr.Excerpt)
	}

	for _, comp := range file.Components {
		l.lowerComponent(comp)
	}

	if err := l.doc.Validate(); err != nil {
		return nil, err
	}
	f.subtree.Put(key, l.doc)

	f.logger.Debug("jsx_lowered",
		"path", path,
		"components", len(file.Components),
		"nodes", len(l.doc.Nodes),
		"diagnostics", len(l.doc.Metadata.Diagnostics),
	)
	return l.doc, nil
}

type lowerer struct {
	file     *SourceFile
	src      string
	minter   *ir.IDMinter
	doc      *ir.IR
	blockSeq int
	// scope is the in-scope state variable set of the component being
	// lowered.
	scope map[string]bool
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
	observability.RecordDiagnostic(string(ir.DialectJSX), severity)
}

// lowerComponent produces one top-level node whose kind is the component
// name, plus the component's state, effects and platform blocks.
func (l *lowerer) lowerComponent(comp *ComponentDecl) {
	node := &ir.Node{
		ID:   l.minter.Mint(),
		Kind: comp.Name,
		Meta: &ir.NodeMeta{Line: comp.Line, Column: comp.Col},
	}
	if comp.PropsParam != "" {
		node.Meta.PropsParam = comp.PropsParam
	}
	if comp.PropsType != "" {
		node.Meta.PropsType = comp.PropsType
	}
	l.doc.Nodes[node.ID] = node
	l.doc.Roots = append(l.doc.Roots, node.ID)

	// Declared props register the component's parameter surface so the
	// opposite back-end can regenerate a matching definition.
	if len(comp.Params) > 0 {
		if l.doc.Metadata.CustomWidgets == nil {
			l.doc.Metadata.CustomWidgets = map[string]*ir.CustomWidget{}
		}
		w := &ir.CustomWidget{Name: comp.Name}
		for _, p := range comp.Params {
			w.Params = append(w.Params, ir.WidgetParam{Name: p.Name, Default: p.Default})
		}
		l.doc.Metadata.CustomWidgets[comp.Name] = w
	}

	l.scope = map[string]bool{}
	l.lowerHooks(comp, node)
	for _, chain := range comp.Platforms {
		l.lowerPlatformChain(chain)
	}
	if comp.Return != nil {
		if childID, ok := l.lowerJSXNode(comp.Return); ok {
			node.Children = append(node.Children, childID)
		}
	}
}

func (l *lowerer) lowerHooks(comp *ComponentDecl, node *ir.Node) {
	effectSeq := 0
	for _, h := range comp.Hooks {
		switch h.Kind {
		case HookState:
			initial := literalProp(h.Init)
			l.ensureState(ir.ScopeLocal)
			l.doc.State.Variables = append(l.doc.State.Variables, ir.StateVariable{
				Name:    h.Name,
				Type:    ir.InferType(initial),
				Initial: initial,
				Mutable: true,
				Setter:  h.Setter,
			})
			l.scope[h.Name] = true

		case HookEffect:
			phase := "update"
			switch {
			case h.Cleanup != "":
				phase = "unmount"
			case h.HasDeps && h.DepsText == "":
				phase = "mount"
			}
			node.Events = append(node.Events, ir.EventBinding{
				Event:   fmt.Sprintf("effect%d", effectSeq),
				Handler: h.Body,
				Phase:   phase,
				Cleanup: h.Cleanup,
			})
			effectSeq++

		case HookContext:
			l.ensureState(ir.ScopeLocal)
			l.doc.State.Variables = append(l.doc.State.Variables, ir.StateVariable{
				Name:       h.Name,
				Type:       ir.TypeUnknown,
				Initial:    ir.Null(),
				Mutable:    false,
				ContextKey: h.Init,
			})
			l.scope[h.Name] = true

		case HookRef:
			if node.Meta == nil {
				node.Meta = &ir.NodeMeta{}
			}
			node.Meta.Refs = append(node.Meta.Refs, h.Name)

		case HookMemo, HookCallback:
			if l.doc.Metadata.Helpers == nil {
				l.doc.Metadata.Helpers = map[string]string{}
			}
			l.doc.Metadata.Helpers[h.Name] = h.Kind + "(" + h.Init + ")"
			l.scope[h.Name] = true
		}
	}

	// Context-only state is globally scoped.
	if l.doc.State != nil {
		allGlobal := true
		for _, v := range l.doc.State.Variables {
			if v.ContextKey == "" {
				allGlobal = false
				break
			}
		}
		if allGlobal && len(l.doc.State.Variables) > 0 {
			l.doc.State.Scope = ir.ScopeGlobal
		}
	}
}

func (l *lowerer) ensureState(scope ir.StateScope) {
	if l.doc.State == nil {
		l.doc.State = &ir.StateDefinition{Scope: scope}
	}
}

// lowerJSXNode lowers one JSX tree node to an arena node, returning its id.
// Whitespace-only text children are discarded.
func (l *lowerer) lowerJSXNode(j *JSXNode) (string, bool) {
	switch j.Tag {
	case tagText:
		text := strings.TrimSpace(j.Text)
		if text == "" {
			return "", false
		}
		node := &ir.Node{
			ID:    l.minter.Mint(),
			Kind:  ir.KindText,
			Props: map[string]ir.PropValue{"text": ir.Str(text)},
			Meta:  &ir.NodeMeta{Line: j.Line, Column: j.Col},
		}
		l.doc.Nodes[node.ID] = node
		return node.ID, true

	case tagExpr:
		expr := strings.TrimSpace(j.Text)
		if expr == "" {
			return "", false
		}
		var value ir.PropValue
		if l.scope[expr] {
			value = ir.StateRef(expr)
		} else {
			value = ir.Expr(expr)
		}
		node := &ir.Node{
			ID:    l.minter.Mint(),
			Kind:  ir.KindText,
			Props: map[string]ir.PropValue{"text": value},
			Meta:  &ir.NodeMeta{Line: j.Line, Column: j.Col},
		}
		l.doc.Nodes[node.ID] = node
		return node.ID, true

	case tagUnknown:
		node := &ir.Node{
			ID:    l.minter.Mint(),
			Kind:  ir.KindUnknown,
			Props: map[string]ir.PropValue{"reason": ir.Str(j.Text)},
			Meta:  &ir.NodeMeta{Line: j.Line, Column: j.Col},
		}
		l.doc.Nodes[node.ID] = node
		return node.ID, true

	case tagFragment:
		// Fragments lower to a View grouping their children.
		node := &ir.Node{
			ID:   l.minter.Mint(),
			Kind: ir.KindView,
			Meta: &ir.NodeMeta{Line: j.Line, Column: j.Col},
		}
		l.doc.Nodes[node.ID] = node
		for _, child := range j.Children {
			if id, ok := l.lowerJSXNode(child); ok {
				node.Children = append(node.Children, id)
			}
		}
		return node.ID, true
	}

	node := &ir.Node{
		ID:   l.minter.Mint(),
		Kind: j.Tag,
		Meta: &ir.NodeMeta{Line: j.Line, Column: j.Col},
	}
	l.doc.Nodes[node.ID] = node

	for _, attr := range j.Attrs {
		if strings.HasPrefix(attr.Name, "on") && len(attr.Name) > 2 && attr.Expr {
			name := eventName(attr.Name)
			if node.Event(name) != nil {
				l.addDiagnostic("warning", j.Line, j.Col,
					fmt.Sprintf("duplicate handler for %q on <%s>", name, j.Tag), attr.Value)
				continue
			}
			node.Events = append(node.Events, ir.EventBinding{
				Event:   name,
				Handler: attr.Value,
				Params:  handlerParams(attr.Value),
				Async:   strings.HasPrefix(strings.TrimSpace(attr.Value), "async"),
			})
			continue
		}
		if node.Props == nil {
			node.Props = map[string]ir.PropValue{}
		}
		node.Props[attr.Name] = l.lowerAttrValue(attr)
	}

	for _, child := range j.Children {
		if id, ok := l.lowerJSXNode(child); ok {
			node.Children = append(node.Children, id)
		}
	}
	return node.ID, true
}

// lowerAttrValue applies the attribute lowering rules: string literals stay
// strings, braced identifiers resolve to state refs when in scope, literal
// expressions fold to primitives, anything else is preserved opaquely.
func (l *lowerer) lowerAttrValue(attr JSXAttr) ir.PropValue {
	if attr.Bare {
		return ir.Bool(true)
	}
	if !attr.Expr {
		return ir.Str(attr.Value)
	}
	expr := strings.TrimSpace(attr.Value)
	if l.scope[expr] {
		return ir.StateRef(expr)
	}
	return literalProp(expr)
}

// literalProp folds a literal expression into a primitive PropValue, or
// preserves it opaquely.
func literalProp(expr string) ir.PropValue {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "":
		return ir.Null()
	case "null", "undefined":
		return ir.Null()
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return ir.Int(i)
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return ir.Dec(f)
	}
	if len(expr) >= 2 && (expr[0] == '"' || expr[0] == '\'') && expr[len(expr)-1] == expr[0] {
		return ir.Str(expr[1 : len(expr)-1])
	}
	if expr == "[]" {
		return ir.List()
	}
	if expr == "{}" {
		return ir.Map(map[string]ir.PropValue{})
	}
	return ir.Expr(expr)
}

// eventName maps an on<Name> attribute to its IR event name: onPress ->
// press, onChangeText -> changeText.
func eventName(attr string) string {
	name := strings.TrimPrefix(attr, "on")
	if name == "" {
		return attr
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// handlerParams extracts declared parameter names by shallow pattern
// inspection: identifier lists pass through, destructured objects flatten.
func handlerParams(handler string) []string {
	h := strings.TrimSpace(handler)
	h = strings.TrimPrefix(h, "async")
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "(") {
		return nil
	}
	depth := 0
	end := -1
	for i, r := range h {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil
	}
	inner := h[1:end]
	if strings.TrimSpace(inner) == "" {
		return nil
	}
	var params []string
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if colon := strings.Index(part, ":"); colon >= 0 {
			part = strings.TrimSpace(part[:colon])
		}
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}
		for _, inner := range strings.Split(part, " ") {
			inner = strings.TrimSpace(strings.Trim(inner, ","))
			if inner != "" {
				params = append(params, inner)
			}
		}
	}
	return params
}

// lowerPlatformChain turns a parsed conditional chain into a platform code
// block. A negated single-tag comparison inverts into the fallback slot.
func (l *lowerer) lowerPlatformChain(chain PlatformChain) {
	if l.doc.Platform == nil {
		l.doc.Platform = &ir.PlatformSchema{}
	}
	block := ir.PlatformCodeBlock{
		ID: fmt.Sprintf("pb%d", l.blockSeq),
	}
	l.blockSeq++

	for _, b := range chain.Branches {
		if !ir.IsPlatformTag(b.Platform) {
			block.Warnings = append(block.Warnings,
				fmt.Sprintf("unknown platform tag %q", b.Platform))
			continue
		}
		if b.Negated {
			// !== "tag": the code runs everywhere but the tag; model as the
			// fallback with the tag getting the else-code (when present).
			if block.Fallback == nil {
				block.Fallback = &ir.CodePayload{Language: "typescript", Source: b.Code}
			}
			if chain.HasElse {
				block.Implementations = append(block.Implementations, ir.PlatformImplementation{
					Platforms: []string{b.Platform},
					Code:      ir.CodePayload{Language: "typescript", Source: chain.Else},
				})
			}
			continue
		}
		block.Implementations = append(block.Implementations, ir.PlatformImplementation{
			Platforms: []string{b.Platform},
			Code:      ir.CodePayload{Language: "typescript", Source: b.Code},
		})
	}
	if chain.HasElse && block.Fallback == nil {
		block.Fallback = &ir.CodePayload{Language: "typescript", Source: chain.Else}
	}
	if !chain.HasElse && block.Fallback == nil {
		block.Warnings = append(block.Warnings, "platform conditional has no else branch")
		l.addDiagnostic("warning", chain.Line, 0, "platform conditional has no else branch", "")
	}
	l.doc.Platform.Blocks = append(l.doc.Platform.Blocks, block)
}
