package dart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lumora-labs/lumora-core/coreengine/bridge"
	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// EmitOptions is the optimization flag set of the back-end. Disabling any
// flag still produces valid source.
type EmitOptions struct {
	StripDebug    bool `json:"stripDebug"`
	ConstQualify  bool `json:"constQualify"`
	DedupeImports bool `json:"dedupeImports"`
	Format        bool `json:"format"`
}

// DefaultEmitOptions enables every optimization.
func DefaultEmitOptions() EmitOptions {
	return EmitOptions{StripDebug: true, ConstQualify: true, DedupeImports: true, Format: true}
}

// Emitter generates Dart source from an IR.
type Emitter struct {
	opts EmitOptions
}

// NewEmitter creates a Dart back-end with the given flags.
func NewEmitter(opts EmitOptions) *Emitter {
	return &Emitter{opts: opts}
}

// Emit renders the whole IR as one Dart source unit.
func (e *Emitter) Emit(doc *ir.IR) (string, error) {
	var body strings.Builder

	for _, rootID := range doc.Roots {
		root := doc.Nodes[rootID]
		if root == nil {
			return "", fmt.Errorf("emit: missing root node %q", rootID)
		}
		if err := e.emitComponent(&body, doc, root); err != nil {
			return "", err
		}
		body.WriteString("\n")
	}

	if doc.Navigation != nil {
		e.emitNavigation(&body, doc.Navigation)
	}
	if len(doc.Animations) > 0 {
		e.emitAnimations(&body, doc.Animations)
	}
	if doc.Network != nil {
		e.emitNetwork(&body, doc.Network)
	}

	var imports strings.Builder
	imports.WriteString("import 'package:flutter/material.dart';\n")
	if doc.Platform != nil && len(doc.Platform.Blocks) > 0 {
		imports.WriteString("import 'dart:io' show Platform;\n")
	}

	out := imports.String() + "\n" + body.String()
	if e.opts.Format {
		out = strings.TrimRight(out, "\n") + "\n"
	}
	return out, nil
}

// stateful reports whether the IR carries mutable local state, which selects
// the StatefulWidget pattern.
func stateful(doc *ir.IR) bool {
	if doc.State == nil {
		return false
	}
	for _, v := range doc.State.Variables {
		if v.ContextKey == "" {
			return true
		}
	}
	return false
}

func (e *Emitter) emitComponent(w *strings.Builder, doc *ir.IR, root *ir.Node) error {
	if stateful(doc) {
		return e.emitStateful(w, doc, root)
	}
	return e.emitStateless(w, doc, root)
}

func (e *Emitter) emitStateless(w *strings.Builder, doc *ir.IR, root *ir.Node) error {
	name := root.Kind
	fmt.Fprintf(w, "class %s extends StatelessWidget {\n", name)
	e.emitCtorAndFields(w, doc, name)
	w.WriteString("  @override\n  Widget build(BuildContext context) {\n")
	e.emitPlatformBlocks(w, doc)
	w.WriteString("    return ")
	e.emitTree(w, doc, buildTarget(doc, root), 2)
	w.WriteString(";\n  }\n}\n")
	return nil
}

// buildTarget resolves the widget expression a component's build method
// returns: its single child, or a synthetic grouping when it has several.
func buildTarget(doc *ir.IR, root *ir.Node) *ir.Node {
	if len(root.Children) == 1 {
		if child := doc.Nodes[root.Children[0]]; child != nil {
			return child
		}
	}
	if len(root.Children) > 1 {
		return &ir.Node{Kind: ir.KindView, Children: root.Children}
	}
	return &ir.Node{Kind: ir.KindView}
}

func (e *Emitter) emitStateful(w *strings.Builder, doc *ir.IR, root *ir.Node) error {
	name := root.Kind
	fmt.Fprintf(w, "class %s extends StatefulWidget {\n", name)
	e.emitCtorAndFields(w, doc, name)
	fmt.Fprintf(w, "  @override\n  State<%s> createState() => _%sState();\n}\n\n", name, name)

	fmt.Fprintf(w, "class _%sState extends State<%s> {\n", name, name)

	// State fields.
	for _, v := range doc.State.Variables {
		if v.ContextKey != "" {
			continue
		}
		fmt.Fprintf(w, "  %s %s = %s;\n", semToDartType(v.Type), v.Name, e.literal(v.Initial))
	}
	w.WriteString("\n")

	// Setter methods carry the hook setter names across dialects.
	for _, v := range doc.State.Variables {
		if v.Setter == "" || v.ContextKey != "" {
			continue
		}
		fmt.Fprintf(w, "  void %s(%s value) {\n    setState(() { %s = value; });\n  }\n\n",
			v.Setter, semToDartType(v.Type), v.Name)
	}

	// Lifecycle effects carried from the other dialect are flagged for
	// review rather than transliterated.
	e.emitLifecycle(w, root)

	// Preserved opaque helpers reproduce verbatim.
	for _, name := range ir.SortedKeys(doc.Metadata.Helpers) {
		helper := doc.Metadata.Helpers[name]
		if strings.HasPrefix(helper, "void ") {
			fmt.Fprintf(w, "  %s\n\n", helper)
		}
	}

	w.WriteString("  @override\n  Widget build(BuildContext context) {\n")
	e.emitPlatformBlocks(w, doc)
	w.WriteString("    return ")
	e.emitTree(w, doc, buildTarget(doc, root), 2)
	w.WriteString(";\n  }\n}\n")
	return nil
}

func (e *Emitter) emitCtorAndFields(w *strings.Builder, doc *ir.IR, name string) {
	widget := doc.Metadata.CustomWidgets[name]
	if widget == nil || len(widget.Params) == 0 {
		fmt.Fprintf(w, "  const %s({super.key});\n\n", name)
		return
	}
	parts := []string{"super.key"}
	for _, p := range widget.Params {
		switch {
		case p.Required:
			parts = append(parts, "required this."+p.Name)
		case p.Default != "":
			parts = append(parts, "this."+p.Name+" = "+p.Default)
		default:
			parts = append(parts, "this."+p.Name)
		}
	}
	fmt.Fprintf(w, "  const %s({%s});\n\n", name, strings.Join(parts, ", "))
	for _, p := range widget.Params {
		typ := p.Type
		if typ == "" {
			typ = "dynamic"
		}
		fmt.Fprintf(w, "  final %s %s;\n", typ, p.Name)
	}
	w.WriteString("\n")
}

func (e *Emitter) emitLifecycle(w *strings.Builder, root *ir.Node) {
	var mounts, unmounts []ir.EventBinding
	for _, ev := range root.Events {
		switch ev.Phase {
		case "mount", "update":
			mounts = append(mounts, ev)
		case "unmount":
			unmounts = append(unmounts, ev)
		}
	}
	if len(mounts) > 0 || len(unmounts) > 0 {
		w.WriteString("  @override\n  void initState() {\n    super.initState();\n")
		for _, ev := range mounts {
			fmt.Fprintf(w, "    // REVIEW: ported effect, verify manually.\n    // %s\n",
				strings.ReplaceAll(e.code(ev.Handler), "\n", "\n    // "))
		}
		for _, ev := range unmounts {
			fmt.Fprintf(w, "    // REVIEW: ported effect, verify manually.\n    // %s\n",
				strings.ReplaceAll(e.code(ev.Handler), "\n", "\n    // "))
		}
		w.WriteString("  }\n\n")
	}
	if len(unmounts) > 0 {
		w.WriteString("  @override\n  void dispose() {\n")
		for _, ev := range unmounts {
			fmt.Fprintf(w, "    // REVIEW: ported teardown, verify manually.\n    // %s\n",
				strings.ReplaceAll(ev.Cleanup, "\n", "\n    // "))
		}
		w.WriteString("    super.dispose();\n  }\n\n")
	}
}

// emitTree renders one node as a widget constructor expression.
func (e *Emitter) emitTree(w *strings.Builder, doc *ir.IR, n *ir.Node, depth int) {
	widget := bridge.DartWidget(n.Kind)
	indent := strings.Repeat("  ", depth)
	childIndent := strings.Repeat("  ", depth+1)

	if e.opts.ConstQualify && constEligible(n) {
		w.WriteString("const ")
	}

	// Text renders its content positionally.
	if n.Kind == ir.KindText {
		fmt.Fprintf(w, "Text(%s", e.textArg(n.Props["text"]))
		for _, key := range ir.SortedKeys(n.Props) {
			if key == "text" {
				continue
			}
			fmt.Fprintf(w, ", %s: %s", key, e.literal(n.Props[key]))
		}
		w.WriteString(")")
		return
	}

	var args []string

	// Button folds its title prop back into a Text child.
	titleChild := ""
	for _, key := range ir.SortedKeys(n.Props) {
		if n.Kind == ir.KindButton && key == "title" {
			titleChild = e.textArg(n.Props[key])
			continue
		}
		args = append(args, key+": "+e.literal(n.Props[key]))
	}

	for _, ev := range n.Events {
		if ev.Phase != "" {
			continue
		}
		args = append(args, bridge.DartEventParam(ev.Event)+": "+e.handler(ev, doc.State))
	}

	if titleChild != "" {
		childConst := ""
		if e.opts.ConstQualify && !strings.Contains(titleChild, "$") {
			childConst = "const "
		}
		args = append(args, "child: "+childConst+"Text("+titleChild+")")
	}

	if len(n.Children) > 0 {
		var sb strings.Builder
		sb.WriteString("children: [\n")
		for _, id := range n.Children {
			child := doc.Nodes[id]
			if child == nil {
				continue
			}
			sb.WriteString(childIndent + "  ")
			e.emitTree(&sb, doc, child, depth+2)
			sb.WriteString(",\n")
		}
		sb.WriteString(childIndent + "]")
		args = append(args, sb.String())
	}

	if len(args) == 0 {
		fmt.Fprintf(w, "%s()", widget)
		return
	}
	if len(args) == 1 && !strings.Contains(args[0], "\n") {
		fmt.Fprintf(w, "%s(%s)", widget, args[0])
		return
	}
	fmt.Fprintf(w, "%s(\n", widget)
	for _, arg := range args {
		fmt.Fprintf(w, "%s%s,\n", childIndent, arg)
	}
	fmt.Fprintf(w, "%s)", indent)
}

// constEligible reports whether a subtree is a compile-time constant: only
// Text nodes with literal props and no refs, events, animations or children.
func constEligible(n *ir.Node) bool {
	if len(n.Children) > 0 || len(n.Events) > 0 || len(n.Animations) > 0 {
		return false
	}
	for _, v := range n.Props {
		switch v.Kind {
		case ir.PropString, ir.PropInteger, ir.PropDecimal, ir.PropBoolean, ir.PropNull:
		default:
			return false
		}
	}
	return n.Kind == ir.KindText
}

// textArg renders the Text content argument.
func (e *Emitter) textArg(v ir.PropValue) string {
	switch v.Kind {
	case ir.PropStateRef, ir.PropEventRef:
		return "'$" + v.Ref + "'"
	case ir.PropExpr:
		return "'${" + v.Str + "}'"
	case ir.PropString:
		return dartQuote(v.Str)
	default:
		return dartQuote(e.literal(v))
	}
}

// handler renders an event handler: the hook setter-call pattern translates
// into a setState closure, Dart-native closures reproduce verbatim, and
// anything else is flagged for review.
func (e *Emitter) handler(ev ir.EventBinding, state *ir.StateDefinition) string {
	if translated, ok := bridge.SetterHandlerToDart(ev.Handler, state); ok {
		return e.code(translated)
	}
	h := strings.TrimSpace(ev.Handler)
	if strings.HasPrefix(h, "(") && strings.Contains(h, "{") && !strings.Contains(h, "=>") {
		return e.code(h)
	}
	return fmt.Sprintf("() { /* REVIEW: untranslated handler: %s */ }",
		strings.ReplaceAll(h, "*/", "*\\/"))
}

// literal renders a PropValue as a Dart expression.
func (e *Emitter) literal(v ir.PropValue) string {
	switch v.Kind {
	case ir.PropString:
		return dartQuote(v.Str)
	case ir.PropInteger:
		return fmt.Sprintf("%d", v.Int)
	case ir.PropDecimal:
		return strconv.FormatFloat(v.Dec, 'g', -1, 64)
	case ir.PropBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case ir.PropNull:
		return "null"
	case ir.PropStateRef, ir.PropEventRef:
		return v.Ref
	case ir.PropExpr:
		return v.Str
	case ir.PropList:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = e.literal(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ir.PropMap:
		parts := make([]string, 0, len(v.Entries))
		for _, k := range ir.SortedKeys(v.Entries) {
			parts = append(parts, dartQuote(k)+": "+e.literal(v.Entries[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ir.PropPlatformMap:
		return e.platformSelect(v)
	}
	return "null"
}

// platformSelect renders a platform map as a nested conditional over the
// platform predicates.
func (e *Emitter) platformSelect(v ir.PropValue) string {
	fallback := "null"
	if v.Fallback != nil {
		fallback = e.literal(*v.Fallback)
	}
	expr := fallback
	keys := ir.SortedKeys(v.Platforms)
	for i := len(keys) - 1; i >= 0; i-- {
		tag := keys[i]
		expr = fmt.Sprintf("%s ? %s : %s",
			bridge.DartPlatformPredicate(tag), e.literal(v.Platforms[tag]), expr)
	}
	return expr
}

// emitPlatformBlocks renders dispatch chains over the boolean predicates.
func (e *Emitter) emitPlatformBlocks(w *strings.Builder, doc *ir.IR) {
	if doc.Platform == nil {
		return
	}
	for _, block := range doc.Platform.Blocks {
		if len(block.Implementations) == 0 {
			if block.Fallback != nil {
				fmt.Fprintf(w, "    %s\n", e.code(block.Fallback.Source))
			}
			continue
		}
		for i, impl := range block.Implementations {
			keyword := "if"
			if i > 0 {
				keyword = "} else if"
			}
			conds := make([]string, len(impl.Platforms))
			for j, tag := range impl.Platforms {
				conds[j] = bridge.DartPlatformPredicate(tag)
			}
			fmt.Fprintf(w, "    %s (%s) {\n      %s\n", keyword, strings.Join(conds, " || "), e.code(impl.Code.Source))
		}
		if block.Fallback != nil {
			fmt.Fprintf(w, "    } else {\n      %s\n    }\n", e.code(block.Fallback.Source))
		} else {
			w.WriteString("    } else {\n      // WARNING: no fallback branch declared for this platform dispatch\n    }\n")
		}
	}
}

func (e *Emitter) emitNavigation(w *strings.Builder, nav *ir.NavigationSchema) {
	w.WriteString("final Map<String, WidgetBuilder> namedRoutes = <String, WidgetBuilder>{\n")
	for _, r := range nav.Routes {
		if len(bridge.CompileRoute(r.Path).Params()) > 0 {
			continue // parameterized routes dispatch through onGenerateRoute
		}
		fmt.Fprintf(w, "  '%s': (context) => %s(),\n", r.Path, r.Component)
	}
	w.WriteString("};\n\n")

	w.WriteString("Route<dynamic>? onGenerateRoute(RouteSettings settings) {\n")
	w.WriteString("  final name = settings.name ?? '';\n")
	for _, r := range nav.Routes {
		pattern := bridge.CompileRoute(r.Path)
		params := pattern.Params()
		if len(params) == 0 {
			continue
		}
		fmt.Fprintf(w, "  if (matchRoute('%s', name) != null) {\n", r.Path)
		fmt.Fprintf(w, "    final params = matchRoute('%s', name)!;\n", r.Path)
		builder := bridge.DartTransition("platform-default")
		if r.Transition != nil {
			builder = bridge.DartTransition(r.Transition.Kind)
		}
		argList := make([]string, len(params))
		for i, p := range params {
			argList[i] = fmt.Sprintf("%s: params['%s']!", p, p)
		}
		fmt.Fprintf(w, "    return buildTransition(%q, (context) => %s(%s));\n",
			builder, r.Component, strings.Join(argList, ", "))
		w.WriteString("  }\n")
	}
	w.WriteString("  return null;\n}\n\n")

	for _, g := range bridge.OrderGuards(nav.Guards) {
		fmt.Fprintf(w, "// Guard %s runs in the %s phase (priority %d).\n", g.Name, g.Phase, g.Priority)
		fmt.Fprintf(w, "final %sGuard = NavigationGuard(%q, %d, %s);\n\n",
			g.Name, g.Phase, g.Priority, g.Handler)
	}
	if nav.InitialRoute != "" {
		fmt.Fprintf(w, "const String initialRoute = '%s';\n\n", nav.InitialRoute)
	}
}

func (e *Emitter) emitAnimations(w *strings.Builder, animations []*ir.AnimationSchema) {
	sorted := make([]*ir.AnimationSchema, len(animations))
	copy(sorted, animations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, a := range sorted {
		ident := dartIdent(a.ID)
		fmt.Fprintf(w, "AnimationController build%sController(TickerProvider vsync) {\n", dartTitle(ident))
		fmt.Fprintf(w, "  final controller = AnimationController(\n    vsync: vsync,\n    duration: const Duration(milliseconds: %d),\n  );\n", a.Duration)
		fmt.Fprintf(w, "  // curve: %s\n", bridge.DartCurve(a.Easing))
		if a.Iterations == -1 {
			w.WriteString("  controller.repeat();\n")
		}
		w.WriteString("  return controller;\n}\n\n")
	}
}

func (e *Emitter) emitNetwork(w *strings.Builder, net *ir.NetworkSchema) {
	w.WriteString("class ApiClient {\n")
	fmt.Fprintf(w, "  static const String baseUrl = '%s';\n", net.BaseURL)
	if net.TimeoutMs > 0 {
		fmt.Fprintf(w, "  static const Duration timeout = Duration(milliseconds: %d);\n", net.TimeoutMs)
	}
	w.WriteString("\n")
	for _, ic := range bridge.OrderInterceptors(net.Interceptors) {
		fmt.Fprintf(w, "  // interceptor %s (%s, priority %d): %s\n", ic.ID, ic.Phase, ic.Priority, ic.Handler)
	}
	for _, ep := range net.Endpoints {
		params := make([]string, 0, len(ep.PathParams)+1)
		for _, p := range ep.PathParams {
			params = append(params, "String "+p)
		}
		if len(ep.Body) > 0 {
			params = append(params, "Map<String, dynamic> body")
		}
		path := ep.Path
		for _, p := range ep.PathParams {
			path = strings.ReplaceAll(path, ":"+p, "$"+p)
		}
		fmt.Fprintf(w, "  Future<dynamic> %s(%s) async {\n", dartIdent(ep.ID), strings.Join(params, ", "))
		fmt.Fprintf(w, "    return request('%s', '$baseUrl%s'", ep.Method, path)
		if len(ep.Body) > 0 {
			w.WriteString(", body: body")
		}
		if ep.RequireAuth {
			w.WriteString(", auth: true")
		}
		if ep.Retry != nil {
			fmt.Fprintf(w, ", retries: %d", ep.Retry.MaxAttempts)
		}
		w.WriteString(");\n  }\n")
	}
	w.WriteString("}\n\n")
}

// code applies strip-debug to opaque payloads.
func (e *Emitter) code(src string) string {
	if !e.opts.StripDebug {
		return src
	}
	var kept []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "print(") || strings.HasPrefix(trimmed, "debugPrint(") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func dartQuote(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`, "$", `\$`)
	return "'" + replacer.Replace(s) + "'"
}

// semToDartType renders an IR semantic type as a Dart type annotation.
func semToDartType(t ir.SemType) string {
	var base string
	switch t.Kind {
	case "integer":
		base = "int"
	case "decimal":
		base = "double"
	case "string":
		base = "String"
	case "boolean":
		base = "bool"
	case "list":
		elem := "dynamic"
		if t.Elem != nil {
			elem = semToDartType(*t.Elem)
		}
		base = "List<" + elem + ">"
	case "map":
		key, elem := "dynamic", "dynamic"
		if t.Key != nil {
			key = semToDartType(*t.Key)
		}
		if t.Elem != nil {
			elem = semToDartType(*t.Elem)
		}
		base = "Map<" + key + ", " + elem + ">"
	default:
		base = "dynamic"
	}
	if t.Nullable && base != "dynamic" {
		base += "?"
	}
	return base
}

func dartTitle(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func dartIdent(id string) string {
	var sb strings.Builder
	upper := false
	for i, r := range id {
		switch {
		case r == '-' || r == '.' || r == '/' || r == ':':
			upper = true
		case i == 0 && r >= '0' && r <= '9':
			sb.WriteByte('n')
			sb.WriteRune(r)
		default:
			if upper {
				sb.WriteString(strings.ToUpper(string(r)))
				upper = false
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
