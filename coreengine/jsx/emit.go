package jsx

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
	ConstQualify  bool `json:"constQualify"` // no-op for TSX, honored by the Dart emitter
	DedupeImports bool `json:"dedupeImports"`
	Format        bool `json:"format"`
}

// DefaultEmitOptions enables every optimization.
func DefaultEmitOptions() EmitOptions {
	return EmitOptions{StripDebug: true, ConstQualify: true, DedupeImports: true, Format: true}
}

// Emitter generates TSX source from an IR.
type Emitter struct {
	opts EmitOptions
}

// NewEmitter creates a JSX back-end with the given flags.
func NewEmitter(opts EmitOptions) *Emitter {
	return &Emitter{opts: opts}
}

// Emit renders the whole IR as one TSX source unit.
func (e *Emitter) Emit(doc *ir.IR) (string, error) {
	var body strings.Builder
	imports := newImportSet(e.opts.DedupeImports)
	imports.add("react", "React")

	// Type declarations regenerate ahead of the components.
	for _, name := range ir.SortedKeys(doc.Metadata.TypeDefinitions) {
		body.WriteString(doc.Metadata.TypeDefinitions[name])
		body.WriteString("\n\n")
	}

	for _, rootID := range doc.Roots {
		root := doc.Nodes[rootID]
		if root == nil {
			return "", fmt.Errorf("emit: missing root node %q", rootID)
		}
		if err := e.emitComponent(&body, imports, doc, root); err != nil {
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

	out := imports.render() + "\n" + body.String()
	if e.opts.Format {
		out = strings.TrimRight(out, "\n") + "\n"
	}
	return out, nil
}

func (e *Emitter) emitComponent(w *strings.Builder, imports *importSet, doc *ir.IR, root *ir.Node) error {
	params := ""
	if widget := doc.Metadata.CustomWidgets[root.Kind]; widget != nil {
		names := make([]string, 0, len(widget.Params))
		for _, p := range widget.Params {
			if p.Default != "" {
				names = append(names, p.Name+" = "+p.Default)
			} else {
				names = append(names, p.Name)
			}
		}
		params = "{ " + strings.Join(names, ", ") + " }"
	} else if root.Meta != nil && root.Meta.PropsParam != "" {
		params = root.Meta.PropsParam
	}
	if root.Meta != nil && root.Meta.PropsType != "" {
		params += ": " + root.Meta.PropsType
	}

	fmt.Fprintf(w, "function %s(%s) {\n", root.Kind, params)

	// State hooks.
	if doc.State != nil {
		for _, v := range doc.State.Variables {
			if v.ContextKey != "" {
				imports.add("react", "useContext")
				fmt.Fprintf(w, "  const %s = useContext(%s);\n", v.Name, v.ContextKey)
				continue
			}
			imports.add("react", "useState")
			setter := v.Setter
			if setter == "" {
				setter = "set" + strings.ToUpper(v.Name[:1]) + v.Name[1:]
			}
			fmt.Fprintf(w, "  const [%s, %s] = useState(%s);\n", v.Name, setter, e.literal(v.Initial))
		}
	}

	// Refs and helpers.
	if root.Meta != nil {
		for _, ref := range root.Meta.Refs {
			imports.add("react", "useRef")
			fmt.Fprintf(w, "  const %s = useRef(null);\n", ref)
		}
	}
	for _, name := range ir.SortedKeys(doc.Metadata.Helpers) {
		call := doc.Metadata.Helpers[name]
		switch {
		case strings.HasPrefix(call, HookMemo):
			imports.add("react", "useMemo")
			fmt.Fprintf(w, "  const %s = %s;\n", name, call)
		case strings.HasPrefix(call, HookCallback):
			imports.add("react", "useCallback")
			fmt.Fprintf(w, "  const %s = %s;\n", name, call)
		default:
			// Helpers carried from the other dialect stay opaque and are
			// flagged for manual porting.
			fmt.Fprintf(w, "  // REVIEW: untranslated helper %s: %s\n",
				name, strings.ReplaceAll(call, "\n", " "))
		}
	}

	// Lifecycle effects.
	for _, ev := range root.Events {
		if ev.Phase == "" {
			continue
		}
		imports.add("react", "useEffect")
		body := e.code(ev.Handler)
		switch ev.Phase {
		case "unmount":
			fmt.Fprintf(w, "  useEffect(() => {\n    %s\n    return %s;\n  }, []);\n", body, ev.Cleanup)
		case "mount":
			fmt.Fprintf(w, "  useEffect(() => {\n    %s\n  }, []);\n", body)
		default:
			fmt.Fprintf(w, "  useEffect(() => {\n    %s\n  });\n", body)
		}
	}

	// Platform dispatch blocks.
	if doc.Platform != nil {
		imports.add("react-native", "Platform")
		for _, block := range doc.Platform.Blocks {
			e.emitPlatformBlock(w, block)
		}
	}

	// JSX tree.
	w.WriteString("  return (\n")
	if len(root.Children) == 1 {
		e.emitNode(w, imports, doc, doc.Nodes[root.Children[0]], 2)
	} else {
		w.WriteString("    <>\n")
		for _, id := range root.Children {
			e.emitNode(w, imports, doc, doc.Nodes[id], 3)
		}
		w.WriteString("    </>\n")
	}
	w.WriteString("  );\n}\n")
	return nil
}

func (e *Emitter) emitNode(w *strings.Builder, imports *importSet, doc *ir.IR, n *ir.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if ir.IsCoreKind(n.Kind) {
		imports.add("react-native", n.Kind)
	}

	var attrs []string
	for _, key := range ir.SortedKeys(n.Props) {
		attrs = append(attrs, key+"="+e.attrValue(n.Props[key]))
	}
	for _, ev := range n.Events {
		if ev.Phase != "" {
			continue // lifecycle bindings render as effects on the component
		}
		handler := ev.Handler
		if translated, ok := bridge.SetterHandlerToJSX(handler, doc.State); ok {
			handler = translated
		}
		attrs = append(attrs, "on"+strings.ToUpper(ev.Event[:1])+ev.Event[1:]+"={"+e.code(handler)+"}")
	}
	attrText := ""
	if len(attrs) > 0 {
		attrText = " " + strings.Join(attrs, " ")
	}

	if len(n.Children) == 0 {
		fmt.Fprintf(w, "%s<%s%s />\n", indent, n.Kind, attrText)
		return
	}
	fmt.Fprintf(w, "%s<%s%s>\n", indent, n.Kind, attrText)
	for _, id := range n.Children {
		e.emitNode(w, imports, doc, doc.Nodes[id], depth+1)
	}
	fmt.Fprintf(w, "%s</%s>\n", indent, n.Kind)
}

// attrValue renders a PropValue as a JSX attribute value.
func (e *Emitter) attrValue(v ir.PropValue) string {
	switch v.Kind {
	case ir.PropString:
		return strconv.Quote(v.Str)
	case ir.PropStateRef, ir.PropEventRef:
		return "{" + v.Ref + "}"
	case ir.PropExpr:
		return "{" + v.Str + "}"
	default:
		return "{" + e.literal(v) + "}"
	}
}

// literal renders a PropValue as a TS expression.
func (e *Emitter) literal(v ir.PropValue) string {
	switch v.Kind {
	case ir.PropString:
		return strconv.Quote(v.Str)
	case ir.PropInteger:
		return strconv.FormatInt(v.Int, 10)
	case ir.PropDecimal:
		return strconv.FormatFloat(v.Dec, 'g', -1, 64)
	case ir.PropBoolean:
		return strconv.FormatBool(v.Bool)
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
			parts = append(parts, k+": "+e.literal(v.Entries[k]))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case ir.PropPlatformMap:
		parts := make([]string, 0, len(v.Platforms)+1)
		for _, k := range ir.SortedKeys(v.Platforms) {
			parts = append(parts, k+": "+e.literal(v.Platforms[k]))
		}
		if v.Fallback != nil {
			parts = append(parts, "default: "+e.literal(*v.Fallback))
		}
		return "Platform.select({ " + strings.Join(parts, ", ") + " })"
	}
	return "undefined"
}

// emitPlatformBlock renders the dispatch chain keyed on Platform.OS.
// A missing fallback gets a warning comment and a no-op branch.
func (e *Emitter) emitPlatformBlock(w *strings.Builder, block ir.PlatformCodeBlock) {
	if len(block.Implementations) == 0 {
		if block.Fallback != nil {
			fmt.Fprintf(w, "  %s\n", e.code(block.Fallback.Source))
		}
		return
	}
	for i, impl := range block.Implementations {
		keyword := "if"
		if i > 0 {
			keyword = "} else if"
		}
		conds := make([]string, len(impl.Platforms))
		for j, tag := range impl.Platforms {
			conds[j] = fmt.Sprintf("Platform.OS === %q", tag)
		}
		fmt.Fprintf(w, "  %s (%s) {\n    %s\n", keyword, strings.Join(conds, " || "), e.code(impl.Code.Source))
	}
	if block.Fallback != nil {
		fmt.Fprintf(w, "  } else {\n    %s\n  }\n", e.code(block.Fallback.Source))
	} else {
		w.WriteString("  } else {\n    // WARNING: no fallback branch declared for this platform dispatch\n  }\n")
	}
}

func (e *Emitter) emitNavigation(w *strings.Builder, nav *ir.NavigationSchema) {
	w.WriteString("export const routes = [\n")
	for _, r := range nav.Routes {
		fmt.Fprintf(w, "  { name: %q, path: %q, component: %s", r.Name, r.Path, r.Component)
		if r.Transition != nil {
			fmt.Fprintf(w, ", transition: %q", r.Transition.Kind)
		}
		w.WriteString(" },\n")
	}
	w.WriteString("];\n")
	if nav.InitialRoute != "" {
		fmt.Fprintf(w, "export const initialRoute = %q;\n", nav.InitialRoute)
	}
	for _, g := range nav.Guards {
		fmt.Fprintf(w, "export const %sGuard = { phase: %q, priority: %d, handler: %s };\n",
			g.Name, g.Phase, g.Priority, g.Handler)
	}
	w.WriteString("\n")
}

func (e *Emitter) emitAnimations(w *strings.Builder, animations []*ir.AnimationSchema) {
	sorted := make([]*ir.AnimationSchema, len(animations))
	copy(sorted, animations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, a := range sorted {
		fmt.Fprintf(w, "export const %s = {\n  type: %q,\n  duration: %d,\n  easing: %q,\n",
			animIdent(a.ID), a.Kind, a.Duration, easingExpr(a.Easing))
		if a.Delay > 0 {
			fmt.Fprintf(w, "  delay: %d,\n", a.Delay)
		}
		if a.Iterations != 0 {
			fmt.Fprintf(w, "  iterations: %d,\n", a.Iterations)
		}
		if a.Spring != nil {
			fmt.Fprintf(w, "  spring: { mass: %v, stiffness: %v, damping: %v, velocity: %v },\n",
				a.Spring.Mass, a.Spring.Stiffness, a.Spring.Damping, a.Spring.InitialVelocity)
		}
		if a.Decay != nil {
			fmt.Fprintf(w, "  decay: { velocity: %v, deceleration: %v },\n",
				a.Decay.InitialVelocity, a.Decay.Deceleration)
		}
		if len(a.Properties) > 0 {
			w.WriteString("  properties: [\n")
			for _, p := range a.Properties {
				fmt.Fprintf(w, "    { name: %q, from: %s, to: %s },\n", p.Name, e.literal(p.From), e.literal(p.To))
			}
			w.WriteString("  ],\n")
		}
		w.WriteString("};\n\n")
	}
}

func (e *Emitter) emitNetwork(w *strings.Builder, net *ir.NetworkSchema) {
	fmt.Fprintf(w, "const apiBase = %q;\n", net.BaseURL)
	if net.TimeoutMs > 0 {
		fmt.Fprintf(w, "const apiTimeout = %d;\n", net.TimeoutMs)
	}
	// Interceptors lift into a pipeline at module init, in phase then
	// priority order.
	for _, ic := range bridge.OrderInterceptors(net.Interceptors) {
		fmt.Fprintf(w, "registerInterceptor(%q, %q, %s);\n", ic.Phase, ic.ID, ic.Handler)
	}
	for _, ep := range net.Endpoints {
		path := ep.Path
		args := append([]string{}, ep.PathParams...)
		for _, p := range ep.PathParams {
			path = strings.ReplaceAll(path, ":"+p, "${"+p+"}")
		}
		if len(ep.Body) > 0 {
			args = append(args, "body")
		}
		fmt.Fprintf(w, "export async function %s(%s) {\n", epIdent(ep.ID), strings.Join(args, ", "))
		fmt.Fprintf(w, "  return request(`${apiBase}%s`, { method: %q", path, ep.Method)
		if len(ep.Body) > 0 {
			w.WriteString(", body: JSON.stringify(body)")
		}
		if ep.RequireAuth {
			w.WriteString(", auth: true")
		}
		if ep.Retry != nil {
			fmt.Fprintf(w, ", retry: %d", ep.Retry.MaxAttempts)
		}
		w.WriteString(" });\n}\n")
	}
	w.WriteString("\n")
}

// code renders an opaque handler/code payload, honoring strip-debug.
func (e *Emitter) code(src string) string {
	if !e.opts.StripDebug {
		return src
	}
	var kept []string
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "console.log(") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// =============================================================================
// Imports
// =============================================================================

type importSet struct {
	dedupe  bool
	modules map[string][]string
	order   []string
}

func newImportSet(dedupe bool) *importSet {
	return &importSet{dedupe: dedupe, modules: map[string][]string{}}
}

func (s *importSet) add(module, name string) {
	if _, ok := s.modules[module]; !ok {
		s.order = append(s.order, module)
	}
	if s.dedupe {
		for _, existing := range s.modules[module] {
			if existing == name {
				return
			}
		}
	}
	s.modules[module] = append(s.modules[module], name)
}

func (s *importSet) render() string {
	var sb strings.Builder
	for _, module := range s.order {
		names := s.modules[module]
		if module == "react" && len(names) > 0 && names[0] == "React" {
			rest := names[1:]
			if len(rest) == 0 {
				fmt.Fprintf(&sb, "import React from 'react';\n")
			} else {
				fmt.Fprintf(&sb, "import React, { %s } from 'react';\n", strings.Join(rest, ", "))
			}
			continue
		}
		fmt.Fprintf(&sb, "import { %s } from '%s';\n", strings.Join(names, ", "), module)
	}
	return sb.String()
}

// easingExpr renders an easing tag for the declarative animation binding.
func easingExpr(easing ir.Easing) string {
	if easing.Tag == ir.EaseCubicBezier && easing.Bezier != nil {
		b := easing.Bezier
		return fmt.Sprintf("cubic-bezier(%g, %g, %g, %g)", b[0], b[1], b[2], b[3])
	}
	return easing.Tag
}

func animIdent(id string) string {
	return sanitizeIdent(id)
}

func epIdent(id string) string {
	return sanitizeIdent(id)
}

func sanitizeIdent(id string) string {
	var sb strings.Builder
	upper := false
	for i, r := range id {
		switch {
		case r == '-' || r == '.' || r == '/' || r == ':':
			upper = true
		case i == 0 && r >= '0' && r <= '9':
			sb.WriteByte('_')
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
