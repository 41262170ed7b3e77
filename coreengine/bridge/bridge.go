// Package bridge holds the semantic translations between the two surface
// dialects: widget vocabulary, state management, navigation, animation,
// network and platform constructs. Every mapping here is total over the IR's
// enumerated tags so the back-ends can emit with exhaustive switches.
package bridge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// =============================================================================
// Widget vocabulary
// =============================================================================

// kindToDart maps core IR kinds to their Flutter widget counterparts.
var kindToDart = map[string]string{
	ir.KindView:       "Column",
	ir.KindText:       "Text",
	ir.KindButton:     "ElevatedButton",
	ir.KindImage:      "Image",
	ir.KindScrollView: "SingleChildScrollView",
	ir.KindListView:   "ListView",
	ir.KindTextInput:  "TextField",
	ir.KindSwitch:     "Switch",
	ir.KindCheckbox:   "Checkbox",
	ir.KindRadio:      "Radio",
}

var dartToKind = invert(kindToDart)

// DartWidget returns the Flutter widget name for an IR kind. User-declared
// kinds pass through unchanged.
func DartWidget(kind string) string {
	if w, ok := kindToDart[kind]; ok {
		return w
	}
	return kind
}

// KindForDartWidget returns the IR kind for a Flutter widget name.
// Unrecognized widgets pass through as user-declared kinds.
func KindForDartWidget(widget string) string {
	if k, ok := dartToKind[widget]; ok {
		return k
	}
	return widget
}

// =============================================================================
// Events
// =============================================================================

// eventToDart maps IR event names to Flutter callback parameters.
var eventToDart = map[string]string{
	"press":      "onPressed",
	"change":     "onChanged",
	"changeText": "onChanged",
	"submit":     "onSubmitted",
	"longPress":  "onLongPress",
	"focus":      "onFocusChange",
}

var dartToEvent = map[string]string{
	"onPressed":     "press",
	"onChanged":     "change",
	"onSubmitted":   "submit",
	"onLongPress":   "longPress",
	"onFocusChange": "focus",
	"onTap":         "press",
}

// DartEventParam returns the Flutter callback name for an IR event.
func DartEventParam(event string) string {
	if cb, ok := eventToDart[event]; ok {
		return cb
	}
	return "on" + strings.ToUpper(event[:1]) + event[1:]
}

// EventForDartParam returns the IR event name for a Flutter callback.
func EventForDartParam(param string) (string, bool) {
	if ev, ok := dartToEvent[param]; ok {
		return ev, true
	}
	if strings.HasPrefix(param, "on") && len(param) > 2 {
		rest := param[2:]
		return strings.ToLower(rest[:1]) + rest[1:], true
	}
	return "", false
}

// =============================================================================
// State management
// =============================================================================

// State adapter tags. Four on the Dart side, two on the JSX side. The
// setter-method and reactive-stream patterns stay distinct variants: folding
// them into one canonical adapter would lose which idiom the source used,
// so a mechanical round trip across them is not attempted.
const (
	AdapterEventSourced   = "event-sourced"     // dart: bloc-style events
	AdapterNotifier       = "notifier"          // dart: provider/notifier
	AdapterListenable     = "listenable-setter" // dart: setState
	AdapterReactiveStream = "reactive-stream"   // dart: .obs observables
	AdapterHookPair       = "hook-pair"         // jsx: useState
	AdapterReducer        = "reducer-dispatch"  // jsx: useReducer
)

// DartAdapterFor maps a JSX-side adapter to its Dart-side counterpart.
func DartAdapterFor(adapter string) string {
	switch adapter {
	case AdapterReducer:
		return AdapterEventSourced
	case AdapterHookPair, "":
		return AdapterListenable
	default:
		return adapter
	}
}

// JSXAdapterFor maps a Dart-side adapter to its JSX-side counterpart.
func JSXAdapterFor(adapter string) string {
	switch adapter {
	case AdapterEventSourced:
		return AdapterReducer
	case AdapterListenable, AdapterNotifier, AdapterReactiveStream, "":
		return AdapterHookPair
	default:
		return adapter
	}
}

// SetterHandlerToDart translates the canonical hook setter-call handler
// "() => setX(expr)" into a setState closure. Handlers that do not match the
// pattern are preserved opaquely and flagged for review.
func SetterHandlerToDart(handler string, state *ir.StateDefinition) (string, bool) {
	h := strings.TrimSpace(handler)
	h = strings.TrimPrefix(h, "async")
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "()") {
		return "", false
	}
	rest := strings.TrimSpace(h[2:])
	if !strings.HasPrefix(rest, "=>") {
		return "", false
	}
	call := strings.TrimSpace(rest[2:])
	if state == nil {
		return "", false
	}
	for _, v := range state.Variables {
		if v.Setter == "" {
			continue
		}
		prefix := v.Setter + "("
		if strings.HasPrefix(call, prefix) && strings.HasSuffix(call, ")") {
			expr := call[len(prefix) : len(call)-1]
			return fmt.Sprintf("() { setState(() { %s = %s; }); }", v.Name, expr), true
		}
	}
	return "", false
}

// SetterHandlerToJSX translates a setState closure
// "() { setState(() { x = expr; }); }" back to the hook setter form.
func SetterHandlerToJSX(handler string, state *ir.StateDefinition) (string, bool) {
	h := strings.TrimSpace(handler)
	idx := strings.Index(h, "setState(")
	if idx < 0 || state == nil {
		return "", false
	}
	inner := h[idx:]
	open := strings.Index(inner, "{")
	if open < 0 {
		return "", false
	}
	// The closure body is a single assignment statement; the first closing
	// brace after it ends the setState closure.
	close := strings.Index(inner[open:], "}")
	if close < 0 {
		return "", false
	}
	assign := strings.TrimSpace(inner[open+1 : open+close])
	assign = strings.TrimSuffix(assign, ";")
	eq := strings.Index(assign, "=")
	if eq < 0 {
		return "", false
	}
	name := strings.TrimSpace(assign[:eq])
	expr := strings.TrimSpace(assign[eq+1:])
	v := state.Variable(name)
	if v == nil || v.Setter == "" {
		return "", false
	}
	return fmt.Sprintf("()=>%s(%s)", v.Setter, expr), true
}

// =============================================================================
// Animation
// =============================================================================

// easingToDartCurve is total over the IR easing tags.
var easingToDartCurve = map[string]string{
	ir.EaseLinear:  "Curves.linear",
	ir.Ease:        "Curves.ease",
	ir.EaseIn:      "Curves.easeIn",
	ir.EaseOut:     "Curves.easeOut",
	ir.EaseInOut:   "Curves.easeInOut",
	ir.EaseSpring:  "Curves.elasticOut",
	ir.EaseBounce:  "Curves.bounceOut",
	ir.EaseElastic: "Curves.elasticInOut",
}

// easingToJSX is total over the IR easing tags.
var easingToJSX = map[string]string{
	ir.EaseLinear:  "Easing.linear",
	ir.Ease:        "Easing.ease",
	ir.EaseIn:      "Easing.in(Easing.quad)",
	ir.EaseOut:     "Easing.out(Easing.quad)",
	ir.EaseInOut:   "Easing.inOut(Easing.quad)",
	ir.EaseSpring:  "Easing.elastic(1)",
	ir.EaseBounce:  "Easing.bounce",
	ir.EaseElastic: "Easing.elastic(2)",
}

// DartCurve resolves an IR easing into a Flutter curve expression. The
// mapping is total: cubic-bezier resolves parametrically and unknown tags
// fall back to linear.
func DartCurve(e ir.Easing) string {
	if e.Tag == ir.EaseCubicBezier && e.Bezier != nil {
		b := e.Bezier
		return fmt.Sprintf("Cubic(%g, %g, %g, %g)", b[0], b[1], b[2], b[3])
	}
	if c, ok := easingToDartCurve[e.Tag]; ok {
		return c
	}
	return "Curves.linear"
}

// JSXEasing resolves an IR easing into a react-native Easing expression.
func JSXEasing(e ir.Easing) string {
	if e.Tag == ir.EaseCubicBezier && e.Bezier != nil {
		b := e.Bezier
		return fmt.Sprintf("Easing.bezier(%g, %g, %g, %g)", b[0], b[1], b[2], b[3])
	}
	if c, ok := easingToJSX[e.Tag]; ok {
		return c
	}
	return "Easing.linear"
}

// Transition tag translation: enumerated tags resolve to builder names in
// both dialects.
var transitionToDart = map[string]string{
	"fade":             "FadeTransition",
	"slide":            "SlideTransition",
	"scale":            "ScaleTransition",
	"platform-default": "MaterialPageRoute",
}

var transitionToJSX = map[string]string{
	"fade":             "fadeTransition",
	"slide":            "slideTransition",
	"scale":            "scaleTransition",
	"platform-default": "defaultTransition",
}

// DartTransition returns the Flutter builder for a transition tag.
func DartTransition(tag string) string {
	if t, ok := transitionToDart[tag]; ok {
		return t
	}
	return "MaterialPageRoute"
}

// JSXTransition returns the JSX-side builder for a transition tag.
func JSXTransition(tag string) string {
	if t, ok := transitionToJSX[tag]; ok {
		return t
	}
	return "defaultTransition"
}

// =============================================================================
// Navigation
// =============================================================================

// RoutePattern is a compiled ":param" path pattern.
type RoutePattern struct {
	Raw      string
	Segments []RouteSegment
}

// RouteSegment is one path segment, literal or parameter.
type RouteSegment struct {
	Literal string
	Param   string
}

// CompileRoute parses a ":param" path pattern.
func CompileRoute(path string) RoutePattern {
	pattern := RoutePattern{Raw: path}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ":") {
			pattern.Segments = append(pattern.Segments, RouteSegment{Param: seg[1:]})
		} else {
			pattern.Segments = append(pattern.Segments, RouteSegment{Literal: seg})
		}
	}
	return pattern
}

// Match matches a concrete path against the pattern, extracting parameters.
func (p RoutePattern) Match(path string) (map[string]string, bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 1 && segs[0] == "" {
		segs = nil
	}
	if len(segs) != len(p.Segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, want := range p.Segments {
		if want.Param != "" {
			params[want.Param] = segs[i]
			continue
		}
		if want.Literal != segs[i] {
			return nil, false
		}
	}
	return params, true
}

// Params returns the parameter names in declaration order.
func (p RoutePattern) Params() []string {
	var out []string
	for _, s := range p.Segments {
		if s.Param != "" {
			out = append(out, s.Param)
		}
	}
	return out
}

// OrderGuards sorts guards for execution: phase (before, resolve, after),
// then descending priority, then name for stability.
func OrderGuards(guards []ir.RouteGuard) []ir.RouteGuard {
	phaseRank := map[ir.GuardPhase]int{
		ir.GuardBefore: 0, ir.GuardResolve: 1, ir.GuardAfter: 2,
	}
	out := make([]ir.RouteGuard, len(guards))
	copy(out, guards)
	sort.SliceStable(out, func(i, j int) bool {
		if phaseRank[out[i].Phase] != phaseRank[out[j].Phase] {
			return phaseRank[out[i].Phase] < phaseRank[out[j].Phase]
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// =============================================================================
// Network
// =============================================================================

// OrderInterceptors sorts interceptors into pipeline order: phase (request,
// response, error), then ascending priority, then id.
func OrderInterceptors(interceptors []ir.Interceptor) []ir.Interceptor {
	phaseRank := map[ir.InterceptorPhase]int{
		ir.InterceptRequest: 0, ir.InterceptResponse: 1, ir.InterceptError: 2,
	}
	out := make([]ir.Interceptor, len(interceptors))
	copy(out, interceptors)
	sort.SliceStable(out, func(i, j int) bool {
		if phaseRank[out[i].Phase] != phaseRank[out[j].Phase] {
			return phaseRank[out[i].Phase] < phaseRank[out[j].Phase]
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// Platform
// =============================================================================

// platformToDartPredicate maps platform tags to the Dart platform oracle.
var platformToDartPredicate = map[string]string{
	ir.PlatformIOS:     "Platform.isIOS",
	ir.PlatformAndroid: "Platform.isAndroid",
	ir.PlatformWeb:     "Platform.isWeb",
	ir.PlatformMacOS:   "Platform.isMacOS",
	ir.PlatformWindows: "Platform.isWindows",
	ir.PlatformLinux:   "Platform.isLinux",
}

var dartPredicateToPlatform = invert(platformToDartPredicate)

// DartPlatformPredicate returns the boolean predicate for a platform tag.
func DartPlatformPredicate(tag string) string {
	if p, ok := platformToDartPredicate[tag]; ok {
		return p
	}
	return "false /* unknown platform */"
}

// PlatformForDartPredicate resolves Platform.isX back to its tag.
func PlatformForDartPredicate(pred string) (string, bool) {
	tag, ok := dartPredicateToPlatform[pred]
	return tag, ok
}

// JSXPlatformCondition returns the string-compare condition for a tag.
func JSXPlatformCondition(tag string) string {
	return fmt.Sprintf("Platform.OS === %q", tag)
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
