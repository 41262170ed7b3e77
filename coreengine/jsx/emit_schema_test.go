package jsx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora-labs/lumora-core/coreengine/ir"
)

// schemaDoc builds a document carrying every side-table the emitter binds.
func schemaDoc() *ir.IR {
	return &ir.IR{
		SchemaVersion: ir.SchemaVersion,
		Metadata:      ir.Metadata{SourceDialect: ir.DialectJSX, SourcePath: "app.tsx"},
		Roots:         []string{"n0"},
		Nodes: map[string]*ir.Node{
			"n0": {ID: "n0", Kind: "App", Children: []string{"n1"}},
			"n1": {ID: "n1", Kind: ir.KindView},
		},
		Navigation: &ir.NavigationSchema{
			InitialRoute: "/",
			Routes: []ir.Route{
				{Name: "home", Path: "/", Component: "Home"},
				{Name: "user", Path: "/users/:id", Component: "UserScreen",
					Transition: &ir.TransitionConfig{Kind: "slide", Direction: "left"}},
			},
			Guards: []ir.RouteGuard{
				{Name: "auth", Phase: ir.GuardBefore, Handler: "requireLogin", Priority: 5},
			},
		},
		Animations: []*ir.AnimationSchema{
			{
				ID: "fade-in", Kind: ir.AnimationTiming, Duration: 300,
				Easing: ir.Easing{Tag: ir.EaseIn},
				Properties: []ir.AnimatedProperty{
					{Name: "opacity", From: ir.Dec(0), To: ir.Dec(1)},
				},
			},
			{
				ID: "pop", Kind: ir.AnimationSpring, Duration: 400,
				Easing: ir.Easing{Tag: ir.EaseSpring},
				Spring: &ir.SpringConfig{Mass: 1, Stiffness: 180, Damping: 12},
			},
		},
		Network: &ir.NetworkSchema{
			BaseURL:   "https://api.example.com",
			TimeoutMs: 5000,
			Endpoints: []ir.Endpoint{
				{ID: "get-user", Method: "GET", Path: "/users/:id", PathParams: []string{"id"},
					RequireAuth: true, Retry: &ir.RetryConfig{MaxAttempts: 3}},
				{ID: "create-post", Method: "POST", Path: "/posts",
					Body: map[string]string{"title": "string"}},
			},
			Interceptors: []ir.Interceptor{
				{ID: "log", Phase: ir.InterceptResponse, Priority: 1, Handler: "logResponse"},
				{ID: "auth", Phase: ir.InterceptRequest, Priority: 1, Handler: "attachToken"},
			},
		},
	}
}

func TestEmitNavigationSchema(t *testing.T) {
	out, err := NewEmitter(DefaultEmitOptions()).Emit(schemaDoc())
	require.NoError(t, err)

	assert.Contains(t, out, `{ name: "home", path: "/", component: Home },`)
	assert.Contains(t, out, `{ name: "user", path: "/users/:id", component: UserScreen, transition: "slide" },`)
	assert.Contains(t, out, `export const initialRoute = "/";`)
	assert.Contains(t, out, `export const authGuard = { phase: "before", priority: 5, handler: requireLogin };`)
}

func TestEmitAnimationSchema(t *testing.T) {
	out, err := NewEmitter(DefaultEmitOptions()).Emit(schemaDoc())
	require.NoError(t, err)

	assert.Contains(t, out, "export const fadeIn = {")
	assert.Contains(t, out, `type: "timing",`)
	assert.Contains(t, out, "duration: 300,")
	assert.Contains(t, out, `easing: "ease-in",`)
	assert.Contains(t, out, `{ name: "opacity", from: 0, to: 1 },`)

	assert.Contains(t, out, "export const pop = {")
	assert.Contains(t, out, "spring: { mass: 1, stiffness: 180, damping: 12, velocity: 0 },")
}

func TestEmitNetworkSchema(t *testing.T) {
	out, err := NewEmitter(DefaultEmitOptions()).Emit(schemaDoc())
	require.NoError(t, err)

	assert.Contains(t, out, `const apiBase = "https://api.example.com";`)
	assert.Contains(t, out, "const apiTimeout = 5000;")
	assert.Contains(t, out, "export async function getUser(id) {")
	assert.Contains(t, out, "return request(`${apiBase}/users/${id}`, { method: \"GET\", auth: true, retry: 3 });")
	assert.Contains(t, out, "export async function createPost(body) {")
	assert.Contains(t, out, "body: JSON.stringify(body)")

	// Request-phase interceptors register ahead of response-phase ones.
	authAt := indexOf(t, out, `registerInterceptor("request", "auth", attachToken);`)
	logAt := indexOf(t, out, `registerInterceptor("response", "log", logResponse);`)
	assert.Less(t, authAt, logAt)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "missing %q in emitted source", needle)
	return idx
}
