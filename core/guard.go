package core

// GuardAction is what the navigation layer should do with a route.
type GuardAction string

const (
	ActionAllow    GuardAction = "allow"
	ActionLoading  GuardAction = "loading"
	ActionRedirect GuardAction = "redirect"
)

// Decision is a route-guard verdict. Location is set only for
// ActionRedirect.
type Decision struct {
	Action   GuardAction `json:"action"`
	Location string      `json:"location,omitempty"`
}

const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/dashboard-overview"
)

// RouteGuard decides, for every navigation intent, whether to render
// the destination, show a loading placeholder, or redirect. It holds
// no memory of past decisions; evaluating the same (path, state) pair
// twice yields the same decision.
type RouteGuard struct {
	classifier  *RouteClassifier
	loginPath   string
	landingPath string
}

func NewRouteGuard(classifier *RouteClassifier, loginPath, landingPath string) *RouteGuard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if landingPath == "" {
		landingPath = DefaultLandingPath
	}
	return &RouteGuard{
		classifier:  classifier,
		loginPath:   loginPath,
		landingPath: landingPath,
	}
}

func (g *RouteGuard) Evaluate(path string, state SessionState) Decision {
	// Never redirect while the session is still being established.
	if state.Loading {
		return Decision{Action: ActionLoading}
	}

	if state.User == nil && g.classifier.Classify(path) == RouteProtected {
		return Decision{Action: ActionRedirect, Location: g.loginPath}
	}

	if state.User != nil && path == g.loginPath {
		return Decision{Action: ActionRedirect, Location: g.landingPath}
	}

	return Decision{Action: ActionAllow}
}
