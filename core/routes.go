package core

// RouteClass is the verdict of the static route partition.
type RouteClass string

const (
	RouteProtected    RouteClass = "protected"
	RoutePublic       RouteClass = "public"
	RouteUnclassified RouteClass = "unclassified"
)

// Default route tables for the dashboard frontend. Paths absent from
// both lists are unclassified and pass through without a session check.
var (
	DefaultProtectedRoutes = []string{
		"/",
		"/analytics-reports",
		"/search-discovery",
		"/integrations-hub",
		"/project-dashboard",
	}

	DefaultPublicRoutes = []string{
		"/login",
		"/404",
	}
)

// RouteClassifier partitions navigation paths into protected and
// public sets. The tables are configuration, fixed for the lifetime of
// the classifier.
type RouteClassifier struct {
	protected map[string]struct{}
	public    map[string]struct{}
}

func NewRouteClassifier(protected, public []string) *RouteClassifier {
	c := &RouteClassifier{
		protected: make(map[string]struct{}, len(protected)),
		public:    make(map[string]struct{}, len(public)),
	}
	for _, p := range protected {
		c.protected[p] = struct{}{}
	}
	for _, p := range public {
		// protected wins if a path is listed in both tables
		if _, ok := c.protected[p]; ok {
			continue
		}
		c.public[p] = struct{}{}
	}
	return c
}

// DefaultRouteClassifier returns a classifier over the default tables.
func DefaultRouteClassifier() *RouteClassifier {
	return NewRouteClassifier(DefaultProtectedRoutes, DefaultPublicRoutes)
}

func (c *RouteClassifier) Classify(path string) RouteClass {
	if _, ok := c.protected[path]; ok {
		return RouteProtected
	}
	if _, ok := c.public[path]; ok {
		return RoutePublic
	}
	return RouteUnclassified
}
