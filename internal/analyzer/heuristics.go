package analyzer

import (
	"sort"

	"github.com/QTest-hq/queryscope/pkg/syntax"
)

// Query weights. A weight approximates database round trips.
const (
	// QueryWeight is the weight of an ordinary executing call
	QueryWeight = 1
	// PaginateWeight covers the COUNT query plus the page fetch
	PaginateWeight = 2
	// SimplePaginateWeight skips the COUNT query
	SimplePaginateWeight = 1
)

const (
	methodPaginate       = "paginate"
	methodSimplePaginate = "simplePaginate"
)

// Default heuristic sets. They are copied into a Heuristics value at init and
// never modified afterwards.
var (
	// terminalQueryMethods force execution of a deferred query builder
	terminalQueryMethods = []string{
		"get", "first", "firstOrFail", "find", "findOrFail",
		"count", "paginate", "simplePaginate", "exists",
		"pluck", "value", "sum", "avg", "min", "max",
	}

	// immediateStaticQueries execute when called on a model class
	immediateStaticQueries = []string{"all", "find", "findOrFail"}

	// databaseFacades are classes whose static calls talk to the database
	databaseFacades = []string{"DB"}

	// eagerLoadMethods declare relations to pre-fetch
	eagerLoadMethods = []string{"with"}

	// scalarColumns are property names assumed to be plain columns, not
	// relations. Custom columns missing here are reported as relation
	// accesses; relations named like one of these are missed.
	scalarColumns = []string{
		"id", "name", "email", "password",
		"created_at", "updated_at", "deleted_at",
		"uuid", "slug", "title", "description", "body", "content",
		"type", "status", "url", "data", "message",
	}
)

type nameSet map[string]struct{}

func newNameSet(groups ...[]string) nameSet {
	s := make(nameSet)
	for _, g := range groups {
		for _, name := range g {
			if name != "" {
				s[name] = struct{}{}
			}
		}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Heuristics holds the name sets used to recognise query patterns. Values are
// immutable and safe for concurrent use.
type Heuristics struct {
	terminal      nameSet
	staticQueries nameSet
	facades       nameSet
	eagerLoads    nameSet
	scalarColumns nameSet
}

// Additions lists names to add on top of an existing Heuristics
type Additions struct {
	TerminalMethods  []string
	StaticQueries    []string
	Facades          []string
	EagerLoadMethods []string
	ScalarColumns    []string
}

var defaultHeuristics = &Heuristics{
	terminal:      newNameSet(terminalQueryMethods),
	staticQueries: newNameSet(immediateStaticQueries),
	facades:       newNameSet(databaseFacades),
	eagerLoads:    newNameSet(eagerLoadMethods),
	scalarColumns: newNameSet(scalarColumns),
}

// DefaultHeuristics returns the built-in heuristic sets
func DefaultHeuristics() *Heuristics {
	return defaultHeuristics
}

// Extend returns a new Heuristics containing h's names plus add
func (h *Heuristics) Extend(add Additions) *Heuristics {
	return &Heuristics{
		terminal:      newNameSet(h.terminal.sorted(), add.TerminalMethods),
		staticQueries: newNameSet(h.staticQueries.sorted(), add.StaticQueries),
		facades:       newNameSet(h.facades.sorted(), add.Facades),
		eagerLoads:    newNameSet(h.eagerLoads.sorted(), add.EagerLoadMethods),
		scalarColumns: newNameSet(h.scalarColumns.sorted(), add.ScalarColumns),
	}
}

// TerminalMethods lists the terminal query method names, sorted
func (h *Heuristics) TerminalMethods() []string { return h.terminal.sorted() }

// ScalarColumnNames lists the scalar column denylist, sorted
func (h *Heuristics) ScalarColumnNames() []string { return h.scalarColumns.sorted() }

// TerminalCall returns the method name when n is a call that executes a query
func (h *Heuristics) TerminalCall(n syntax.Node) (string, bool) {
	name, ok := syntax.CalledMethodName(n)
	if !ok || !h.terminal.has(name) {
		return "", false
	}
	return name, true
}

func terminalWeight(name string) int {
	switch name {
	case methodPaginate:
		return PaginateWeight
	case methodSimplePaginate:
		return SimplePaginateWeight
	default:
		return QueryWeight
	}
}

// IsImmediateStaticQuery matches Model::all() style lookups
func (h *Heuristics) IsImmediateStaticQuery(n syntax.Node) bool {
	lookup, ok := n.(*syntax.StaticLookup)
	if !ok || lookup == nil {
		return false
	}
	name, ok := syntax.ResolveName(lookup.Offset)
	return ok && h.staticQueries.has(name)
}

// IsFacadeAccess matches DB::anything lookups
func (h *Heuristics) IsFacadeAccess(n syntax.Node) bool {
	lookup, ok := n.(*syntax.StaticLookup)
	if !ok || lookup == nil {
		return false
	}
	class, ok := syntax.ResolveName(lookup.What)
	return ok && h.facades.has(syntax.ShortName(class))
}

// EagerLoadCount returns how many relations an eager-load call declares.
// Both $query->with(...) and Model::with(...) are recognised.
func (h *Heuristics) EagerLoadCount(n syntax.Node) int {
	call, ok := n.(*syntax.Call)
	if !ok || call == nil {
		return 0
	}
	name, ok := syntax.CalledMethodName(call)
	if !ok {
		if lookup, isStatic := call.What.(*syntax.StaticLookup); isStatic && lookup != nil {
			name, ok = syntax.ResolveName(lookup.Offset)
		}
	}
	if !ok || !h.eagerLoads.has(name) {
		return 0
	}

	args := call.Arguments
	if len(args) == 0 {
		return 0
	}

	switch first := args[0].(type) {
	case *syntax.String:
		return 1
	case *syntax.Array:
		return len(first.Items)
	}
	return 0
}

// IsRelationAccess matches property reads that are not known scalar columns
func (h *Heuristics) IsRelationAccess(n syntax.Node) bool {
	lookup, ok := n.(*syntax.PropertyLookup)
	if !ok || lookup == nil {
		return false
	}
	prop, ok := syntax.ResolveName(lookup.Offset)
	return ok && !h.scalarColumns.has(prop)
}

// Weigh returns the query weight contributed by n alone at the given loop
// depth, treating a property lookup as a read. Use a scan to weigh a whole
// tree; it knows which lookups are method call targets.
func (h *Heuristics) Weigh(n syntax.Node, depth int) int {
	return h.weigh(n, depth, true)
}

// weigh applies the signals in order. Signals are additive except where
// noted; read is false for a lookup that names a called method.
func (h *Heuristics) weigh(n syntax.Node, depth int, read bool) int {
	weight := 0

	if name, ok := h.TerminalCall(n); ok {
		weight = terminalWeight(name)
	}

	// Static and facade lookups never double count a matched call
	if weight == 0 && h.IsImmediateStaticQuery(n) {
		weight = QueryWeight
	}
	if weight == 0 && h.IsFacadeAccess(n) {
		weight = QueryWeight
	}

	weight += h.EagerLoadCount(n)

	if read && depth > 0 && weight == 0 && h.IsRelationAccess(n) {
		weight = QueryWeight
	}

	return weight
}

// scan weighs nodes during one pre-order traversal. $x->get() holds a
// PropertyLookup as its call target; that lookup is a call, not a property
// read, and must not be mistaken for a lazy-loaded relation.
type scan struct {
	h       *Heuristics
	callees map[*syntax.PropertyLookup]struct{}
}

func newScan(h *Heuristics) *scan {
	return &scan{h: h, callees: make(map[*syntax.PropertyLookup]struct{})}
}

// isRead reports whether n may be a property read. Parents are visited before
// children, so the owning call has already been seen.
func (s *scan) isRead(n syntax.Node) bool {
	if call, ok := n.(*syntax.Call); ok && call != nil {
		if target, ok := call.What.(*syntax.PropertyLookup); ok && target != nil {
			s.callees[target] = struct{}{}
		}
		return true
	}
	lookup, ok := n.(*syntax.PropertyLookup)
	if !ok {
		return true
	}
	_, callee := s.callees[lookup]
	return !callee
}

func (s *scan) weigh(n syntax.Node, depth int) int {
	return s.h.weigh(n, depth, s.isRead(n))
}
