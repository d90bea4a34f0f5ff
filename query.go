package apic

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// QueryTarget selects which part of the object tree a query searches,
// relative to the addressed object.
type QueryTarget string

const (
	// QueryTargetSelf considers only the addressed object.
	QueryTargetSelf QueryTarget = "self"
	// QueryTargetChildren considers the addressed object's children.
	QueryTargetChildren QueryTarget = "children"
	// QueryTargetSubtree considers the addressed object and all descendants.
	QueryTargetSubtree QueryTarget = "subtree"
)

// ResponseSubtree selects how much of each found object's subtree the
// response carries.
type ResponseSubtree string

const (
	// ResponseSubtreeNone returns only the found object.
	ResponseSubtreeNone ResponseSubtree = "no"
	// ResponseSubtreeChildren returns the found object's children.
	ResponseSubtreeChildren ResponseSubtree = "children"
	// ResponseSubtreeFull returns the found object and all descendants.
	ResponseSubtreeFull ResponseSubtree = "full"
)

// PropertyInclude selects which property classes each returned object carries.
type PropertyInclude string

const (
	// PropertyIncludeAll returns every property.
	PropertyIncludeAll PropertyInclude = "all"
	// PropertyIncludeNaming returns only naming properties.
	PropertyIncludeNaming PropertyInclude = "naming-only"
	// PropertyIncludeConfig returns only configurable properties.
	PropertyIncludeConfig PropertyInclude = "config-only"
)

// SubtreeInclude is a set of additional subtree categories to return,
// combined with bitwise or.
type SubtreeInclude uint64

const (
	// IncludeAuditLogs returns subtrees with user modification history.
	IncludeAuditLogs SubtreeInclude = 1 << iota
	// IncludeEventLogs returns subtrees with event history.
	IncludeEventLogs
	// IncludeFaults returns subtrees with currently active faults.
	IncludeFaults
	// IncludeFaultRecords returns subtrees with fault history.
	IncludeFaultRecords
	// IncludeHealth returns subtrees with current health.
	IncludeHealth
	// IncludeHealthRecords returns subtrees with health history.
	IncludeHealthRecords
	// IncludeRelations returns relation subtrees.
	IncludeRelations
	// IncludeStats returns statistics subtrees.
	IncludeStats
	// IncludeTasks returns task subtrees.
	IncludeTasks
	// IncludeCount returns a count of matching subtrees instead of the
	// subtrees themselves.
	IncludeCount
	// IncludeNoScoped suppresses top-level object information.
	IncludeNoScoped
	// IncludeRequired returns only objects with matching subtrees.
	IncludeRequired
)

var subtreeIncludeNames = []struct {
	flag SubtreeInclude
	name string
}{
	{IncludeAuditLogs, "audit-logs"},
	{IncludeEventLogs, "event-logs"},
	{IncludeFaults, "faults"},
	{IncludeFaultRecords, "fault-records"},
	{IncludeHealth, "health"},
	{IncludeHealthRecords, "health-records"},
	{IncludeRelations, "relations"},
	{IncludeStats, "stats"},
	{IncludeTasks, "tasks"},
	{IncludeCount, "count"},
	{IncludeNoScoped, "no-scoped"},
	{IncludeRequired, "required"},
}

// String renders the set in the controller's comma-joined dialect.
func (si SubtreeInclude) String() string {
	var names []string
	for _, entry := range subtreeIncludeNames {
		if si&entry.flag != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}

// QuerySettings captures the optional knobs of a class or DN query. The zero
// value asks for the controller's defaults; With methods return a modified
// copy, so a settings value can be shared and never mutates.
type QuerySettings struct {
	queryTarget     QueryTarget
	targetFilter    string
	responseSubtree ResponseSubtree
	subtreeClasses  []string
	subtreeInclude  SubtreeInclude
	propertyInclude PropertyInclude
	pageSize        int
	page            int
	pageSet         bool
}

// WithQueryTarget sets which part of the tree the query searches.
func (qs QuerySettings) WithQueryTarget(target QueryTarget) QuerySettings {
	qs.queryTarget = target
	return qs
}

// WithTargetFilter sets the controller-side filter expression, e.g.
// `eq(fvTenant.name,"EXAMPLE")`. The expression is passed through opaque;
// the controller is authoritative for its syntax.
func (qs QuerySettings) WithTargetFilter(filter string) QuerySettings {
	qs.targetFilter = filter
	return qs
}

// WithResponseSubtree sets how much subtree each found object returns.
func (qs QuerySettings) WithResponseSubtree(subtree ResponseSubtree) QuerySettings {
	qs.responseSubtree = subtree
	return qs
}

// WithSubtreeClasses restricts returned subtrees to the given classes.
func (qs QuerySettings) WithSubtreeClasses(classes ...string) QuerySettings {
	qs.subtreeClasses = append([]string(nil), classes...)
	return qs
}

// WithSubtreeInclude requests additional subtree categories.
func (qs QuerySettings) WithSubtreeInclude(include SubtreeInclude) QuerySettings {
	qs.subtreeInclude = include
	return qs
}

// WithPropertyInclude sets which property classes are returned.
func (qs QuerySettings) WithPropertyInclude(include PropertyInclude) QuerySettings {
	qs.propertyInclude = include
	return qs
}

// WithPaging requests one page of results. page is zero-based; pageSize is
// the number of objects per page.
func (qs QuerySettings) WithPaging(page, pageSize int) QuerySettings {
	qs.page = page
	qs.pageSize = pageSize
	qs.pageSet = true
	return qs
}

// values encodes the settings into the controller's query-string dialect.
// Unset knobs are omitted so the controller applies its own defaults.
func (qs QuerySettings) values() url.Values {
	v := url.Values{}
	if qs.queryTarget != "" {
		v.Set("query-target", string(qs.queryTarget))
	}
	if qs.targetFilter != "" {
		v.Set("query-target-filter", qs.targetFilter)
	}
	if qs.responseSubtree != "" {
		v.Set("rsp-subtree", string(qs.responseSubtree))
	}
	if len(qs.subtreeClasses) > 0 {
		v.Set("rsp-subtree-class", strings.Join(qs.subtreeClasses, ","))
	}
	if qs.subtreeInclude != 0 {
		v.Set("rsp-subtree-include", qs.subtreeInclude.String())
	}
	if qs.propertyInclude != "" {
		v.Set("rsp-prop-include", string(qs.propertyInclude))
	}
	if qs.pageSet {
		v.Set("page", strconv.Itoa(qs.page))
		v.Set("page-size", strconv.Itoa(qs.pageSize))
	}
	return v
}

// requestSpec is a fully formed relative path plus query string. Building one
// performs no I/O.
type requestSpec struct {
	path  string
	query url.Values
}

// buildClassQuery targets "list all instances of this class".
func buildClassQuery(className string, qs QuerySettings) (requestSpec, error) {
	if className == "" {
		return requestSpec{}, errors.New("class name must not be empty")
	}
	return requestSpec{
		path:  "/api/class/" + url.PathEscape(className) + ".json",
		query: qs.values(),
	}, nil
}

// buildDNQuery targets "fetch the subtree rooted at this object".
func buildDNQuery(dn string, qs QuerySettings) (requestSpec, error) {
	if dn == "" {
		return requestSpec{}, errors.New("distinguished name must not be empty")
	}
	return requestSpec{
		path:  "/api/mo/" + EscapeDN(dn) + ".json",
		query: qs.values(),
	}, nil
}
