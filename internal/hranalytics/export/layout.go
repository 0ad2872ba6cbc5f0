package export

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
)

// NodeKind tells the rasterizer how to draw a node.
type NodeKind int

// Node kinds.
const (
	NodeContainer NodeKind = iota
	NodeHeading
	NodeButton
	NodeFilters
	NodeCard
	NodeChart
)

// Node is an element of the in-memory dashboard layout.
type Node struct {
	Kind     NodeKind
	Class    string
	Text     string
	Value    string
	Spec     charts.Spec
	Children []*Node

	mu       sync.Mutex
	style    Style
	display  string
	disabled bool
}

// Style returns the sizing style of the node.
func (n *Node) Style() Style {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.style
}

// SetStyle replaces the sizing style.
func (n *Node) SetStyle(s Style) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.style = s
}

// Display returns the CSS display value; "" is the default.
func (n *Node) Display() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.display
}

// SetDisplay sets the CSS display value. "none" hides the node.
func (n *Node) SetDisplay(d string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.display = d
}

// Disabled reports whether a button node is disabled.
func (n *Node) Disabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disabled
}

// SetDisabled enables or disables a button node.
func (n *Node) SetDisabled(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disabled = v
}

// Label returns the node text.
func (n *Node) Label() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Text
}

// SetLabel replaces the node text, e.g. the export button caption.
func (n *Node) SetLabel(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Text = s
}

// Visible reports whether the node takes part in rendering.
func (n *Node) Visible() bool {
	return n.Display() != "none"
}

// Layout is a Document over a Node tree.
type Layout struct {
	Root *Node
}

// Query matches a single ".class" selector, depth first.
func (l *Layout) Query(selector string) Element {
	class := strings.TrimPrefix(strings.TrimSpace(selector), ".")
	if l == nil || l.Root == nil || class == "" {
		return nil
	}
	if n := find(l.Root, class); n != nil {
		return n
	}
	return nil
}

func find(n *Node, class string) *Node {
	for _, c := range strings.Fields(n.Class) {
		if c == class {
			return n
		}
	}
	for _, child := range n.Children {
		if hit := find(child, class); hit != nil {
			return hit
		}
	}
	return nil
}

// Card is a headline metric.
type Card struct {
	Title string
	Value string
}

// Cards formats the headline metrics of data with thousands separators.
func Cards(data hranalytics.DashboardData) []Card {
	p := message.NewPrinter(language.English)
	return []Card{
		{Title: "Total Employees", Value: p.Sprintf("%d", data.TotalEmployees)},
		{Title: "Turnover Rate", Value: p.Sprintf("%.2f%%", data.TurnoverRate)},
		{Title: "Average Salary", Value: p.Sprintf("%.0f", data.AvgSalary)},
		{Title: "Average KPI", Value: p.Sprintf("%.2f", data.KPIAverage)},
	}
}

// NewLayout builds the dashboard tree exported to PDF. The root starts with
// the fixed viewport style of the live page.
func NewLayout(data hranalytics.DashboardData, filterSummary string) *Layout {
	cards := &Node{Kind: NodeContainer, Class: "kpi-cards"}
	for _, c := range Cards(data) {
		cards.Children = append(cards.Children, &Node{Kind: NodeCard, Class: "kpi-card", Text: c.Title, Value: c.Value})
	}
	panels := &Node{Kind: NodeContainer, Class: "chart-grid"}
	for _, p := range charts.Derive(data) {
		panels.Children = append(panels.Children, &Node{Kind: NodeChart, Class: "chart-panel chart-" + p.Surface, Text: p.Spec.Title, Spec: p.Spec})
	}
	root := &Node{
		Kind:  NodeContainer,
		Class: "o_hr_dashboard",
		style: Style{Height: "100vh", Overflow: "auto", OverflowY: "auto"},
		Children: []*Node{
			{Kind: NodeContainer, Class: "dashboard-header", Children: []*Node{
				{Kind: NodeHeading, Class: "dashboard-title", Text: "HR Analytics Dashboard"},
				{Kind: NodeButton, Class: "export-pdf-btn", Text: ButtonLabel, display: "flex"},
			}},
			{Kind: NodeFilters, Class: "filter-section", Text: filterSummary, display: "block"},
			cards,
			panels,
		},
	}
	return &Layout{Root: root}
}
