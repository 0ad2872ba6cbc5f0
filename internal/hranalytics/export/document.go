package export

// Style is the subset of inline style the pipeline rewrites on the root.
type Style struct {
	Height    string
	Overflow  string
	OverflowY string
}

// Element is a node of an exportable document.
type Element interface {
	Style() Style
	SetStyle(Style)
	Display() string
	SetDisplay(string)
}

// Control is an element the user can press.
type Control interface {
	Element
	Disabled() bool
	SetDisabled(bool)
	Label() string
	SetLabel(string)
}

// Document locates elements by selector. Query returns nil when nothing
// matches.
type Document interface {
	Query(selector string) Element
}
