package hranalytics

import (
	"errors"
	"sort"
	"strconv"
)

// ErrUnknownAction is returned for navigation targets outside the known set.
var ErrUnknownAction = errors.New("hranalytics: unknown navigation action")

// ViewRef pairs an optional view id with its view type. It encodes as the
// two element array the host client expects, e.g. [false, "tree"].
type ViewRef struct {
	ID   *int64
	Type string
}

// MarshalJSON renders the reference as [id|false, type].
func (v ViewRef) MarshalJSON() ([]byte, error) {
	id := "false"
	if v.ID != nil {
		id = strconv.FormatInt(*v.ID, 10)
	}
	return []byte("[" + id + `,"` + v.Type + `"]`), nil
}

// Action is a window action the dashboard asks the host client to open.
type Action struct {
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	ResModel string    `json:"res_model"`
	ViewMode string    `json:"view_mode"`
	Views    []ViewRef `json:"views"`
	Target   string    `json:"target"`
}

func windowAction(model, name string) Action {
	return Action{
		Type:     "ir.actions.act_window",
		Name:     name,
		ResModel: model,
		ViewMode: "tree,form",
		Views:    []ViewRef{{Type: "tree"}, {Type: "form"}},
		Target:   "current",
	}
}

var navigationActions = map[string]Action{
	"employees":  windowAction("hr.employee", "Employees"),
	"attendance": windowAction("hr.attendance", "Attendance"),
	"contracts":  windowAction("hr.contract", "Contracts"),
}

// NavigationAction resolves a dashboard shortcut by name.
func NavigationAction(name string) (Action, error) {
	action, ok := navigationActions[name]
	if !ok {
		return Action{}, ErrUnknownAction
	}
	return action, nil
}

// NavigationNames lists the shortcut names in stable order.
func NavigationNames() []string {
	names := make([]string, 0, len(navigationActions))
	for name := range navigationActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
