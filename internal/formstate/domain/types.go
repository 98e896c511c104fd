// Package domain contains the form autosave logic: snapshot keys, save and restore.
package domain

import (
	"encoding/json"
	"strconv"
)

// Field is a single form control. Fields without a name are never snapshotted.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Form is a form on a page.
type Form struct {
	ID       string `json:"id,omitempty"`
	Preserve bool   `json:"preserve"`
	// Index is the position among preserved forms on the page, set by PreserveAll.
	Index  int     `json:"-"`
	Fields []Field `json:"fields"`
}

// Identity returns the form id, or its index among preserved forms when the id is empty.
func (f *Form) Identity() string {
	if f.ID != "" {
		return f.ID
	}
	return strconv.Itoa(f.Index)
}

// Values returns the named field values as a snapshot.
func (f *Form) Values() Snapshot {
	snap := make(Snapshot, len(f.Fields))
	for _, fld := range f.Fields {
		if fld.Name == "" {
			continue
		}
		snap[fld.Name] = fld.Value
	}
	return snap
}

// Apply writes stored values into the fields with the same name and returns
// how many were written. Names missing from the form are ignored, and data that
// does not decode as a snapshot restores nothing.
func (f *Form) Apply(data []byte) int {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0
	}

	restored := 0
	for i := range f.Fields {
		name := f.Fields[i].Name
		if name == "" {
			continue
		}
		if v, ok := snap[name]; ok {
			f.Fields[i].Value = v
			restored++
		}
	}
	return restored
}

// Snapshot maps field name to value.
type Snapshot map[string]string

// PreserveAll returns the forms marked for preservation and numbers them in page order.
func PreserveAll(forms []*Form) []*Form {
	preserved := make([]*Form, 0, len(forms))
	for _, f := range forms {
		if f == nil || !f.Preserve {
			continue
		}
		f.Index = len(preserved)
		preserved = append(preserved, f)
	}
	return preserved
}

// Key returns the storage key for a form on a page.
func Key(path, formID string, index int) string {
	if formID != "" {
		return keyFor(path, formID)
	}
	return keyFor(path, strconv.Itoa(index))
}

func keyFor(path, identity string) string {
	return path + "#" + identity
}
