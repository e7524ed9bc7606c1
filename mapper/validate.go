package mapper

import (
	"maps"
	"strconv"
	"strings"
)

// Validate runs a fresh validation pass and returns a copy of the errors.
// Field checks run first, in declaration order; nested documents are
// validated recursively. The document-level hook is merged last.
func (d *Document) Validate() map[string]string {
	errs := make(map[string]string)

	for _, f := range d.kind.fields {
		v := d.values[f.Name]

		var msg string
		switch f.Variant {
		case NestedVariant:
			if n, ok := v.(*Document); ok && n != nil {
				if nested := n.Validate(); len(nested) > 0 {
					msg = joinErrors(nested)
				}
			}
		case ListOfDocumentsVariant:
			if docs, ok := v.([]*Document); ok {
				msg = listErrors(docs)
			}
		}
		msg += f.Check(v)

		if msg != "" {
			errs[f.Name] = msg
		}
	}

	if fn := d.validateHook(); fn != nil {
		for _, e := range fn(d) {
			errs[e.Key] = e.Message
		}
	}

	d.errors = errs
	return maps.Clone(errs)
}

// IsValid re-runs validation and reports whether it produced no errors.
func (d *Document) IsValid() bool {
	return len(d.Validate()) == 0
}

// Errors returns a copy of the errors from the last validation pass.
func (d *Document) Errors() map[string]string {
	out := maps.Clone(d.errors)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// listErrors renders element failures as "[i] key: msg; ..." joined by " | ".
func listErrors(docs []*Document) string {
	var parts []string
	for i, n := range docs {
		if n == nil {
			continue
		}
		if errs := n.Validate(); len(errs) > 0 {
			parts = append(parts, "["+strconv.Itoa(i)+"] "+joinErrors(errs))
		}
	}
	return strings.Join(parts, " | ")
}

func (d *Document) validateHook() ValidateFunc {
	if d.hooks.validate != nil {
		return d.hooks.validate
	}
	return d.kind.hooks.validate
}
