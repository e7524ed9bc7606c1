package mapper_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/docmap/mapper"
)

func TestValidate_RequiredField(t *testing.T) {
	k := mapper.NewKind("k", []mapper.FieldSpec{
		mapper.Field(mapper.String, "fld1", mapper.Required()),
		mapper.Field(mapper.String, "fld3", mapper.Default("field3")),
	})

	d, err := k.New(map[string]any{"fld1": "field-one"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !d.IsValid() {
		t.Fatalf("expected valid, errors = %v", d.Errors())
	}

	d.Clear("fld1")
	if d.IsValid() {
		t.Fatal("expected invalid after clearing required field")
	}
	if got := d.Errors()["fld1"]; got != "fld1 is required" {
		t.Errorf("errors[fld1] = %q, want %q", got, "fld1 is required")
	}

	d.Set("fld1", "back")
	if !d.IsValid() {
		t.Errorf("expected valid after restoring, errors = %v", d.Errors())
	}
}

func TestValidate_IsValidMatchesErrors(t *testing.T) {
	kinds := []*mapper.Kind{
		mapper.NewKind("a", []mapper.FieldSpec{mapper.Field(mapper.String, "x", mapper.Required())}),
		mapper.NewKind("b", []mapper.FieldSpec{mapper.Field(mapper.String, "x")}),
		mapper.NewKind("c", []mapper.FieldSpec{mapper.Field(mapper.String, "x")},
			mapper.WithValidate(func(*mapper.Document) []mapper.ValidationError {
				return []mapper.ValidationError{{Key: "doc", Message: "never"}}
			})),
	}
	for _, k := range kinds {
		t.Run(k.Collection(), func(t *testing.T) {
			d, _ := k.New(nil)
			valid := d.IsValid()
			if valid != (len(d.Errors()) == 0) {
				t.Errorf("IsValid() = %v but Errors() = %v", valid, d.Errors())
			}
		})
	}
}

func TestValidate_FieldValidator(t *testing.T) {
	f4 := func(f mapper.FieldSpec, v any) string {
		if v != "ok" {
			return f.Name + " is not ok"
		}
		return ""
	}
	k := mapper.NewKind("k", []mapper.FieldSpec{
		mapper.Field(mapper.String, "fld4", mapper.WithValidator(f4)),
	})

	d, _ := k.New(map[string]any{"fld4": "ok"})
	if !d.IsValid() {
		t.Fatalf("expected valid, errors = %v", d.Errors())
	}
	if diff := cmp.Diff(map[string]string{}, d.Errors()); diff != "" {
		t.Errorf("Errors() mismatch (-want +got):\n%s", diff)
	}

	d.Set("fld4", "bad")
	if d.IsValid() {
		t.Fatal("expected invalid")
	}
	if got := d.Errors()["fld4"]; got != "fld4 is not ok" {
		t.Errorf("errors[fld4] = %q", got)
	}
}

func TestValidate_DocumentHook(t *testing.T) {
	d, _ := twoStrings().New(map[string]any{"fld1": "field-one"})

	tests := []struct {
		name string
		hook mapper.ValidateFunc
		want map[string]string
	}{
		{
			name: "single pair",
			hook: func(*mapper.Document) []mapper.ValidationError {
				return []mapper.ValidationError{{Key: "customValidator", Message: "object Not Valid"}}
			},
			want: map[string]string{"customValidator": "object Not Valid"},
		},
		{
			name: "list of pairs",
			hook: func(*mapper.Document) []mapper.ValidationError {
				return []mapper.ValidationError{
					{Key: "customValidator1", Message: "1 object Not Valid"},
					{Key: "customValidator2", Message: "2 object Not Valid"},
				}
			},
			want: map[string]string{
				"customValidator1": "1 object Not Valid",
				"customValidator2": "2 object Not Valid",
			},
		},
		{
			name: "last duplicate wins",
			hook: func(*mapper.Document) []mapper.ValidationError {
				return []mapper.ValidationError{
					{Key: "k", Message: "first"},
					{Key: "k", Message: "second"},
				}
			},
			want: map[string]string{"k": "second"},
		},
		{
			name: "reads document values",
			hook: func(d *mapper.Document) []mapper.ValidationError {
				if s, _ := d.String("fld1"); s != "blah" {
					return []mapper.ValidationError{{Key: "customValidator", Message: "fld1 has bad value"}}
				}
				return nil
			},
			want: map[string]string{"customValidator": "fld1 has bad value"},
		},
		{
			name: "nil result",
			hook: func(*mapper.Document) []mapper.ValidationError { return nil },
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.OnValidate(tt.hook)
			d.IsValid()
			if diff := cmp.Diff(tt.want, d.Errors()); diff != "" {
				t.Errorf("Errors() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_HookOverridesFieldKey(t *testing.T) {
	k := mapper.NewKind("k",
		[]mapper.FieldSpec{mapper.Field(mapper.String, "a", mapper.Required())},
		mapper.WithValidate(func(*mapper.Document) []mapper.ValidationError {
			return []mapper.ValidationError{{Key: "a", Message: "from hook"}}
		}),
	)
	d, _ := k.New(nil)
	if got := d.Errors()["a"]; got != "from hook" {
		t.Errorf("errors[a] = %q, want hook message", got)
	}
}

func TestValidate_NestedErrors(t *testing.T) {
	n := mapper.NewKind("n", []mapper.FieldSpec{
		mapper.Field(mapper.String, "b", mapper.Required()),
		mapper.Field(mapper.String, "a", mapper.Required()),
	})
	m := mapper.NewKind("m", []mapper.FieldSpec{
		mapper.NestedField(n, "nested"),
		mapper.ListOfDocumentsField(n, "items"),
	})

	d, err := m.New(map[string]any{
		"nested": map[string]any{},
		"items":  []any{map[string]any{"a": "x", "b": "y"}, map[string]any{"a": "x"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := map[string]string{
		"nested": "a: a is required; b: b is required",
		"items":  "[1] b: b is required",
	}
	if diff := cmp.Diff(want, d.Errors()); diff != "" {
		t.Errorf("Errors() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RequiredNestedAbsent(t *testing.T) {
	n := mapper.NewKind("n", []mapper.FieldSpec{mapper.Field(mapper.String, "b")})
	m := mapper.NewKind("m", []mapper.FieldSpec{mapper.NestedField(n, "nested", mapper.Required())})

	d, _ := m.New(nil)
	if got := d.Errors()["nested"]; got != "nested is required" {
		t.Errorf("errors[nested] = %q", got)
	}
}

func TestErrors_IsCopyOfLastPass(t *testing.T) {
	k := mapper.NewKind("k", []mapper.FieldSpec{mapper.Field(mapper.String, "a", mapper.Required())})
	d, _ := k.New(nil)

	errs := d.Errors()
	errs["injected"] = "x"
	if _, ok := d.Errors()["injected"]; ok {
		t.Error("Errors() exposed internal map")
	}

	// Mutation does not refresh errors until validation re-runs.
	d.Set("a", "present")
	if len(d.Errors()) != 1 {
		t.Errorf("Errors() should reflect the last pass, got %v", d.Errors())
	}
	if !d.IsValid() {
		t.Errorf("expected valid after re-validation, errors = %v", d.Errors())
	}
}
