// Package form holds the state and validation rules of the user create and
// edit forms.
//
// A Form owns one value snapshot and one error map. Editing a field clears
// its error eagerly; the rule set only runs again on ValidateForm. A Form is
// not safe for concurrent use.
package form

import "maps"

// Form is the state of one user form instance.
type Form struct {
	initial Values
	values  Values
	errors  Errors
	opts    Options
}

// New returns a form seeded with a copy of initial.
func New(initial Values, opts Options) *Form {
	f := &Form{
		initial: cloneValues(initial),
		opts:    opts,
	}
	f.ResetForm()
	return f
}

// EmptyCreateValues returns the blank snapshot of a create form.
func EmptyCreateValues() Values {
	return Values{
		FieldFirstName: "",
		FieldLastName:  "",
		FieldUsername:  "",
		FieldPassword:  "",
		FieldPhone:     "",
		FieldEmail:     "",
	}
}

// EmptyEditValues returns the blank snapshot of an edit form. It has no
// password slot.
func EmptyEditValues() Values {
	return Values{
		FieldFirstName: "",
		FieldLastName:  "",
		FieldUsername:  "",
		FieldEmail:     "",
		FieldPhone:     "",
	}
}

// HandleChange sets field to value and drops any error recorded for field
// without re-validating it.
func (f *Form) HandleChange(field, value string) {
	f.values[field] = value
	delete(f.errors, field)
}

// ValidateForm recomputes the full error map from the current values and
// reports whether it is empty.
func (f *Form) ValidateForm() bool {
	f.errors = ValidateUser(f.values, f.opts)
	return len(f.errors) == 0
}

// ResetForm restores the initial snapshot and clears all errors.
func (f *Form) ResetForm() {
	f.values = cloneValues(f.initial)
	f.errors = make(Errors)
}

// SetFieldValue sets field to value and leaves errors untouched.
func (f *Form) SetFieldValue(field, value string) {
	f.values[field] = value
}

// SetFieldValues calls SetFieldValue for every entry of record.
func (f *Form) SetFieldValues(record Values) {
	for k, v := range record {
		f.SetFieldValue(k, v)
	}
}

// SetErrors replaces the error map, e.g. with errors reported by the
// submit action.
func (f *Form) SetErrors(errs Errors) {
	f.errors = make(Errors, len(errs))
	for k, v := range errs {
		if v != "" {
			f.errors[k] = v
		}
	}
}

// Values returns a copy of the current values.
func (f *Form) Values() Values { return cloneValues(f.values) }

// Errors returns a copy of the current errors.
func (f *Form) Errors() Errors { return maps.Clone(f.errors) }

// Value returns the current value of field.
func (f *Form) Value(field string) string { return f.values[field] }

// Error returns the current error of field, or "".
func (f *Form) Error(field string) string { return f.errors[field] }

// IsValid reports whether the form currently holds no errors.
func (f *Form) IsValid() bool { return len(f.errors) == 0 }

// Options returns the options the form was created with.
func (f *Form) Options() Options { return f.opts }

func cloneValues(v Values) Values {
	if v == nil {
		return make(Values)
	}
	return maps.Clone(v)
}
