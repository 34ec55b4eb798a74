package user

import "github.com/simp-lee/staffdesk/internal/form"

// UserRequest is the submitted state of a user form. Presence and shape
// rules live in package form; binding only caps lengths, counted in runes.
// The password has no tag: bcrypt's limit is 72 bytes, which the service
// checks.
type UserRequest struct {
	FirstName string `json:"firstName" form:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" form:"lastName" binding:"max=100"`
	Username  string `json:"username" form:"username" binding:"max=100"`
	Password  string `json:"password" form:"password"`
	Phone     string `json:"phone" form:"phone" binding:"max=32"`
	Email     string `json:"email" form:"email" binding:"max=255"`
}

// Values returns the request as a form value snapshot.
func (r UserRequest) Values() form.Values {
	return form.Values{
		form.FieldFirstName: r.FirstName,
		form.FieldLastName:  r.LastName,
		form.FieldUsername:  r.Username,
		form.FieldPassword:  r.Password,
		form.FieldPhone:     r.Phone,
		form.FieldEmail:     r.Email,
	}
}

// ValidationResult is the body of a dry-run validation response.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Errors form.Errors `json:"errors"`
}
