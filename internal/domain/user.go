package domain

import (
	"context"
	"strings"

	"github.com/simp-lee/pagination"

	"github.com/simp-lee/staffdesk/internal/form"
)

// Role distinguishes the two kinds of user records.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleClient   Role = "client"
)

// Title returns the display name of the role ("Employee" or "Client").
func (r Role) Title() string {
	if r == RoleEmployee {
		return "Employee"
	}
	return "Client"
}

// Plural returns the path segment used for the role ("employees" or "clients").
func (r Role) Plural() string {
	return string(r) + "s"
}

// RoleFromPath infers the role from a request path: any path mentioning
// "employees" is an employee path, everything else is a client path.
func RoleFromPath(path string) Role {
	if strings.Contains(path, "employees") {
		return RoleEmployee
	}
	return RoleClient
}

// User represents an employee or client record.
type User struct {
	BaseModel
	Role         Role   `gorm:"size:16;index;not null" json:"role"`
	FirstName    string `gorm:"size:100;not null" json:"firstName"`
	LastName     string `gorm:"size:100;not null" json:"lastName"`
	Username     string `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Email        string `gorm:"size:255" json:"email"`
	Phone        string `gorm:"size:32;not null" json:"phone"`
	PasswordHash string `gorm:"size:255" json:"-"`
}

// FormValues returns the record as an edit form snapshot. The password is
// never part of it.
func (u *User) FormValues() form.Values {
	return form.Values{
		form.FieldFirstName: u.FirstName,
		form.FieldLastName:  u.LastName,
		form.FieldUsername:  u.Username,
		form.FieldEmail:     u.Email,
		form.FieldPhone:     u.Phone,
	}
}

// UserRepository defines the data access interface for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, role Role, req PageRequest) (*pagination.Pagination[User], error)
	Update(ctx context.Context, id uint, apply func(user *User) error) (*User, error)
	Delete(ctx context.Context, id uint) error
}

// UserService defines the business logic interface for users.
type UserService interface {
	CreateUser(ctx context.Context, role Role, values form.Values) (*User, error)
	GetUser(ctx context.Context, role Role, id uint) (*User, error)
	ListUsers(ctx context.Context, role Role, req PageRequest) (*pagination.Pagination[User], error)
	UpdateUser(ctx context.Context, role Role, id uint, values form.Values) (*User, error)
	DeleteUser(ctx context.Context, role Role, id uint) error
	ValidateUser(ctx context.Context, values form.Values, opts form.Options) form.Errors
}
