package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/simp-lee/pagination"
	"golang.org/x/crypto/bcrypt"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/form"
)

// createFields are the fields a create submission may carry.
var createFields = []string{
	form.FieldFirstName,
	form.FieldLastName,
	form.FieldUsername,
	form.FieldPassword,
	form.FieldPhone,
	form.FieldEmail,
}

// editableFields are the fields an update may change. Username is fixed
// once the record exists and the password is never part of an edit.
var editableFields = []string{
	form.FieldFirstName,
	form.FieldLastName,
	form.FieldPhone,
	form.FieldEmail,
}

// userService implements domain.UserService.
type userService struct {
	repo       domain.UserRepository
	bcryptCost int
}

// NewUserService creates a new UserService. bcryptCost is passed to
// bcrypt.GenerateFromPassword; out-of-range values fall back to
// bcrypt.DefaultCost.
func NewUserService(repo domain.UserRepository, bcryptCost int) domain.UserService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &userService{repo: repo, bcryptCost: bcryptCost}
}

// CreateUser runs the create form over values and persists the record when
// the form is valid.
func (s *userService) CreateUser(ctx context.Context, role domain.Role, values form.Values) (*domain.User, error) {
	f := form.New(form.EmptyCreateValues(), form.Options{IncludePassword: true})
	applyFields(f, values, createFields)

	if !f.ValidateForm() {
		slog.DebugContext(ctx, "create user rejected", "role", role, "errors", f.Errors())
		return nil, domain.NewFieldErrors(f.Errors())
	}

	if err := s.ensureUsernameFree(ctx, f.Value(form.FieldUsername)); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(f.Value(form.FieldPassword)), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, domain.NewFieldErrors(map[string]string{
				form.FieldPassword: "Password must be at most 72 bytes",
			})
		}
		return nil, domain.NewAppError(domain.CodeInternal, "failed to hash password", err)
	}

	user := &domain.User{
		Role:         role,
		FirstName:    f.Value(form.FieldFirstName),
		LastName:     f.Value(form.FieldLastName),
		Username:     f.Value(form.FieldUsername),
		Email:        f.Value(form.FieldEmail),
		Phone:        f.Value(form.FieldPhone),
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user created", "role", role, "id", user.ID, "username", user.Username)
	return user, nil
}

// ensureUsernameFree rejects a taken username before paying for a bcrypt
// hash. The unique index still decides races between concurrent creates.
func (s *userService) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.repo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return domain.NewAppError(domain.CodeAlreadyExists, "username already exists", nil)
	case domain.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// GetUser returns the record with id. A record of another role is reported
// as not found.
func (s *userService) GetUser(ctx context.Context, role domain.Role, id uint) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != role {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// ListUsers returns one page of records of role.
func (s *userService) ListUsers(ctx context.Context, role domain.Role, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	return s.repo.List(ctx, role, req)
}

// UpdateUser loads the record into an edit form, applies the editable
// fields of values, and saves the result when the form is valid.
func (s *userService) UpdateUser(ctx context.Context, role domain.Role, id uint, values form.Values) (*domain.User, error) {
	existing, err := s.GetUser(ctx, role, id)
	if err != nil {
		return nil, err
	}

	f := form.New(form.EmptyEditValues(), form.Options{})
	f.SetFieldValues(existing.FormValues())
	applyFields(f, values, editableFields)

	if !f.ValidateForm() {
		slog.DebugContext(ctx, "update user rejected", "role", role, "id", id, "errors", f.Errors())
		return nil, domain.NewFieldErrors(f.Errors())
	}

	updated, err := s.repo.Update(ctx, id, func(u *domain.User) error {
		if u.Role != role {
			return domain.ErrNotFound
		}
		u.FirstName = f.Value(form.FieldFirstName)
		u.LastName = f.Value(form.FieldLastName)
		u.Email = f.Value(form.FieldEmail)
		u.Phone = f.Value(form.FieldPhone)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user updated", "role", role, "id", id)
	return updated, nil
}

// DeleteUser removes the record with id if it belongs to role.
func (s *userService) DeleteUser(ctx context.Context, role domain.Role, id uint) error {
	if _, err := s.GetUser(ctx, role, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "user deleted", "role", role, "id", id)
	return nil
}

// ValidateUser runs the rule set over values without persisting anything.
func (s *userService) ValidateUser(_ context.Context, values form.Values, opts form.Options) form.Errors {
	initial, fields := form.EmptyEditValues(), editableFields
	if opts.IncludePassword {
		initial, fields = form.EmptyCreateValues(), createFields
	} else {
		fields = append(fields[:len(fields):len(fields)], form.FieldUsername)
	}

	f := form.New(initial, opts)
	applyFields(f, values, fields)
	f.ValidateForm()
	return f.Errors()
}

// applyFields feeds the submitted values of fields through HandleChange.
// Surrounding whitespace is dropped from everything but the password.
func applyFields(f *form.Form, values form.Values, fields []string) {
	for _, field := range fields {
		v, ok := values[field]
		if !ok {
			continue
		}
		if field != form.FieldPassword {
			v = strings.TrimSpace(v)
		}
		f.HandleChange(field, v)
	}
}
