package user

import (
	"context"
	"errors"
	"strings"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/staffdesk/internal/domain"
	"github.com/simp-lee/staffdesk/internal/pkg"
)

// Columns a list query may sort or filter by. password_hash is never one.
var (
	sortableColumns   = []string{"id", "first_name", "last_name", "username", "email", "phone", "created_at", "updated_at"}
	filterableColumns = []string{"first_name", "last_name", "username", "email", "phone"}
)

// uniqueViolations are driver messages of unique index failures that the
// dialector did not translate to gorm.ErrDuplicatedKey.
var uniqueViolations = []string{"unique constraint", "duplicate key", "duplicate entry"}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a GORM-backed domain.UserRepository.
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return mapError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	return r.take(ctx, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.take(ctx, clause.Eq{Column: "username", Value: username})
}

func (r *userRepository) take(ctx context.Context, conds ...any) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Take(&user, conds...).Error; err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// List counts and fetches the records of role matching req.Filter. Both
// queries share the same filtered base. A page past the last one is
// clamped to the last page.
func (r *userRepository) List(ctx context.Context, role domain.Role, req domain.PageRequest) (*pagination.Pagination[domain.User], error) {
	base := r.db.WithContext(ctx).Model(&domain.User{}).
		Where(clause.Eq{Column: "role", Value: role}).
		Scopes(pkg.Filter(req, filterableColumns))

	paginator := pagination.NewPaginator(
		pagination.WithItemsPerPage[domain.User](req.PageSize),
		pagination.WithItemTotalCallback[domain.User](func(context.Context) (int64, error) {
			var total int64
			if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
				return 0, mapError(err)
			}
			return total, nil
		}),
		pagination.WithSliceCallback(func(_ context.Context, offset, limit int) ([]domain.User, error) {
			var users []domain.User
			err := base.Session(&gorm.Session{}).
				Scopes(pkg.Sort(req, sortableColumns), pkg.Paginate(offset, limit)).
				Find(&users).Error
			if err != nil {
				return nil, mapError(err)
			}
			return users, nil
		}),
	)

	result, err := paginator.Paginate(ctx, req.Page)
	switch {
	case errors.Is(err, pagination.ErrInvalidPageNumber), errors.Is(err, pagination.ErrInvalidConfig):
		return nil, domain.NewAppError(domain.CodeValidation, "invalid page request", err)
	case err != nil:
		return nil, mapError(err)
	}
	return result, nil
}

// Update re-reads the record inside a transaction, lets apply edit it and
// saves it. A *domain.AppError returned by apply passes through unchanged.
func (r *userRepository) Update(ctx context.Context, id uint, apply func(user *domain.User) error) (*domain.User, error) {
	var user domain.User
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Take(&user, id).Error; err != nil {
			return mapError(err)
		}
		if err := apply(&user); err != nil {
			return err
		}
		return mapError(tx.Save(&user).Error)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&domain.User{}, id)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// mapError turns GORM and driver errors into *domain.AppError. Errors that
// already are one are returned unchanged.
func mapError(err error) error {
	var appErr *domain.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return domain.NewAppError(domain.CodeAlreadyExists, "username already exists", err)
	default:
		return domain.NewAppError(domain.CodeInternal, "database error", err)
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range uniqueViolations {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
