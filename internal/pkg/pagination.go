package pkg

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/staffdesk/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	defaultSort     = "id:desc"
	likeSuffix      = "__like"
)

var pagingParams = []string{"page", "page_size", "sort"}

var columnName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePageRequest reads page, page_size and sort from the query string.
// Every other non-empty parameter becomes a filter. fallbackSize is the
// page size used when the query names none; out of range it is replaced by
// DefaultPageSize.
func ParsePageRequest(c *gin.Context, fallbackSize int) domain.PageRequest {
	if fallbackSize < 1 || fallbackSize > MaxPageSize {
		fallbackSize = DefaultPageSize
	}

	req := domain.PageRequest{
		Page:     positiveQueryInt(c, "page", 1),
		PageSize: min(positiveQueryInt(c, "page_size", fallbackSize), MaxPageSize),
		Sort:     c.DefaultQuery("sort", defaultSort),
		Filter:   make(map[string]string),
	}
	for key, values := range c.Request.URL.Query() {
		if slices.Contains(pagingParams, key) || len(values) == 0 || values[0] == "" {
			continue
		}
		req.Filter[key] = values[0]
	}
	return req
}

func positiveQueryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Paginate is a GORM scope selecting limit rows after offset, the window a
// pagination.Paginator hands its slice callback.
func Paginate(offset, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(offset).Limit(limit)
	}
}

// Sort is a GORM scope ordering by req.Sort ("column:asc" or
// "column:desc"). Columns outside allowed leave the query unordered.
func Sort(req domain.PageRequest, allowed []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		col, dir, ok := strings.Cut(req.Sort, ":")
		if !ok {
			return db
		}
		col = strings.TrimSpace(col)
		if !allowedColumn(col, allowed) {
			return db
		}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc":
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}})
		case "desc":
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: true})
		default:
			return db
		}
	}
}

// Filter is a GORM scope matching req.Filter. A key with the "__like"
// suffix matches by substring, any other key by equality. Keys outside
// allowed are ignored.
func Filter(req domain.PageRequest, allowed []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			col, like := strings.CutSuffix(key, likeSuffix)
			if !allowedColumn(col, allowed) {
				continue
			}
			column := clause.Column{Name: col}
			if like {
				db = db.Where(clause.Like{Column: column, Value: "%" + value + "%"})
			} else {
				db = db.Where(clause.Eq{Column: column, Value: value})
			}
		}
		return db
	}
}

func allowedColumn(col string, allowed []string) bool {
	return columnName.MatchString(col) && slices.Contains(allowed, col)
}
