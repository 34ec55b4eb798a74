package pkg

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// WithTx runs fn in a transaction bound to ctx. The transaction commits
// only if fn returns nil; a failed rollback is joined to fn's error. A panic
// in fn rolls back and re-panics.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rbErr := tx.Rollback().Error
		if r := recover(); r != nil {
			panic(r)
		}
		if rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit().Error
}
