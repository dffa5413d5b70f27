package database

import (
	"database/sql"
	"fmt"
)

// WithTransaction runs fn inside a transaction. It commits when fn returns nil
// and rolls back when fn returns an error or panics; a panic is returned as an error.
func WithTransaction(conn *sql.DB, fn func(*sql.Tx) error) (err error) {
	if conn == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback: %v)", err, rbErr)
				return
			}
			err = fmt.Errorf("transaction failed: %w", err)
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(tx)
}
