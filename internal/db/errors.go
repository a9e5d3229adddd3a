package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// This occurs when two writers save the same conversation concurrently.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested annotation does not exist.
	ErrNotFound = errors.New("annotation not found")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel. Errors that are not query errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") || strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
