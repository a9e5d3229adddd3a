package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestWrapQueryError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "not a query error", err: plain, wantIs: plain},
		{
			name:   "conflict",
			err:    &surrealdb.QueryError{Message: "Transaction conflict: Resource busy"},
			wantIs: ErrTransactionConflict,
		},
		{
			name:   "wrapped duplicate index entry",
			err:    fmt.Errorf("query: %w", &surrealdb.QueryError{Message: "Database index `annotation_key` already contains"}),
			wantIs: nil,
		},
		{
			name:   "record already exists",
			err:    &surrealdb.QueryError{Message: "Database record `annotation:x` already exists"},
			wantIs: ErrTransactionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapQueryError(tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			assert.Error(t, got)
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			} else {
				assert.NotErrorIs(t, got, ErrTransactionConflict)
			}
		})
	}
}
