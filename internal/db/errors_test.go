package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "appointments_active_slot_key"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "appointments_active_slot_key"))
	assert.False(t, IsUniqueViolation(err, "other_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: CodeUniqueViolation}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain", errors.New("syntax"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))

	err := Classify("reserve", &pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, err, ErrTransient)

	err = Classify("reserve", errors.New("bad input"))
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "reserve: bad input")
}
