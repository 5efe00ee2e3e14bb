package pgrepos

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core/passe"
)

var (
	passCols       = []string{"id", "user_id", "code", "updated_at", "active", "totp_secret"}
	validationCols = []string{"id", "pass_id", "user_id", "validator_id", "code", "method", "validated_at", "valid", "ip_address", "note"}
)

func TestPasseRepository_GetPass(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)
	code := "0b8e3c2a-2f7d-4c1e-9a55-3d8f0e6b7a41"

	mock.ExpectQuery(quote("FROM passes WHERE code = $1")).
		WithArgs(code).
		WillReturnRows(sqlmock.NewRows(passCols).AddRow(1, 2, code, tstamp, true, ""))

	p, err := repo.GetPass(context.Background(), passe.GetFilter{Code: code})
	require.NoError(t, err)
	assert.Equal(t, 2, p.UserID)
	assert.False(t, p.TOTPEnabled())

	mock.ExpectQuery(quote("FROM passes WHERE user_id = $1")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(passCols))
	_, err = repo.GetPass(context.Background(), passe.GetFilter{UserID: 3})
	assert.Equal(t, passe.ErrPassNotFound, err)
}

func TestPasseRepository_CreateValidation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)
	v := passe.Validation{
		Code:        "unknown",
		Method:      passe.MethodUUID,
		ValidatedAt: tstamp,
		Note:        "Código não encontrado",
	}

	mock.ExpectQuery(quote("INSERT INTO pass_validations")).
		WithArgs(nil, nil, nil, "unknown", passe.MethodUUID, tstamp, false, nil, "Código não encontrado").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	got, err := repo.CreateValidation(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, 12, got.ID)
}

func TestPasseRepository_ListValidations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)

	mock.ExpectQuery(quote("FROM pass_validations WHERE user_id = $1 AND valid ORDER BY validated_at DESC, id DESC LIMIT $2")).
		WithArgs(2, 5).
		WillReturnRows(sqlmock.NewRows(validationCols).
			AddRow(8, int64(1), int64(2), int64(4), "c", passe.MethodUUID, tstamp, true, "10.0.0.1", "").
			AddRow(7, int64(1), int64(2), nil, "c", passe.MethodTOTP, tstamp, true, nil, ""))

	vals, err := repo.ListValidations(context.Background(), passe.ValidationFilter{UserID: 2, ValidOnly: true, Limit: 5})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.NotNil(t, vals[0].ValidatorID)
	assert.Equal(t, 4, *vals[0].ValidatorID)
	assert.Equal(t, "10.0.0.1", vals[0].IPAddress)
	assert.Nil(t, vals[1].ValidatorID)
	assert.Equal(t, "", vals[1].IPAddress)
}

func TestPasseRepository_CountValidations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)

	mock.ExpectQuery(quote("FROM pass_validations WHERE validated_at >= $1")).
		WithArgs(tstamp).
		WillReturnRows(sqlmock.NewRows([]string{"total", "valid", "invalid"}).AddRow(10, 7, 3))

	counts, err := repo.CountValidations(context.Background(), tstamp)
	require.NoError(t, err)
	assert.Equal(t, passe.Counts{Total: 10, Valid: 7, Invalid: 3}, counts)
}

func TestPasseRepository_UpdatePass(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)

	mock.ExpectExec(quote("UPDATE passes SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := repo.UpdatePass(context.Background(), passe.Pass{ID: 1, UpdatedAt: tstamp})
	assert.Equal(t, passe.ErrPassNotFound, err)
}

func TestPasseRepository_RotateCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPasseRepository(db)
	q := quote("UPDATE passes SET code = $3, updated_at = $4 WHERE id = $1 AND code = $2 AND active")

	mock.ExpectExec(q).WithArgs(1, "old", "new", tstamp).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.RotateCode(context.Background(), 1, "old", "new", tstamp)
	require.NoError(t, err)
	assert.True(t, ok)

	// someone else rotated it first
	mock.ExpectExec(q).WithArgs(1, "old", "newer", tstamp).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.RotateCode(context.Background(), 1, "old", "newer", tstamp)
	require.NoError(t, err)
	assert.False(t, ok)
}
