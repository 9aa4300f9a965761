package inventory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lockQuery      = regexp.QuoteMeta(`SELECT name, price, currency, quantity, active FROM variants WHERE id = $1 FOR UPDATE`)
	decrementQuery = regexp.QuoteMeta(`UPDATE variants SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2 AND quantity >= $1`)
	restoreQuery   = regexp.QuoteMeta(`UPDATE variants SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2`)
)

func variantRow(name string, price int64, qty int64, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "price", "currency", "quantity", "active"}).
		AddRow(name, price, "IDR", qty, active)
}

func TestPostgresLedger_Reserve_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(lockQuery).WithArgs(int64(7)).WillReturnRows(variantRow("Shirt M", 50000, 2, true))
	mock.ExpectExec(decrementQuery).WithArgs(int64(1), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := NewPostgresLedger(db).Reserve(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, Reservation{VariantID: 7, Quantity: 1, Name: "Shirt M", UnitPrice: 50000, Currency: "IDR"}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_Shortage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(lockQuery).WithArgs(int64(8)).WillReturnRows(variantRow("Shirt L", 30000, 0, true))

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 8, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_DisabledVariant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(lockQuery).WithArgs(int64(9)).WillReturnRows(variantRow("Old", 100, 10, false))

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 9, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_MissingVariant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(lockQuery).WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "price", "currency", "quantity", "active"}))

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 404, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_GuardRejectsDecrement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(lockQuery).WithArgs(int64(7)).WillReturnRows(variantRow("Shirt M", 50000, 1, true))
	mock.ExpectExec(decrementQuery).WithArgs(int64(1), int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_InvalidQuantity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 7, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("connection reset")
	mock.ExpectQuery(lockQuery).WithArgs(int64(7)).WillReturnError(dbErr)

	_, err = NewPostgresLedger(db).Reserve(context.Background(), 7, 1)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrInsufficientStock)
}

func TestPostgresLedger_Release(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(restoreQuery).WithArgs(int64(2), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(restoreQuery).WithArgs(int64(1), int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))

	ledger := NewPostgresLedger(db)
	require.NoError(t, ledger.Release(context.Background(), Reservation{VariantID: 7, Quantity: 2}))

	err = ledger.Release(context.Background(), Reservation{VariantID: 99, Quantity: 1})
	assert.ErrorIs(t, err, ErrVariantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
