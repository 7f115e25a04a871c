package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"
	_ "time/tzdata"

	"boiler-telemetry/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupReadingRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ReadingRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewReadingRepository(db, zap.NewNop())
}

var readingColumns = []string{
	"device_id", "reading_time", "temp_ida", "temp_retorno",
	"deltaT", "vazao_L_s", "potencia_kW", "energia_kWh",
}

func TestReadingInsert_Success(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	at := time.Date(2024, 5, 10, 14, 30, 0, 123456000, time.UTC)
	reading := models.CanonicalReading{
		DeviceID:   "boiler-1",
		ObservedAt: at,
		TempSupply: 0,
		TempReturn: 40,
		DeltaT:     5,
		FlowRateLS: 0.5,
		PowerKW:    10,
		EnergyKWh:  2,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO leituras_sensores`)).
		WithArgs("boiler-1", at, 0.0, 40.0, 5.0, 0.5, 10.0, 2.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), reading))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingInsert_WrapsError(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	dbErr := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO leituras_sensores`).WillReturnError(dbErr)

	err := repo.Insert(context.Background(), models.CanonicalReading{DeviceID: "boiler-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingListRecent_NullColumnsDefaultToZero(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	t2 := time.Date(2024, 5, 10, 14, 30, 5, 0, time.UTC)
	t1 := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(readingColumns).
		AddRow("boiler-1", t2, 70.5, 60.1, 10.4, 0.3, 12.0, 1.1).
		AddRow("boiler-1", t1, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY reading_time DESC`)).
		WithArgs("boiler-1", 100).
		WillReturnRows(rows)

	readings, err := repo.ListRecent(context.Background(), "boiler-1", 100)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, t2, readings[0].ObservedAt)
	assert.Equal(t, 70.5, readings[0].TempSupply)
	assert.Equal(t, 12.0, readings[0].PowerKW)

	assert.Equal(t, t1, readings[1].ObservedAt)
	assert.Equal(t, 0.0, readings[1].TempSupply)
	assert.Equal(t, 0.0, readings[1].PowerKW)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingListRecent_QueryError(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT device_id`).WillReturnError(sql.ErrConnDone)

	readings, err := repo.ListRecent(context.Background(), "boiler-1", 100)
	require.Error(t, err)
	assert.Nil(t, readings)
}

func TestReadingSumPower(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	from := time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM("potencia_kW"), 0), COUNT(*)`)).
		WithArgs("boiler-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(1000.0, 100))

	total, err := repo.SumPower(context.Background(), "boiler-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, total.PowerSum)
	assert.Equal(t, 100, total.Samples)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingDailyPower(t *testing.T) {
	db, mock, repo := setupReadingRepo(t)
	defer db.Close()

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	rows := sqlmock.NewRows([]string{"day", "sum", "count"}).
		AddRow("2024-05-01", 500.0, 50).
		AddRow("not-a-day", 1.0, 1).
		AddRow("2024-05-02", 250.5, 30)

	mock.ExpectQuery(regexp.QuoteMeta(`AT TIME ZONE $4`)).
		WithArgs("boiler-1", from, to, "America/Sao_Paulo").
		WillReturnRows(rows)

	days, err := repo.DailyPower(context.Background(), "boiler-1", from, to, loc)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Day.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, loc)))
	assert.Equal(t, 500.0, days[0].PowerSum)
	assert.Equal(t, 50, days[0].Samples)
	assert.Equal(t, 250.5, days[1].PowerSum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
