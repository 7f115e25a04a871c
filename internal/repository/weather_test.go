package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"boiler-telemetry/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupWeatherRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *WeatherRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewWeatherRepository(db, zap.NewNop())
}

func TestCondominiumAddress(t *testing.T) {
	db, mock, repo := setupWeatherRepo(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT endereco FROM condominios`)).
		WithArgs("condo-1").
		WillReturnRows(sqlmock.NewRows([]string{"endereco"}).AddRow("Av. Paulista, 1000, São Paulo"))

	address, err := repo.CondominiumAddress(context.Background(), "condo-1")
	require.NoError(t, err)
	assert.Equal(t, "Av. Paulista, 1000, São Paulo", address)
}

func TestCondominiumAddress_MissingOrEmpty(t *testing.T) {
	db, mock, repo := setupWeatherRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT endereco`).
		WithArgs("condo-1").
		WillReturnRows(sqlmock.NewRows([]string{"endereco"}))
	mock.ExpectQuery(`SELECT endereco`).
		WithArgs("condo-2").
		WillReturnRows(sqlmock.NewRows([]string{"endereco"}).AddRow(nil))

	_, err := repo.CondominiumAddress(context.Background(), "condo-1")
	assert.ErrorIs(t, err, ErrCondominiumNotFound)

	_, err = repo.CondominiumAddress(context.Background(), "condo-2")
	assert.ErrorIs(t, err, ErrCondominiumNotFound)
}

func TestWeatherInsertSample(t *testing.T) {
	db, mock, repo := setupWeatherRepo(t)
	defer db.Close()

	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dados_meteorologicos`)).
		WithArgs("condo-1", at, 18.5, 70.0, 1015.0, 3.2, "nublado").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertSample(context.Background(), models.AmbientSample{
		CondominiumID: "condo-1",
		Temperature:   18.5,
		Humidity:      70,
		Pressure:      1015,
		WindSpeed:     3.2,
		Description:   "nublado",
		ObservedAt:    at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeatherListRecent(t *testing.T) {
	db, mock, repo := setupWeatherRepo(t)
	defer db.Close()

	t2 := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	t1 := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"condominio_id", "reading_time", "temperatura_ambiente",
		"umidade", "pressao", "velocidade_vento", "descricao",
	}).
		AddRow("condo-1", t2, 24.0, 60.0, 1012.0, 2.0, "céu limpo").
		AddRow("condo-1", t1, 18.0, nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dados_meteorologicos`)).
		WithArgs("condo-1", 2).
		WillReturnRows(rows)

	samples, err := repo.ListRecent(context.Background(), "condo-1", 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 24.0, samples[0].Temperature)
	assert.Equal(t, 18.0, samples[1].Temperature)
	assert.Equal(t, "", samples[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
