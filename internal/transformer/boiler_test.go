package transformer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_MapsNativeFields(t *testing.T) {
	raw := []byte(`{"temp_ida":-127,"temp_retorno":40,"deltaT":5,"vazao_L_s":0.5,"potencia_kW":10,"energia_kWh":2}`)

	r, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.TempSupply)
	assert.Equal(t, 40.0, r.TempReturn)
	assert.Equal(t, 5.0, r.DeltaT)
	assert.Equal(t, 0.5, r.FlowRateLS)
	assert.Equal(t, 10.0, r.PowerKW)
	assert.Equal(t, 2.0, r.EnergyKWh)
	assert.Empty(t, r.DeviceID)
	assert.True(t, r.ObservedAt.IsZero())
}

func TestNormalize_ProbeFaultSentinel(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantSupply float64
		wantReturn float64
	}{
		{"supply faulty", `{"temp_ida":-127,"temp_retorno":55.5}`, 0, 55.5},
		{"return faulty", `{"temp_ida":70.25,"temp_retorno":-127}`, 70.25, 0},
		{"both faulty", `{"temp_ida":-127,"temp_retorno":-127}`, 0, 0},
		{"sentinel as string", `{"temp_ida":"-127","temp_retorno":"-127.0"}`, 0, 0},
		{"negative but not sentinel", `{"temp_ida":-12.5,"temp_retorno":-126.9}`, -12.5, -126.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSupply, r.TempSupply)
			assert.Equal(t, tt.wantReturn, r.TempReturn)
		})
	}
}

func TestNormalize_MissingAndInvalidFieldsDefaultToZero(t *testing.T) {
	raw := []byte(`{"temp_ida":null,"deltaT":"abc","vazao_L_s":true,"potencia_kW":"12.5","energia_kWh":"NaN"}`)

	r, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.TempSupply)
	assert.Equal(t, 0.0, r.TempReturn)
	assert.Equal(t, 0.0, r.DeltaT)
	assert.Equal(t, 0.0, r.FlowRateLS)
	assert.Equal(t, 12.5, r.PowerKW)
	assert.Equal(t, 0.0, r.EnergyKWh)
}

func TestNormalize_OutOfRangeNumberZeroesOnlyThatField(t *testing.T) {
	raw := []byte(`{"temp_ida":70,"temp_retorno":60,"potencia_kW":1e400,"energia_kWh":-1e400,"vazao_L_s":0.25}`)

	r, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.PowerKW)
	assert.Equal(t, 0.0, r.EnergyKWh)
	assert.Equal(t, 70.0, r.TempSupply)
	assert.Equal(t, 60.0, r.TempReturn)
	assert.Equal(t, 0.25, r.FlowRateLS)
}

func TestNormalize_EmptyObject(t *testing.T) {
	r, err := Normalize([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.PowerKW)
}

func TestNormalize_ParseErrors(t *testing.T) {
	inputs := []string{
		``,
		`   `,
		`not json`,
		`{"temp_ida": 1`,
		`[1,2,3]`,
		`42`,
		`"string"`,
		`null`,
		`{"temp_ida":1} trailing`,
	}

	for _, in := range inputs {
		_, err := Normalize([]byte(in))
		require.Error(t, err, "input %q", in)

		var perr *ParseError
		assert.True(t, errors.As(err, &perr), "input %q should yield ParseError", in)
	}
}
