package transformer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"boiler-telemetry/internal/models"
)

// 设备原生字段名（固件上报的 JSON 键）
const (
	FieldTempSupply = "temp_ida"
	FieldTempReturn = "temp_retorno"
	FieldDeltaT     = "deltaT"
	FieldFlowRate   = "vazao_L_s"
	FieldPower      = "potencia_kW"
	FieldEnergy     = "energia_kWh"
)

// ProbeFaultSentinel DS18B20 探头断线时上报的固定值
const ProbeFaultSentinel = -127.0

// ParseError 入站消息无法解析为结构化数据
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse telemetry: %s: %v", e.Reason, e.Err)
	}
	return "parse telemetry: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Normalize 将原始 MQTT 负载转换为标准读数
// DeviceID 与 ObservedAt 由调用方注入
func Normalize(raw []byte) (models.CanonicalReading, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return models.CanonicalReading{}, &ParseError{Reason: "empty payload"}
	}

	payload, err := decodeObject(raw)
	if err != nil {
		return models.CanonicalReading{}, &ParseError{Reason: "invalid json object", Err: err}
	}
	if payload == nil {
		return models.CanonicalReading{}, &ParseError{Reason: "payload is null"}
	}

	return models.CanonicalReading{
		TempSupply: sanitizeTemperature(numberField(payload, FieldTempSupply)),
		TempReturn: sanitizeTemperature(numberField(payload, FieldTempReturn)),
		DeltaT:     numberField(payload, FieldDeltaT),
		FlowRateLS: numberField(payload, FieldFlowRate),
		PowerKW:    numberField(payload, FieldPower),
		EnergyKWh:  numberField(payload, FieldEnergy),
	}, nil
}

// decodeObject 数值保留为 json.Number，超出 float64 范围的字段单独归零
func decodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after json object")
	}
	return payload, nil
}

func sanitizeTemperature(v float64) float64 {
	if v == ProbeFaultSentinel {
		return 0
	}
	return v
}

// numberField 缺失、null 或非数值字段一律视为 0
func numberField(payload map[string]interface{}, key string) float64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, err := parseFloat(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseFloat(v interface{}) (float64, error) {
	switch val := v.(type) {
	case json.Number:
		return strconv.ParseFloat(val.String(), 64)
	case float64:
		return val, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
