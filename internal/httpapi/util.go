package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// 阈值和切换设备请求体都很小
const maxBodyBytes = 1 << 16

const dayLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody 空请求体不算错误，out 保持零值
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// queryInt 缺失或非法时返回 def
func queryInt(q url.Values, name string, def int) int {
	i, err := strconv.Atoi(q.Get(name))
	if err != nil {
		return def
	}
	return i
}

// queryDay 解析 YYYY-MM-DD（loc 时区零点），缺失时返回 def
func queryDay(q url.Values, name string, def time.Time, loc *time.Location) (time.Time, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	return time.ParseInLocation(dayLayout, s, loc)
}
