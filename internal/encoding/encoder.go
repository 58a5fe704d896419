package encoding

import (
	"bytes"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// bufferPool recycles encode buffers across requests
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Marshal encodes v without HTML escaping or a trailing newline
func Marshal(v interface{}) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// MarshalString is Marshal for text columns
func MarshalString(v interface{}) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Unmarshal decodes data into v
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// UnmarshalString decodes a text column into v; empty input leaves v untouched
func UnmarshalString(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// JSON writes v as the response body using go-json
func JSON(c *gin.Context, status int, v interface{}) {
	data, err := Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}
