package encoding

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type breakdownRow struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMarshal(t *testing.T) {
	data, err := Marshal([]breakdownRow{{Name: "Story & Plot", Value: 4.5}})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Story & Plot","value":4.5}]`, string(data), "no html escaping, no newline")
}

func TestMarshalString_RoundTrip(t *testing.T) {
	in := []breakdownRow{{Name: "Craft", Value: 3.8}, {Name: "Story", Value: 4.5}}

	s, err := MarshalString(in)
	require.NoError(t, err)

	var out []breakdownRow
	require.NoError(t, UnmarshalString(s, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalString_Empty(t *testing.T) {
	out := []breakdownRow{{Name: "keep"}}
	require.NoError(t, UnmarshalString("", &out))
	assert.Len(t, out, 1)
}

func TestUnmarshal_Invalid(t *testing.T) {
	var out map[string]interface{}
	assert.Error(t, Unmarshal([]byte("{broken"), &out))
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := Marshal(map[string]int{"n": i})
			assert.NoError(t, err)

			var out map[string]int
			assert.NoError(t, Unmarshal(data, &out))
			assert.Equal(t, i, out["n"])
		}(i)
	}
	wg.Wait()
}

func TestJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	JSON(c, http.StatusCreated, gin.H{"score": 4.25})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"score":4.25}`, w.Body.String())
}
