package view

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestFormatHelpers(t *testing.T) {
	funcs := FuncMap()
	assert.Equal(t, "1,250", funcs["formatInt"].(func(int) string)(1250))
	assert.Equal(t, "12,500,000.50", funcs["formatMoney"].(func(float64) string)(12500000.5))
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/missing.html", TemplateData{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))
}
