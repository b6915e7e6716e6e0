package echoutil_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/opst/mlcommons/pkg/utils/echoutil"
)

func TestSetLevel(t *testing.T) {
	for when, then := range map[string]log.Lvl{
		"debug": log.DEBUG,
		"INFO":  log.INFO,
		"warn":  log.WARN,
		"":      log.WARN,
		"error": log.ERROR,
		"off":   log.OFF,
		"loud":  log.WARN,
	} {
		t.Run(when, func(t *testing.T) {
			e := echo.New()
			buf := new(bytes.Buffer)
			e.Logger.SetOutput(buf)
			echoutil.SetLevel(e, when)
			if got := e.Logger.Level(); got != then {
				t.Errorf("expected %v, but %v", then, got)
			}
			if unknown := strings.Contains(buf.String(), "unknown loglevel: "+when); unknown != (when == "loud") {
				t.Errorf("unexpected log: %s", buf.String())
			}
		})
	}
}

func TestLogHandlerFunc(t *testing.T) {
	e := echo.New()
	buf := new(bytes.Buffer)
	e.Logger.SetOutput(buf)
	e.Logger.SetLevel(log.INFO)
	e.Use(echoutil.LogHandlerFunc)
	e.GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if resp.Code != http.StatusNoContent {
		t.Errorf("unexpected status: %d", resp.Code)
	}
	if !strings.Contains(buf.String(), "> response status = 204") {
		t.Errorf("unexpected log: %s", buf.String())
	}
}
