package echoutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// LogHandlerFunc logs each request and its response.
//
// Responses with 5xx status are logged as error, 4xx as warn, and others as info.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		meth := c.Request().Method
		path := c.Request().URL
		BEGIN := time.Now()
		c.Logger().Debugf("< request @[%s] %s %s", BEGIN, meth, path)

		err := next(c)

		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		} else if err != nil {
			status = http.StatusInternalServerError
		}

		END := time.Now()
		format := "> response status = %d (for request @[%s] %s %s) in %v / error = %+v"
		switch {
		case 500 <= status:
			c.Logger().Errorf(format, status, BEGIN, meth, path, END.Sub(BEGIN), err)
		case 400 <= status:
			c.Logger().Warnf(format, status, BEGIN, meth, path, END.Sub(BEGIN), err)
		default:
			c.Logger().Infof(format, status, BEGIN, meth, path, END.Sub(BEGIN), err)
		}
		return err
	}
}

// ParseLevel parses a log level name: debug, info, warn, error or off.
//
// An empty name is info.
func ParseLevel(loglevel string) (log.Lvl, error) {
	switch strings.ToLower(loglevel) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	default:
		return log.INFO, fmt.Errorf("unknown loglevel: %s", loglevel)
	}
}

// SetLevel sets the level to the logger of echo and other loggers.
func SetLevel(e *echo.Echo, lvl log.Lvl, loggers ...*log.Logger) {
	e.Logger.SetLevel(lvl)
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}
