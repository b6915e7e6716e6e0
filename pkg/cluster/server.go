package cluster

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/wire"
)

// Handler serves an action. It reads a request from in, and returns a response to be written.
type Handler func(ctx context.Context, in *wire.StreamInput) (wire.Writeable, error)

// Lookup finds a Handler for an action name.
type Lookup interface {
	Lookup(action string) (Handler, bool)
}

const issuerKey = "cluster.issuer"

// Authenticate is a middleware rejecting requests without a valid token for localNodeId.
func Authenticate(localNodeId string, secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "bearer token is required")
			}
			claims, err := VerifyToken(secret, localNodeId, token)
			if err != nil {
				c.Logger().Warnf("rejected transport request: %s", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(issuerKey, claims.Issuer)
			return next(c)
		}
	}
}

// HandshakeHandler tells the wire version of this node.
func HandshakeHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(HeaderWireVersion, versionHeader(wire.Current))
		return c.NoContent(http.StatusNoContent)
	}
}

// TransportHandler dispatches a request to the handler for the action in path parameter "action".
//
// The request body is read with the version in HeaderWireVersion, and the response is written with the same version.
func TransportHandler(lookup Lookup) echo.HandlerFunc {
	return func(c echo.Context) error {
		action, err := url.PathUnescape(c.Param("action"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed action name")
		}
		handler, ok := lookup.Lookup(action)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "no handler for action ["+action+"]")
		}

		version, err := ParseVersionHeader(c.Request().Header.Get(HeaderWireVersion))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read request").SetInternal(err)
		}
		in := wire.NewStreamInput(body)
		in.SetVersion(version)

		resp, err := handler(c.Request().Context(), in)
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			c.Logger().Errorf("action [%s] from %v failed: %s", action, c.Get(issuerKey), err)
			return echo.NewHTTPError(sdk.StatusOf(err), err.Error())
		}

		payload, err := wire.Marshal(resp, version)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to encode response").SetInternal(err)
		}
		c.Response().Header().Set(HeaderWireVersion, versionHeader(version))
		return c.Blob(http.StatusOK, "application/octet-stream", payload)
	}
}

// Route registers transport endpoints on e.
func Route(e *echo.Echo, localNodeId string, secret []byte, lookup Lookup) {
	g := e.Group(PathPrefix, Authenticate(localNodeId, secret))
	g.GET("", HandshakeHandler())
	g.POST("/:action", TransportHandler(lookup))
}
