package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/sdk"
	"github.com/opst/mlcommons/pkg/utils/retry"
	"github.com/opst/mlcommons/pkg/wire"
)

const (
	// HeaderWireVersion carries the wire version id the body is encoded with.
	HeaderWireVersion = "X-Wire-Version"

	// PathPrefix is where node transport is served.
	PathPrefix = "/_transport"
)

// Transport sends a request to a node and returns its response to be read.
type Transport interface {
	Send(ctx context.Context, node DiscoveryNode, action string, req wire.Writeable) (*wire.StreamInput, error)
}

// Call sends req, then reads the response with read.
func Call[R any](
	ctx context.Context, t Transport, node DiscoveryNode, action string,
	req wire.Writeable, read func(*wire.StreamInput) (R, error),
) (R, error) {
	in, err := t.Send(ctx, node, action, req)
	if err != nil {
		return *new(R), err
	}
	resp, err := read(in)
	if err != nil {
		return *new(R), xe.WrapWithNote(fmt.Sprintf("reading response of %s from %s", action, node.Id), err)
	}
	return resp, nil
}

func versionHeader(v wire.Version) string {
	return strconv.FormatInt(int64(v.Id()), 10)
}

// ParseVersionHeader reads a value of HeaderWireVersion.
//
// Versions out of [wire.Minimum, wire.Current] are rejected.
func ParseVersionHeader(value string) (wire.Version, error) {
	id, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return wire.Version{}, fmt.Errorf("%w: %s", ErrIncompatibleVersion, value)
	}
	v := wire.VersionFromId(int32(id))
	if v.Before(wire.Minimum) || wire.Current.Before(v) {
		return wire.Version{}, fmt.Errorf("%w: %s", ErrIncompatibleVersion, v)
	}
	return v, nil
}

var ErrIncompatibleVersion = errors.New("incompatible wire version")

// HTTPTransport sends requests to other nodes over HTTP.
//
// Each request carries a token signed with the shared secret.
// Before the first request to a node, it asks the node for its wire version,
// and encodes requests with older one of the node's and its own.
type HTTPTransport struct {
	localNodeId string
	secret      []byte
	client      *http.Client
	attempts    int
	interval    time.Duration
	versions    sync.Map // node id -> wire.Version
	now         func() time.Time
}

type TransportOption func(*HTTPTransport) *HTTPTransport

func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) *HTTPTransport {
		t.client = client
		return t
	}
}

// WithRetry makes requests be tried up to attempts times, waiting interval between them.
//
// Only failures to connect and 503 responses are retried.
func WithRetry(attempts int, interval time.Duration) TransportOption {
	return func(t *HTTPTransport) *HTTPTransport {
		t.attempts = attempts
		t.interval = interval
		return t
	}
}

func NewHTTPTransport(localNodeId string, secret []byte, options ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		localNodeId: localNodeId,
		secret:      secret,
		client:      http.DefaultClient,
		attempts:    3,
		interval:    200 * time.Millisecond,
		now:         time.Now,
	}
	for _, opt := range options {
		t = opt(t)
	}
	return t
}

var _ Transport = &HTTPTransport{}

func (t *HTTPTransport) endpoint(node DiscoveryNode, action string) string {
	base := strings.TrimSuffix(node.Address, "/") + PathPrefix
	if action == "" {
		return base
	}
	return base + "/" + url.PathEscape(action)
}

// do sends a request built by newReq, retrying when it is worth.
func (t *HTTPTransport) do(ctx context.Context, node DiscoveryNode, newReq func() (*http.Request, error)) (*http.Response, error) {
	return retry.Attempts(ctx, t.attempts, retry.StaticBackoff(t.interval), func(ctx context.Context) (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		token, err := IssueToken(t.secret, t.localNodeId, node.Id, t.now())
		if err != nil {
			return nil, xe.Wrap(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Join(retry.ErrRetry, err)
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, errors.Join(retry.ErrRetry, statusError(resp.StatusCode, body))
		}
		return resp, nil
	})
}

// Version tells the wire version of node, asking it on the first time.
func (t *HTTPTransport) Version(ctx context.Context, node DiscoveryNode) (wire.Version, error) {
	if v, ok := t.versions.Load(node.Id); ok {
		return v.(wire.Version), nil
	}

	resp, err := t.do(ctx, node, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint(node, ""), nil)
	})
	if err != nil {
		return wire.Version{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.Version{}, xe.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return wire.Version{}, statusError(resp.StatusCode, body)
	}

	peer, err := strconv.ParseInt(resp.Header.Get(HeaderWireVersion), 10, 32)
	if err != nil {
		return wire.Version{}, fmt.Errorf("%w: %s", ErrIncompatibleVersion, resp.Header.Get(HeaderWireVersion))
	}
	v := wire.Min(wire.Current, wire.VersionFromId(int32(peer)))
	if v.Before(wire.Minimum) {
		return wire.Version{}, fmt.Errorf("%w: %s", ErrIncompatibleVersion, v)
	}
	t.versions.Store(node.Id, v)
	return v, nil
}

// Forget drops the cached version of a node. Call it when the node leaves.
func (t *HTTPTransport) Forget(nodeId string) {
	t.versions.Delete(nodeId)
}

func (t *HTTPTransport) Send(ctx context.Context, node DiscoveryNode, action string, req wire.Writeable) (*wire.StreamInput, error) {
	version, err := t.Version(ctx, node)
	if err != nil {
		return nil, err
	}
	payload, err := wire.Marshal(req, version)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	resp, err := t.do(ctx, node, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(node, action), bytes.NewReader(payload))
		if err != nil {
			return nil, xe.Wrap(err)
		}
		r.Header.Set("Content-Type", "application/octet-stream")
		r.Header.Set(HeaderWireVersion, versionHeader(version))
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	in := wire.NewStreamInput(body)
	in.SetVersion(version)
	return in, nil
}

// statusError restores an error sent by TransportHandler.
func statusError(status int, body []byte) error {
	msg := struct {
		Message string `json:"message"`
	}{}
	if err := json.Unmarshal(body, &msg); err != nil || msg.Message == "" {
		msg.Message = strings.TrimSpace(string(body))
	}
	if msg.Message == "" {
		msg.Message = http.StatusText(status)
	}
	return sdk.NewStatusError(status, "%s", msg.Message)
}

// loopback dispatches requests for the local node to its own handlers.
type loopback struct {
	localNodeId string
	lookup      Lookup
	next        Transport
}

// Loopback returns a Transport which calls handlers in lookup directly for the local node,
// and passes requests for other nodes to next.
//
// Requests and responses are still encoded, so that handlers see the same input as over network.
func Loopback(localNodeId string, lookup Lookup, next Transport) Transport {
	return &loopback{localNodeId: localNodeId, lookup: lookup, next: next}
}

func (l *loopback) Send(ctx context.Context, node DiscoveryNode, action string, req wire.Writeable) (*wire.StreamInput, error) {
	if node.Id != l.localNodeId {
		if l.next == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node.Id)
		}
		return l.next.Send(ctx, node, action, req)
	}

	handler, ok := l.lookup.Lookup(action)
	if !ok {
		return nil, sdk.NewStatusError(http.StatusNotFound, "no handler for action [%s]", action)
	}
	payload, err := wire.Marshal(req, wire.Current)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	resp, err := handler(ctx, wire.NewStreamInput(payload))
	if err != nil {
		return nil, err
	}
	out, err := wire.Marshal(resp, wire.Current)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return wire.NewStreamInput(out), nil
}
