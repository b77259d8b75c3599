// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	gssapi "github.com/golang-auth/go-gssnegotiate"
	"github.com/golang-auth/go-gssnegotiate/negotiate"
)

// SpnFunc is a function that returns the service name for a given URL.
type SpnFunc func(url url.URL) string

func defaultSpnFunc(url url.URL) string {
	return "HTTP@" + url.Hostname()
}

// DefaultSpnFunc is the default SPN function used for new transports.
var DefaultSpnFunc SpnFunc = defaultSpnFunc

// OpportunisticFunc returns true if opportunistic authentication should be used for a given URL.
type OpportunisticFunc func(url url.URL) bool

func opportunisticFuncAlways(url.URL) bool {
	return true
}

var (
	ErrMutualFailed  = errors.New("mutual authentication requested but not completed")
	ErrBodyNotReplayable = errors.New("request body cannot be resent after a Negotiate challenge")
)

// Transport is a http.RoundTripper that adds Negotiate (RFC 4559) authentication.
type Transport struct {
	transport http.RoundTripper
	provider  gssapi.Provider

	spnFunc            SpnFunc
	opportunisticFunc  OpportunisticFunc
	mutual             bool
	delegate           bool
	expect100Threshold int64
	httpLogging        bool

	logger *slog.Logger
	opts   []negotiate.Option
}

// ClientOption is a function that configures a Transport
type ClientOption func(t *Transport)

// WithInitiatorOpportunistic sends a token with the first request instead of waiting
// for a 401 challenge.  This saves a round trip at the cost of starting a negotiation,
// and exposing credentials, for URLs that may not need it.
func WithInitiatorOpportunistic() ClientOption {
	return func(t *Transport) {
		t.opportunisticFunc = opportunisticFuncAlways
	}
}

// WithInitiatorOpportunisticFunc selects the URLs that use opportunistic authentication.
func WithInitiatorOpportunisticFunc(f OpportunisticFunc) ClientOption {
	return func(t *Transport) {
		t.opportunisticFunc = f
	}
}

// WithInitiatorMutual requests mutual authentication.  A response that does not carry
// the server's final token is then an error.
func WithInitiatorMutual() ClientOption {
	return func(t *Transport) {
		t.mutual = true
	}
}

// WithInitiatorDelegation asks the provider to delegate the client's credentials.
func WithInitiatorDelegation() ClientOption {
	return func(t *Transport) {
		t.delegate = true
	}
}

// WithInitiatorCredential authenticates with cred instead of the default credential.
func WithInitiatorCredential(cred gssapi.Credential) ClientOption {
	return func(t *Transport) {
		t.opts = append(t.opts, negotiate.WithCredential(cred))
	}
}

// WithInitiatorSpnFunc provides the service name for a URL.  The default is "HTTP@"
// followed by the URL's host name.
func WithInitiatorSpnFunc(f SpnFunc) ClientOption {
	return func(t *Transport) {
		t.spnFunc = f
	}
}

// WithInitiatorExpect100Threshold adds an Expect: 100-continue header to requests
// without opportunistic authentication whose body is larger than threshold, or cannot
// be rewound.  Zero, the default, disables the header.
func WithInitiatorExpect100Threshold(threshold int64) ClientOption {
	return func(t *Transport) {
		t.expect100Threshold = threshold
	}
}

// WithInitiatorRoundTripper sets the round tripper that sends the requests.
func WithInitiatorRoundTripper(rt http.RoundTripper) ClientOption {
	return func(t *Transport) {
		t.transport = rt
	}
}

// WithInitiatorLogger sets the logger for debug output.
func WithInitiatorLogger(l *slog.Logger) ClientOption {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithInitiatorHTTPLogging logs request and response headers, and connection events,
// at debug level.
func WithInitiatorHTTPLogging() ClientOption {
	return func(t *Transport) {
		t.httpLogging = true
	}
}

// WithInitiatorOptions passes extra options to each negotiate.Client.
func WithInitiatorOptions(opts ...negotiate.Option) ClientOption {
	return func(t *Transport) {
		t.opts = append(t.opts, opts...)
	}
}

// NewTransport returns a Transport wrapping [http.DefaultTransport] unless
// [WithInitiatorRoundTripper] is given.
func NewTransport(p gssapi.Provider, options ...ClientOption) *Transport {
	t := &Transport{
		transport: http.DefaultTransport,
		provider:  p,
		spnFunc:   DefaultSpnFunc,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// NewClient returns a copy of client, or of [http.DefaultClient], that authenticates
// with a [Transport] wrapping the client's own transport.
func NewClient(p gssapi.Provider, client *http.Client, options ...ClientOption) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	if client.Transport != nil {
		options = append([]ClientOption{WithInitiatorRoundTripper(client.Transport)}, options...)
	}

	c := *client
	c.Transport = NewTransport(p, options...)
	return &c
}

func (t *Transport) flags() gssapi.ContextFlag {
	flags := gssapi.ContextFlagInteg
	if t.mutual {
		flags |= gssapi.ContextFlagMutual
	}
	if t.delegate {
		flags |= gssapi.ContextFlagDeleg
	}
	return flags
}

func (t *Transport) newClient(req *http.Request) (*negotiate.Client, error) {
	opts := append([]negotiate.Option{negotiate.WithLogger(t.logger)}, t.opts...)
	return negotiate.NewClient(t.provider, t.spnFunc(*req.URL), t.flags(), opts...)
}

// step feeds the server's challenge to the client and returns the token to send, if any.
func step(c *negotiate.Client, challenge string) (string, error) {
	res := c.Step(challenge)
	if res.Status == negotiate.StatusError {
		return "", fmt.Errorf("negotiate: %w", res.Err)
	}
	return res.Token, nil
}

func setAuthorization(req *http.Request, token string) {
	req.Header.Set("Authorization", scheme+" "+token)
}

func (t *Transport) setExpect100(req *http.Request) {
	if t.expect100Threshold <= 0 || req.Body == nil || req.Body == http.NoBody {
		return
	}
	if req.ContentLength > t.expect100Threshold || req.GetBody == nil {
		t.logger.Debug("using Expect: 100-continue", "content_length", req.ContentLength)
		req.Header.Set("Expect", "100-continue")
	}
}

func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return ErrBodyNotReplayable
	}

	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (t *Transport) send(req *http.Request) (*http.Response, error) {
	if t.httpLogging {
		t.logRequest(req)
	}
	resp, err := t.transport.RoundTrip(req)
	if err == nil && t.httpLogging {
		t.logResponse(resp)
	}
	return resp, err
}

// RoundTrip implements [http.RoundTripper].  It sends the request, answering Negotiate
// challenges until the server returns a final response.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// a RoundTripper must not modify the caller's request
	req = req.Clone(req.Context())
	if t.httpLogging {
		req = t.traceRequest(req)
	}

	var c *negotiate.Client
	defer func() {
		if c != nil {
			c.Clean()
		}
	}()

	if t.opportunisticFunc != nil && t.opportunisticFunc(*req.URL) {
		var err error
		if c, err = t.newClient(req); err != nil {
			return nil, err
		}
		token, err := step(c, "")
		if err != nil {
			return nil, err
		}
		if token != "" {
			setAuthorization(req, token)
		}
	} else {
		t.setExpect100(req)
	}

	for {
		resp, err := t.send(req)
		if err != nil {
			return nil, err
		}

		challenge, found, err := negotiateChallenge(resp.Header)
		if err != nil {
			discard(resp)
			return nil, err
		}

		if resp.StatusCode != http.StatusUnauthorized {
			return t.finish(c, resp, challenge, found)
		}

		// a 401 with nothing to answer is returned to the caller
		if !found || (c != nil && (challenge == "" || c.Established())) {
			return resp, nil
		}

		if c == nil {
			if c, err = t.newClient(req); err != nil {
				discard(resp)
				return nil, err
			}
		}

		token, err := step(c, challenge)
		if err != nil {
			discard(resp)
			return nil, err
		}
		if token == "" {
			return resp, nil
		}

		// the response must be finished with before the request is reused
		discard(resp)
		setAuthorization(req, token)
		if err := rewind(req); err != nil {
			return nil, err
		}
	}
}

// finish processes the server's final token, if any, and checks mutual authentication.
func (t *Transport) finish(c *negotiate.Client, resp *http.Response, challenge string, found bool) (*http.Response, error) {
	if c == nil {
		return resp, nil
	}

	if found && challenge != "" && !c.Established() {
		res := c.Step(challenge)
		if res.Status == negotiate.StatusError {
			discard(resp)
			return nil, fmt.Errorf("negotiate: %w", res.Err)
		}
	}

	if t.mutual && !c.Established() {
		discard(resp)
		return nil, ErrMutualFailed
	}

	t.logger.Debug("negotiate authentication finished", "established", c.Established(), "principal", c.Username())
	return resp, nil
}
