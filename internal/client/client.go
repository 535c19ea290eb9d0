// Package client implements the kstorctl side of the KStor wire
// protocol: open the UNIX socket, send exactly one request, read exactly
// one response, close (spec.md §6). Grounded on caller.MetaLockerHTTPCaller
// (cmd/metalo's HTTP equivalent of this role) for the "thin transport +
// typed Call wrapper" shape, adapted from HTTP+JSON to one UNIX
// connection per request.
package client

import (
	"context"
	"fmt"
	"net"

	"kstor/internal/jsonw"
	"kstor/internal/wire"
)

// Client remembers the socket path and the credentials or session id to
// attach to every outgoing request.
type Client struct {
	SocketPath string

	Login     string
	Password  string
	SessionID string
}

// New builds a Client authenticating with login+password.
func New(socketPath, login, password string) *Client {
	return &Client{SocketPath: socketPath, Login: login, Password: password}
}

// NewWithSession builds a Client authenticating with an existing session id.
func NewWithSession(socketPath, sessionID string) *Client {
	return &Client{SocketPath: socketPath, SessionID: sessionID}
}

// Call sends one request of the given type with args marshaled into its
// Args field, and decodes the response's Args into reply. It returns the
// decoded *wire.ErrorArgs via a *CallError when the server answers with
// type=error, and updates c.SessionID with whatever session id the
// response carries (spec.md §4.6's per-request session rotation).
func (c *Client) Call(ctx context.Context, reqType string, args, reply any) error {
	raw, err := jsonw.Marshal(args)
	if err != nil {
		return err
	}

	req := wire.Request{
		Type:      reqType,
		Args:      raw,
		Login:     c.Login,
		Password:  c.Password,
		SessionID: c.SessionID,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if err := jsonw.Encode(req, conn); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp wire.Response
	if err := jsonw.Decode(conn, &resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.SessionID != "" {
		// Once a session is established, every later request rides on it
		// alone (spec.md §6: "every request carries either login+password
		// or session_id").
		c.SessionID = resp.SessionID
		c.Login = ""
		c.Password = ""
	}

	if resp.Type == wire.TypeError {
		var errArgs wire.ErrorArgs
		if err := jsonw.Unmarshal(resp.Args, &errArgs); err != nil {
			return fmt.Errorf("decoding error response: %w", err)
		}
		return &CallError{Code: errArgs.Code, Message: errArgs.Message}
	}

	if reply == nil {
		return nil
	}
	return jsonw.Unmarshal(resp.Args, reply)
}

// CallError wraps the code/message pair a server error response carries.
type CallError struct {
	Code    string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
