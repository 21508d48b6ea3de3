// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/clipboard"
)

const (
	portalDest     = "org.freedesktop.portal.Desktop"
	portalPath     = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	portalOpenURI  = "org.freedesktop.portal.OpenURI.OpenURI"
	portalRequest  = "org.freedesktop.portal.Request"
	portalResponse = portalRequest + ".Response"
	requestPrefix  = "/org/freedesktop/portal/desktop/request/"
	tokenPrefix    = "waybar_locshare"

	// ResponseTimeout bounds how long the portal waits for the user to pick a handler.
	ResponseTimeout = 2 * time.Minute

	responseSuccess   uint32 = 0
	responseCancelled uint32 = 1
)

var (
	ErrEmptyMessage = errors.New("share message is empty")
	ErrNotURI       = errors.New("share message is not an absolute URI")
	ErrCancelled    = errors.New("share was cancelled")
	ErrShareFailed  = errors.New("share was not completed")
)

// Message is the content handed to the platform share facility.
type Message struct {
	Message string
}

// Sharer hands a message to a share facility. Implementations report failures to the caller,
// including the user dismissing the share.
type Sharer interface {
	Share(ctx context.Context, msg Message) error
}

type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// signalBus is the part of *dbus.Conn that delivers portal responses.
type signalBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Portal shares through the XDG desktop portal, which opens the URI with the user's preferred
// handler. The portal answers asynchronously on a Request object; Share blocks until the user
// picked a handler or dismissed the chooser.
type Portal struct {
	conn   *dbus.Conn
	bus    signalBus
	object busObject
	sender string
	tokens atomic.Uint64
}

// NewPortal connects to the session bus.
func NewPortal(ctx context.Context) (*Portal, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	portal := &Portal{conn: conn, bus: conn, object: conn.Object(portalDest, portalPath)}
	if names := conn.Names(); len(names) > 0 {
		portal.sender = names[0]
	}
	return portal, nil
}

func (p *Portal) Share(ctx context.Context, msg Message) error {
	if msg.Message == "" {
		return ErrEmptyMessage
	}
	uri, err := url.Parse(msg.Message)
	if err != nil || !uri.IsAbs() {
		return ErrNotURI
	}

	ctx, cancel := context.WithTimeout(ctx, ResponseTimeout)
	defer cancel()

	// Subscribe before calling, the response may arrive before the call returns
	match := []dbus.MatchOption{dbus.WithMatchInterface(portalRequest), dbus.WithMatchMember("Response")}
	if err = p.bus.AddMatchSignal(match...); err != nil {
		return fmt.Errorf("failed to subscribe to desktop portal responses: %w", err)
	}
	defer func() { _ = p.bus.RemoveMatchSignal(match...) }()
	responses := make(chan *dbus.Signal, 4)
	p.bus.Signal(responses)
	defer p.bus.RemoveSignal(responses)

	token := fmt.Sprintf("%s_%d", tokenPrefix, p.tokens.Add(1))
	expected := requestPath(p.sender, token)
	options := map[string]dbus.Variant{
		"ask":          dbus.MakeVariant(true),
		"handle_token": dbus.MakeVariant(token),
	}
	call := p.object.CallWithContext(ctx, portalOpenURI, 0, "", uri.String(), options)
	if call.Err != nil {
		return fmt.Errorf("failed to open URI through desktop portal: %w", call.Err)
	}
	var handle dbus.ObjectPath
	if err = call.Store(&handle); err != nil {
		return fmt.Errorf("failed to read desktop portal request handle: %w", err)
	}

	return waitForResponse(ctx, responses, handle, expected)
}

// waitForResponse waits for the Response signal of the request at handle. Older portals ignore
// handle_token, so the predicted path and the returned handle are both accepted.
func waitForResponse(ctx context.Context, responses <-chan *dbus.Signal, handle, expected dbus.ObjectPath) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no answer from desktop portal: %w", ctx.Err())
		case sig, ok := <-responses:
			if !ok {
				return fmt.Errorf("%w: session bus connection closed", ErrShareFailed)
			}
			if sig.Name != portalResponse || (sig.Path != handle && sig.Path != expected) {
				continue
			}
			if len(sig.Body) == 0 {
				return fmt.Errorf("%w: malformed portal response", ErrShareFailed)
			}
			code, ok := sig.Body[0].(uint32)
			if !ok {
				return fmt.Errorf("%w: malformed portal response", ErrShareFailed)
			}
			switch code {
			case responseSuccess:
				return nil
			case responseCancelled:
				return ErrCancelled
			default:
				return fmt.Errorf("%w: portal response code %d", ErrShareFailed, code)
			}
		}
	}
}

// requestPath predicts the Request object path for token: the sender's unique name without the
// leading colon and with dots replaced by underscores.
func requestPath(sender, token string) dbus.ObjectPath {
	sender = strings.ReplaceAll(strings.TrimPrefix(sender, ":"), ".", "_")
	return dbus.ObjectPath(requestPrefix + sender + "/" + token)
}

// Close releases the session bus connection.
func (p *Portal) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Clipboard shares by placing the message on the clipboard.
type Clipboard struct {
	clip clipboard.Clipboard
}

func NewClipboard(clip clipboard.Clipboard) *Clipboard {
	return &Clipboard{clip: clip}
}

func (c *Clipboard) Share(_ context.Context, msg Message) error {
	if msg.Message == "" {
		return ErrEmptyMessage
	}
	if err := c.clip.SetString(msg.Message); err != nil {
		return fmt.Errorf("failed to share via clipboard: %w", err)
	}
	return nil
}

// Writer shares by writing the message as a single line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Share(_ context.Context, msg Message) error {
	if msg.Message == "" {
		return ErrEmptyMessage
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintln(w.w, msg.Message); err != nil {
		return fmt.Errorf("failed to write share message: %w", err)
	}
	return nil
}
