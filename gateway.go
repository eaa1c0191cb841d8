/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Rajarani websocket gateway
//
// Each websocket connection runs one protocol client over its own
// store connection. The browser stays a thin terminal: it sends
// actions ("create", "join", "quickplay", "start", "guess") and
// renders the view events streamed back. Closing the socket closes
// the store connection, which fires the on-disconnect hooks and lets
// the remaining players observe the vanished presence record.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/rajarani/client"
	"github.com/Seednode/rajarani/game"
	"github.com/Seednode/rajarani/identity"
	"github.com/Seednode/rajarani/registry"
	"github.com/Seednode/rajarani/store"
)

// Messages coming from browsers
type actionMessage struct {
	Type        string            `json:"type"`                   // "create", "join", "resume", "quickplay", "start", "guess", "leave"
	Name        string            `json:"name,omitempty"`         // create / join / quickplay
	Code        string            `json:"code,omitempty"`         // join / resume
	PlayerID    string            `json:"player_id,omitempty"`    // resume
	TargetID    string            `json:"target_id,omitempty"`    // guess
	LabelScheme string            `json:"label_scheme,omitempty"` // start
	RoleNames   map[string]string `json:"role_names,omitempty"`   // start
}

// Sent to a single browser when an action fails
type errorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Sent after every guess so the browser can narrate the outcome
type guessResultMessage struct {
	Type      string `json:"type"` // "guess_result"
	Correct   bool   `json:"correct"`
	TargetID  string `json:"target_id"`
	Completed bool   `json:"completed"`
}

// Sent once per connection so the browser can persist the identity
type helloMessage struct {
	Type   string `json:"type"` // "hello"
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const identityCookieName = "rajarani_id"

// getOrMintIdentity resolves the signed identity cookie, minting a
// fresh user id when the cookie is absent, expired, or tampered with.
// Must run before the websocket upgrade writes the response headers.
func getOrMintIdentity(w http.ResponseWriter, r *http.Request, issuer *identity.Issuer) identity.Identity {
	if c, err := r.Cookie(identityCookieName); err == nil && c.Value != "" {
		if id, err := issuer.Verify(c.Value); err == nil {
			return id
		}
	}

	id := identity.Identity{UserID: identity.NewUserID()}

	token, err := issuer.Mint(id)
	if err != nil {
		log.Println("identity mint error:", err)
		return id
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identityCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// errorCode maps protocol errors onto the stable codes browsers key
// their messaging off.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, registry.ErrAlreadyStarted):
		return "ALREADY_STARTED"
	case errors.Is(err, registry.ErrSessionFull):
		return "FULL"
	case errors.Is(err, registry.ErrNotHost):
		return "NOT_HOST"
	case errors.Is(err, registry.ErrNotEnoughPlayers):
		return "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, registry.ErrNameRequired):
		return "NAME_REQUIRED"
	case errors.Is(err, registry.ErrContended):
		return "CONTENDED"
	case errors.Is(err, game.ErrNotPlaying):
		return "NOT_PLAYING"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "UNKNOWN_PLAYER"
	case errors.Is(err, game.ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, game.ErrSelfGuess):
		return "SELF_GUESS"
	case errors.Is(err, game.ErrTargetLocked):
		return "TARGET_LOCKED"
	case errors.Is(err, game.ErrChainComplete):
		return "CHAIN_COMPLETE"
	case errors.Is(err, store.ErrConflict):
		return "CONTENDED"
	default:
		return "INTERNAL"
	}
}

// upsertProfile keeps the users/{userId} record current with the name
// the player last played under. Best-effort; a conflict just means a
// concurrent tab won.
func upsertProfile(ctx context.Context, conn *store.Conn, id identity.Identity) {
	if id.Name == "" {
		return
	}

	path := identity.ProfilePath(id.UserID)
	now := time.Now()

	var profile identity.Profile
	version, err := conn.Read(ctx, path, &profile)
	if errors.Is(err, store.ErrNotFound) {
		profile.CreatedAt = now
		version = 0
	} else if err != nil {
		return
	}

	profile.Name = id.Name
	profile.UpdatedAt = now

	_ = conn.Apply(ctx, []store.Guard{{Path: path, Version: version}},
		store.Op{Path: path, Value: &profile})
}

// serveGateway upgrades the request and runs one protocol client for
// the duration of the socket.
func serveGateway(cfg *Config, st *store.Store, issuer *identity.Issuer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := getOrMintIdentity(w, r, issuer)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		logf(cfg, "GATEWAY: %s connected as %s", realIP(r), id.UserID)

		conn := st.Connect()
		cl := client.New(conn, id, cfg.heartbeat, cfg.queueTimeout, func(format string, args ...any) {
			logf(cfg, format, args...)
		})

		g := &gatewayConn{
			cfg:  cfg,
			ws:   ws,
			conn: conn,
			cl:   cl,
			id:   id,
			send: make(chan any, 16),
		}

		g.send <- helloMessage{Type: "hello", UserID: id.UserID, Name: id.Name}

		go g.writePump()
		go g.forwardEvents()
		g.readPump(r.Context())

		logf(cfg, "GATEWAY: %s disconnected", id.UserID)
	}
}

type gatewayConn struct {
	cfg  *Config
	ws   *websocket.Conn
	conn *store.Conn
	cl   *client.Client
	id   identity.Identity
	send chan any
}

// readPump decodes actions until the socket dies, then tears down the
// protocol client so presence cleanup fires.
func (g *gatewayConn) readPump(ctx context.Context) {
	defer func() {
		g.cl.Close()
		_ = g.ws.Close()
	}()

	for {
		var msg actionMessage
		if err := g.ws.ReadJSON(&msg); err != nil {
			return
		}

		g.handle(ctx, msg)
	}
}

func (g *gatewayConn) handle(ctx context.Context, msg actionMessage) {
	var err error

	switch msg.Type {
	case "create":
		g.adoptName(ctx, msg.Name)
		err = g.cl.Create(ctx, msg.Name)

	case "join":
		g.adoptName(ctx, msg.Name)
		err = g.cl.Join(ctx, registry.NormalizeCode(msg.Code), msg.Name)

	case "resume":
		err = g.cl.Resume(ctx, registry.NormalizeCode(msg.Code), msg.PlayerID)

	case "quickplay":
		g.adoptName(ctx, msg.Name)
		err = g.cl.QuickPlay(ctx, msg.Name)

	case "start":
		err = g.cl.Start(ctx, msg.LabelScheme, msg.RoleNames)

	case "guess":
		var outcome game.Outcome
		outcome, err = g.cl.Guess(ctx, msg.TargetID)
		if err == nil {
			g.send <- guessResultMessage{
				Type:      "guess_result",
				Correct:   outcome.Correct,
				TargetID:  outcome.TargetID,
				Completed: outcome.Completed,
			}
		}

	case "leave":
		g.cl.Leave(ctx)

	default:
		// ignore unknown types
	}

	if err != nil {
		logf(g.cfg, "GATEWAY: %s %s failed: %v", g.id.UserID, msg.Type, err)
		g.send <- errorMessage{
			Type:    "error",
			Code:    errorCode(err),
			Message: err.Error(),
		}
	}
}

// adoptName records the display name the player chose, both for this
// connection and in their durable profile.
func (g *gatewayConn) adoptName(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == g.id.Name {
		return
	}
	g.id.Name = name
	upsertProfile(ctx, g.conn, g.id)
}

// forwardEvents streams protocol events out until the client closes,
// then releases the write pump. By then readPump has returned, so no
// other sender remains.
func (g *gatewayConn) forwardEvents() {
	for ev := range g.cl.Events() {
		g.send <- ev
	}
	close(g.send)
}

// writePump serializes all socket writes. A failed write closes the
// socket but keeps draining so the senders never block on a dead peer.
func (g *gatewayConn) writePump() {
	dead := false
	for msg := range g.send {
		if dead {
			continue
		}
		_ = g.ws.SetWriteDeadline(time.Now().Add(timeout))
		if err := g.ws.WriteJSON(msg); err != nil {
			dead = true
			_ = g.ws.Close()
		}
	}
	_ = g.ws.Close()
}

// QR handler: generates a PNG QR code linking to the current session
// using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing session code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /g/:code/qr; strip trailing "/qr" to get the join URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}
