// ABOUTME: HTTP API handlers for accounts and bot management
// ABOUTME: Maps registry and auth errors onto status codes; callers only see their own bots

package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/bot-fleet/internal/agent"
	"github.com/2389/bot-fleet/internal/auth"
	"github.com/2389/bot-fleet/internal/store"
	"github.com/2389/bot-fleet/internal/transport"
)

// ErrForbidden is returned when a caller addresses a bot it does not own.
var ErrForbidden = errors.New("forbidden")

// idempotencyHeader lets clients retry bot creation without creating twice.
const idempotencyHeader = "Idempotency-Key"

// CredentialsRequest is the body for register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse is the JSON response for POST /api/register.
type RegisterResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LoginResponse is the JSON response for POST /api/login.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// CreateBotRequest is the body for POST /api/bots.
type CreateBotRequest struct {
	ServerIP   string `json:"serverIp"`
	ServerPort int    `json:"serverPort,omitempty"`
	Username   string `json:"username,omitempty"`
}

// CreateBotResponse is the JSON response for POST /api/bots.
type CreateBotResponse struct {
	Message string        `json:"message"`
	BotID   string        `json:"botId"`
	Info    agent.Summary `json:"info"`
}

// CommandRequest is the body for POST /api/bots/{id}/command.
type CommandRequest struct {
	Command string `json:"command"`
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CredentialsRequest](w, r)
	if !ok {
		return
	}

	user, err := g.accounts.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	case errors.Is(err, store.ErrUsernameExists):
		writeError(w, http.StatusConflict, "username exists")
		return
	case err != nil:
		g.logger.Error("failed to register user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, RegisterResponse{
		Message:  "Registered",
		UserID:   user.ID,
		Username: user.Username,
	})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CredentialsRequest](w, r)
	if !ok {
		return
	}

	token, err := g.accounts.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		g.logger.Error("failed to log in", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Message: "Logged in", Token: token})
}

func (g *Gateway) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	req, ok := readJSON[CreateBotRequest](w, r)
	if !ok {
		return
	}
	if req.ServerIP == "" {
		writeError(w, http.StatusBadRequest, "missing serverIp")
		return
	}
	if req.ServerPort < 0 || req.ServerPort > 65535 {
		writeError(w, http.StatusBadRequest, "serverPort must be between 1 and 65535")
		return
	}

	params := agent.CreateParams{
		OwnerID:     caller.UserID,
		Target:      transport.Target{Host: req.ServerIP, Port: req.ServerPort},
		DisplayName: req.Username,
	}

	var (
		a   *agent.Agent
		err error
	)
	if key := r.Header.Get(idempotencyHeader); key != "" {
		a, err = g.createOnce(caller.UserID+"\x00"+key, params)
	} else {
		a, err = g.registry.Create(params)
	}
	if err != nil {
		if errors.Is(err, agent.ErrMissingTarget) {
			writeError(w, http.StatusBadRequest, "missing serverIp")
			return
		}
		g.logger.Error("failed to create bot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, CreateBotResponse{
		Message: "Bot created and connecting",
		BotID:   a.ID(),
		Info:    a.Summary(),
	})
}

// createOnce creates at most one agent per key while the key is remembered.
// Concurrent requests with the same key share one creation; later ones get
// the agent created first, as long as it still exists.
func (g *Gateway) createOnce(key string, params agent.CreateParams) (*agent.Agent, error) {
	v, err, _ := g.createFlight.Do(key, func() (any, error) {
		if id, ok := g.creates.Get(key); ok {
			if a, err := g.registry.Get(id); err == nil {
				return a, nil
			}
			g.creates.Forget(key)
		}
		a, err := g.registry.Create(params)
		if err != nil {
			return nil, err
		}
		g.creates.Put(key, a.ID())
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*agent.Agent), nil
}

func (g *Gateway) handleListBots(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())
	writeJSON(w, http.StatusOK, g.registry.ListByOwner(caller.UserID))
}

func (g *Gateway) handleGetBot(w http.ResponseWriter, r *http.Request) {
	a, ok := g.ownedBot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Summary())
}

func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CommandRequest](w, r)
	if !ok {
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "missing command")
		return
	}
	a, ok := g.ownedBot(w, r)
	if !ok {
		return
	}

	err := g.registry.SendCommand(r.Context(), a.ID(), req.Command)
	switch {
	case errors.Is(err, agent.ErrNotConnected):
		writeError(w, http.StatusBadRequest, "bot not connected")
		return
	case errors.Is(err, agent.ErrNotFound):
		writeError(w, http.StatusNotFound, "bot not found")
		return
	case errors.Is(err, agent.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	case err != nil:
		g.logger.Error("failed to send command", "bot_id", a.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Command sent: %s", req.Command)})
}

func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	a, ok := g.ownedBot(w, r)
	if !ok {
		return
	}
	if err := g.registry.Connect(a.ID()); err != nil {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Bot connect requested"})
}

func (g *Gateway) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	a, ok := g.ownedBot(w, r)
	if !ok {
		return
	}
	if err := g.registry.Disconnect(a.ID()); err != nil {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Bot disconnect requested"})
}

func (g *Gateway) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	a, ok := g.ownedBot(w, r)
	if !ok {
		return
	}
	if err := g.registry.Delete(a.ID()); err != nil {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Bot deleted"})
}

// ownedBot resolves the {id} parameter to a bot the caller owns, writing 404
// or 403 otherwise.
func (g *Gateway) ownedBot(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	caller := auth.MustFromContext(r.Context())
	a, err := g.lookupOwned(caller.UserID, urlParam(r, "id"))
	switch {
	case errors.Is(err, agent.ErrNotFound):
		writeError(w, http.StatusNotFound, "bot not found")
		return nil, false
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return a, true
}

// lookupOwned returns the agent if it exists and belongs to userID.
func (g *Gateway) lookupOwned(userID, id string) (*agent.Agent, error) {
	a, err := g.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID() != userID {
		return nil, ErrForbidden
	}
	return a, nil
}
