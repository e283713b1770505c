package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
	"github.com/GiantBeanstalk/Speeddating/go/internal/models"
)

// RegisterRoutes mounts the socket, stats and health endpoints.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws/events/{eventID}", g.HandleEventSocket)
	r.Get("/ws/rounds/{roundID}/timer", g.HandleRoundSocket)
	r.Get("/ws/admin/events/{eventID}", g.HandleAdminSocket)
	r.Get("/ws/stats", g.HandleStats)
	r.Get("/health", g.HandleHealth)
}

// HandleEventSocket connects a participant to the event room.
func (g *Gateway) HandleEventSocket(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	identity, ok := g.authorize(w, r, eventID)
	if !ok {
		return
	}

	c := NewClient(identity, eventID, g.config.SendBuffer)
	g.serve(w, r, c, []RoomKey{EventRoom(eventID)}, func(c *Client) {
		if cd, ok := g.registry.Countdown(eventID); ok {
			state := cd.State()
			g.reply(c, CountdownStatusMessage{
				Header:    header(MessageCountdownStatus, g.clock.Now()),
				Active:    true,
				Countdown: &state,
			})
		}
	})
}

// HandleRoundSocket connects a client to one round's timer.
func (g *Gateway) HandleRoundSocket(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "roundID")
	if !ok {
		return
	}
	round, err := g.store.LoadRound(r.Context(), roundID)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "round not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("failed to load round")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	identity, ok := g.authorize(w, r, round.EventID)
	if !ok {
		return
	}

	c := NewClient(identity, round.EventID, g.config.SendBuffer)
	c.RoundID = round.ID
	g.serve(w, r, c, []RoomKey{RoundRoom(round.ID)}, func(c *Client) {
		g.replyTimerStatus(c, round.ID)
	})
}

// HandleAdminSocket connects an organizer dashboard.
func (g *Gateway) HandleAdminSocket(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	identity, ok := g.authorize(w, r, eventID)
	if !ok {
		return
	}
	if !identity.Role.CanManage() {
		http.Error(w, "organizer role required", http.StatusForbidden)
		return
	}

	c := NewClient(identity, eventID, g.config.SendBuffer)
	g.serve(w, r, c, []RoomKey{AdminRoom(eventID), EventRoom(eventID)}, func(c *Client) {
		snap := g.Snapshot(eventID)
		g.reply(c, ActiveTimersMessage{
			Header:     header(MessageActiveTimers, g.clock.Now()),
			Rounds:     snap.Rounds,
			Countdowns: snap.Countdowns,
		})
		go func() {
			if err := g.PushStatistics(context.Background(), eventID); err != nil {
				log.Error().Err(err).Str("event_id", eventID.String()).Msg("failed to push statistics")
			}
		}()
	})
}

// HandleStats reports connection counts.
func (g *Gateway) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.hub.Stats())
}

// HandleHealth reports liveness and engine counts.
func (g *Gateway) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap := g.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"connections":       g.hub.Stats().TotalConnections,
		"active_rounds":     len(snap.Rounds),
		"active_countdowns": len(snap.Countdowns),
	})
}

func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, eventID uuid.UUID) (auth.Identity, bool) {
	identity, err := g.auth.Authorize(r.Context(), bearerToken(r), eventID)
	switch {
	case err == nil:
		return identity, true
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		log.Error().Err(err).Str("event_id", eventID.String()).Msg("authorization failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return auth.Identity{}, false
}

// bearerToken reads the Authorization header, falling back to ?token= for
// browsers that cannot set headers on socket requests.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
