// Package webhook exposes the inbound message webhook and a small
// operational API over Echo.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/profile"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/secrets"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/middleware"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/service/dialog"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/server/stats"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Idle limiter entries older than limiterMaxIdle are dropped each
// limiterPruneInterval so churning sender populations stay bounded.
const (
	limiterPruneInterval = 10 * time.Minute
	limiterMaxIdle       = time.Hour
)

// Service handles webhook and operational API requests.
type Service struct {
	profile *profile.Profile
	store   *store.Store
	engine  *dialog.Engine
	codec   *secrets.Codec
	stats   *stats.Collector
	limiter *middleware.SenderRateLimiter
}

// NewService creates the webhook service.
func NewService(prof *profile.Profile, st *store.Store, engine *dialog.Engine, collector *stats.Collector) *Service {
	return &Service{
		profile: prof,
		store:   st,
		engine:  engine,
		codec:   secrets.NewCodec(prof.SecretKey),
		stats:   collector,
		limiter: middleware.NewSenderRateLimiter(1, 5),
	}
}

// Register wires the service's routes onto the Echo instance.
func (s *Service) Register(e *echo.Echo) {
	e.POST("/webhook/messages", s.handleInboundMessage, s.requireToken)

	e.GET("/api/v1/stats", s.handleStats, s.requireToken)
	e.GET("/api/v1/sessions", s.handleListSessions, s.requireToken)
	e.GET("/api/v1/destinations", s.handleListDestinations, s.requireToken)
	e.POST("/api/v1/sessions/:uid/cancel", s.handleCancelSession, s.requireToken)
	e.POST("/api/v1/alerts/:id/read", s.handleMarkAlertRead, s.requireToken)
}

// requireToken rejects requests without the configured webhook token. With
// no token configured every request passes, matching a dev profile.
func (s *Service) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.profile.WebhookToken == "" {
			return next(c)
		}

		token := c.Request().Header.Get("X-Webhook-Token")
		if token == "" {
			token = c.QueryParam("token")
		}

		if token != s.profile.WebhookToken {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook token")
		}

		return next(c)
	}
}

// inboundPayload is the JSON form of an inbound message. Form-encoded
// requests use the From/Body convention instead.
type inboundPayload struct {
	From    string `json:"from"`
	Body    string `json:"body"`
	Channel string `json:"channel"`
}

func (s *Service) handleInboundMessage(c echo.Context) error {
	sender := c.FormValue("From")
	body := c.FormValue("Body")
	channel := c.FormValue("Channel")

	if sender == "" {
		var payload inboundPayload
		if err := c.Bind(&payload); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
		}

		sender = payload.From
		body = payload.Body
		channel = payload.Channel
	}

	if sender == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing sender")
	}

	if !s.limiter.Allow(sender) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	transmissionMetadata := map[string]any{}
	if channel != "" {
		transmissionMetadata["message_channel"] = channel
	}

	encodedMetadata, err := json.Marshal(transmissionMetadata)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to encode metadata")
	}

	protectedSender, err := s.codec.Protect(sender)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to protect sender")
	}

	ctx := c.Request().Context()

	incoming, err := s.store.CreateIncomingMessage(ctx, &store.IncomingMessage{
		Sender:               protectedSender,
		Message:              body,
		ReceivedTs:           time.Now().Unix(),
		TransmissionMetadata: string(encodedMetadata),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record message")
	}

	if err := s.engine.HandleInbound(ctx, incoming); err != nil {
		// The message is recorded; processing failures surface through
		// logs, not to the sending party.
		c.Logger().Errorf("inbound processing failed: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]any{"received": true})
}

func (s *Service) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.GetStats())
}

type sessionView struct {
	UID         string  `json:"uid"`
	Destination string  `json:"destination"`
	Started     int64   `json:"started"`
	LastUpdated int64   `json:"last_updated"`
	Finished    *int64  `json:"finished,omitempty"`
	Channel     *string `json:"channel,omitempty"`
}

func (s *Service) handleListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	sessions, err := s.store.ListSessions(ctx, &store.FindSession{})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}

	views := make([]sessionView, 0, len(sessions))

	for _, session := range sessions {
		destination, err := s.codec.Reveal(session.Destination)
		if err != nil {
			continue
		}

		views = append(views, sessionView{
			UID:         session.UID,
			Destination: destination,
			Started:     session.StartedTs,
			LastUpdated: session.LastUpdatedTs,
			Finished:    session.FinishedTs,
			Channel:     session.TransmissionChannel,
		})
	}

	return c.JSON(http.StatusOK, views)
}

func (s *Service) handleListDestinations(c echo.Context) error {
	destinations, err := s.engine.DistinctDestinations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list destinations")
	}

	return c.JSON(http.StatusOK, destinations)
}

func (s *Service) handleCancelSession(c echo.Context) error {
	ctx := c.Request().Context()
	uid := c.Param("uid")

	session, err := s.store.GetSession(ctx, &store.FindSession{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}

	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	if err := s.engine.CancelSession(ctx, session); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel session")
	}

	return c.JSON(http.StatusOK, map[string]any{"cancelled": true})
}

func (s *Service) handleMarkAlertRead(c echo.Context) error {
	ctx := c.Request().Context()

	var alertID int32
	if err := echo.PathParamsBinder(c).Int32("id", &alertID).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed alert id")
	}

	alert, err := s.store.ListAlerts(ctx, &store.FindAlert{ID: &alertID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load alert")
	}

	if len(alert) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}

	target := alert[0]

	// Read time is recorded exactly once.
	if target.IsUnread() {
		metadata := target.MarkRead(time.Now().Format(time.RFC3339))
		nowTs := time.Now().Unix()

		if err := s.store.UpdateAlert(ctx, &store.UpdateAlert{
			ID:            target.ID,
			Metadata:      &metadata,
			LastUpdatedTs: &nowTs,
		}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to mark alert read")
		}

		target.Metadata = metadata
	}

	return c.JSON(http.StatusOK, map[string]any{"read": true, "metadata": json.RawMessage(target.Metadata)})
}

// PruneLimiters periodically drops idle per-sender rate limiters until the
// context ends. Run once per process beside the server.
func (s *Service) PruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Prune(limiterMaxIdle)
		}
	}
}
