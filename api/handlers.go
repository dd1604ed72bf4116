package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ragroute/ragroute/agent"
	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/schema"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        *auth.User `json:"user"`
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	token, user, ok := s.registry.Login(req.Username, req.Password)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	return c.JSON(loginResponse{AccessToken: token, TokenType: "bearer", User: user})
}

// parseQueryRequest validates the body and enforces forced-mode
// permissions. The agent does not re-check permissions on forced paths,
// so this boundary must.
func parseQueryRequest(c *fiber.Ctx, user *auth.User) (schema.QueryRequest, error) {
	var req schema.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, fiber.NewError(fiber.StatusBadRequest, "query is required")
	}
	if req.Mode == "" {
		req.Mode = schema.ModeAuto
	}
	if !req.Mode.Valid() {
		return req, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
	}

	switch req.Mode {
	case schema.ModeLocal:
		if !user.Permissions.CanSearchLocal {
			return req, fiber.NewError(fiber.StatusForbidden, "local search not permitted")
		}
	case schema.ModeInternet, schema.ModeHybrid:
		if !user.Permissions.CanSearchInternet {
			return req, fiber.NewError(fiber.StatusForbidden, "internet search not permitted")
		}
	}
	return req, nil
}

func (s *Server) query(c *fiber.Ctx) error {
	user := currentUser(c)
	req, err := parseQueryRequest(c, user)
	if err != nil {
		return err
	}

	result, err := s.agent.Query(c.UserContext(), user, req)
	if err != nil {
		if errors.Is(err, agent.ErrUnsupportedMode) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		logger.Errorf("api: query failed for user %s: %v", user.UserID, err)
		return fiber.NewError(fiber.StatusBadGateway, "query processing failed")
	}
	return c.JSON(result)
}

// queryStream serves the same pipeline over SSE: a run of "status" events
// followed by exactly one "result" or "error" event.
func (s *Server) queryStream(c *fiber.Ctx) error {
	user := currentUser(c)
	req, err := parseQueryRequest(c, user)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The handler has returned by the time this runs; the request
		// context is gone and in-scope queries are not cancellable.
		events := s.agent.QueryStream(context.Background(), user, req)
		for ev := range events {
			name := "status"
			if ev.Result != nil {
				name = "result"
			} else if ev.Err != "" {
				name = "error"
			}
			if err := writeSSE(w, name, ev); err != nil {
				logger.Warnf("api: sse write failed, client likely gone: %v", err)
				return
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
