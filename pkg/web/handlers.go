package web

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/checkout"
	"github.com/teslashibe/go-checkout/pkg/hub"
	"github.com/teslashibe/go-checkout/pkg/kiosk"
)

// ErrorResponse is the body of every non-2xx API answer.
type ErrorResponse struct {
	Error    string             `json:"error"`
	Snapshot *checkout.Snapshot `json:"snapshot,omitempty"`
}

// ScanRequest is the body of POST /api/scan
type ScanRequest struct {
	Product string `json:"product" validate:"required,max=64"`
	EventID string `json:"event_id" validate:"omitempty,max=128"`
}

// StaffCodeRequest is the body of POST /api/staff/code
type StaffCodeRequest struct {
	Code string `json:"code" validate:"max=32"`
}

// StaffDecisionRequest is the body of POST /api/staff/decision
type StaffDecisionRequest struct {
	Adult *bool `json:"adult" validate:"required"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleCatalog lists the products on offer
func (s *Server) handleCatalog(c *fiber.Ctx) error {
	return c.JSON(s.kiosk.Catalog().Products())
}

// handleState returns the current session snapshot
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.kiosk.Snapshot())
}

// bind parses the JSON body into req and validates its tags.
func (s *Server) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s: failed %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (s *Server) handleScan(c *fiber.Ctx) error {
	var req ScanRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	return s.apply(c, kiosk.Intent{Kind: checkout.IntentScan, Product: req.Product, EventID: req.EventID})
}

func (s *Server) handleStaffCode(c *fiber.Ctx) error {
	var req StaffCodeRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	return s.apply(c, kiosk.Intent{Kind: checkout.IntentStaffCode, Code: req.Code})
}

func (s *Server) handleStaffDecision(c *fiber.Ctx) error {
	var req StaffDecisionRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	return s.apply(c, kiosk.Intent{Kind: checkout.IntentStaffDecision, Adult: *req.Adult})
}

// intent returns a handler for a body-less intent
func (s *Server) intent(kind checkout.Intent) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.apply(c, kiosk.Intent{Kind: kind})
	}
}

func (s *Server) apply(c *fiber.Ctx, in kiosk.Intent) error {
	reply, err := s.kiosk.Do(c.UserContext(), in)
	if err == nil {
		return c.JSON(reply)
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrUnknownProduct):
		status = fiber.StatusNotFound
	case errors.Is(err, checkout.ErrInvalidTransition), errors.Is(err, checkout.ErrEmptyCart):
		status = fiber.StatusConflict
	case errors.Is(err, kiosk.ErrUnknownIntent):
		status = fiber.StatusBadRequest
	case errors.Is(err, kiosk.ErrClosed):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("intent failed", "intent", in.Kind, "error", err)
	}

	resp := ErrorResponse{Error: err.Error()}
	if status == fiber.StatusConflict || status == fiber.StatusNotFound {
		snap := reply.Snapshot
		resp.Snapshot = &snap
	}
	return c.Status(status).JSON(resp)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

// handleStateWS streams snapshots, starting with the current one
func (s *Server) handleStateWS(c *websocket.Conn) {
	var initial []hub.Message
	if data, err := json.Marshal(s.kiosk.Snapshot()); err == nil {
		initial = append(initial, hub.NewJSONMessage(data))
	}
	if client := hub.NewClient(s.stateHub, c, initial...); client != nil {
		client.Run()
	}
}

// handleCameraWS streams JPEG frames while a camera check runs
func (s *Server) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(s.cameraHub, c); client != nil {
		client.Run()
	}
}
