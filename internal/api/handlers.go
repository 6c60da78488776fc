package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/Victor-armando18/service-pricing/internal/domain"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure"
	"github.com/Victor-armando18/service-pricing/internal/infrastructure/diff"
	"github.com/Victor-armando18/service-pricing/internal/interfaces"
	"github.com/Victor-armando18/service-pricing/internal/usecase"
	"github.com/Victor-armando18/service-pricing/pkg/engine"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxBatchSize = 500

// Handler exposes the pricing use cases over HTTP. Rules may be nil when the
// configured rule source cannot be written to.
type Handler struct {
	Pricing        interfaces.PricingFacade
	Buybox         interfaces.BuyboxFacade
	Preview        interfaces.PreviewFacade
	Rules          interfaces.RuleStore
	DefaultVersion string
	Log            zerolog.Logger
}

// Register mounts the routes. guard protects the rule mutation endpoints;
// pass nil to leave them open.
func (h *Handler) Register(e *echo.Echo, guard echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	g := e.Group("/pricing")
	g.POST("/evaluate", h.Evaluate)
	g.POST("/batch", h.EvaluateBatch)

	e.POST("/buybox/winner", h.BuyboxWinner)

	var mw []echo.MiddlewareFunc
	if guard != nil {
		mw = append(mw, guard)
	}
	e.POST("/rules/preview", h.PreviewRule)
	e.POST("/rules", h.CreateRule, mw...)
	e.PATCH("/rules/:id", h.PatchRule, mw...)
	e.DELETE("/rules/:id", h.DeleteRule, mw...)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "pricing-engine",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) Evaluate(c echo.Context) error {
	var req domain.PriceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
	}
	out, err := h.Pricing.Price(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) EvaluateBatch(c echo.Context) error {
	var body struct {
		Requests []domain.PriceRequest `json:"requests"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
	}
	if len(body.Requests) > maxBatchSize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("batch of %d exceeds the limit of %d", len(body.Requests), maxBatchSize),
		})
	}
	items, err := h.Pricing.PriceBatch(c.Request().Context(), body.Requests)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) BuyboxWinner(c echo.Context) error {
	var req domain.BuyboxRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
	}
	out, err := h.Buybox.SelectWinner(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PreviewRule(c echo.Context) error {
	var req domain.PreviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
	}
	out, err := h.Preview.Preview(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateRule(c echo.Context) error {
	if h.Rules == nil {
		return h.fail(c, domain.ErrRuleUpdatesDisabled)
	}
	var rule engine.PricingRule
	if err := c.Bind(&rule); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid rule payload"})
	}
	version := h.version(c)
	if err := h.Rules.CreateRule(c.Request().Context(), version, rule); err != nil {
		return h.fail(c, err)
	}
	h.Log.Info().Int64("ruleId", rule.ID).Str("version", version).Msg("rule created")
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) DeleteRule(c echo.Context) error {
	if h.Rules == nil {
		return h.fail(c, domain.ErrRuleUpdatesDisabled)
	}
	id, err := ruleID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid rule id"})
	}
	version := h.version(c)
	if err := h.Rules.DeleteRule(c.Request().Context(), version, id); err != nil {
		return h.fail(c, err)
	}
	h.Log.Info().Int64("ruleId", id).Str("version", version).Msg("rule deleted")
	return c.NoContent(http.StatusNoContent)
}

// PatchRule applies a JSON Patch (application/json-patch+json) or a merge
// patch (any other JSON content type) to a stored rule.
func (h *Handler) PatchRule(c echo.Context) error {
	if h.Rules == nil {
		return h.fail(c, domain.ErrRuleUpdatesDisabled)
	}
	id, err := ruleID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid rule id"})
	}
	version := h.version(c)
	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(patch) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty patch"})
	}

	ctx := c.Request().Context()
	current, err := h.Rules.Rule(ctx, version, id)
	if err != nil {
		return h.fail(c, err)
	}

	var updated engine.PricingRule
	if isJSONPatch(c.Request().Header.Get(echo.HeaderContentType)) {
		updated, err = infrastructure.ApplyRulePatch(current, patch)
	} else {
		updated, err = infrastructure.ApplyRuleMergePatch(current, patch)
	}
	if err != nil {
		return h.fail(c, err)
	}

	if err := h.Rules.SaveRule(ctx, version, updated); err != nil {
		return h.fail(c, err)
	}

	changes := map[string]any{}
	before, berr := diff.Snapshot(current)
	after, aerr := diff.Snapshot(updated)
	if berr == nil && aerr == nil {
		changes = (&diff.Differ{}).Diff(before, after)
	}
	h.Log.Info().Int64("ruleId", id).Str("version", version).Int("changes", len(changes)).Msg("rule updated")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"rule":    updated,
		"changes": changes,
	})
}

func ruleID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err == nil && id <= 0 {
		err = fmt.Errorf("rule id %d is not positive", id)
	}
	return id, err
}

// version reads the rule pack version from ?version=, defaulting to the
// configured one.
func (h *Handler) version(c echo.Context) string {
	if v := c.QueryParam("version"); v != "" {
		return v
	}
	return h.DefaultVersion
}

func isJSONPatch(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json-patch+json"
}

// fail maps service errors onto status codes with a JSON error body.
func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRulePackNotFound), errors.Is(err, domain.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoEligibleOffers):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRule):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRuleUpdatesDisabled):
		status = http.StatusNotImplemented
	case errors.Is(err, engine.ErrInvalidRule):
		status = http.StatusUnprocessableEntity
	case usecase.IsClientError(err):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
