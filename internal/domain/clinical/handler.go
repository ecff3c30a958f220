package clinical

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/medical-records", h.CreateRecord)
	api.GET("/medical-records/:id", h.GetRecord)
	api.GET("/appointments/:id/medical-records", h.ListRecordsByAppointment)
	api.POST("/prescription", h.CreatePrescription)
	api.GET("/prescription/:id", h.GetPrescription)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	m, err := h.svc.CreateRecord(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":  true,
		"recordId": m.ID,
		"message":  "medical record created",
	})
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, m)
}

func (h *Handler) ListRecordsByAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListRecordsByAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req PrescriptionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.CreatePrescription(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":        true,
		"prescriptionId": p.ID,
		"message":        "prescription created",
	})
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, p)
}
