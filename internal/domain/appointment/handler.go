package appointment

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
	api.POST("/appointments", h.Book)
	api.GET("/appointments", h.List)
	api.GET("/appointments/date/:date", h.ListByDate)
	api.GET("/appointments/:id", h.Get)
	api.PATCH("/appointments/:id/status", h.ChangeStatus)
	api.PUT("/appointments/:id", h.Update)
	api.DELETE("/appointments/:id", h.Delete)
}

type bookedResponse struct {
	Success       bool   `json:"success"`
	AppointmentID int64  `json:"appointmentId"`
	Message       string `json:"message"`
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bookedResponse{
		Success:       true,
		AppointmentID: a.ID,
		Message:       "appointment booked",
	})
}

func (h *Handler) List(c echo.Context) error {
	var f ListFilter
	if v := c.QueryParam("doctorId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperr.Validation("invalid doctorId")
		}
		f.DoctorID = id
	}
	f.Status = Status(c.QueryParam("status"))
	f.PatientIC = c.QueryParam("patientIC")

	items, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) ListByDate(c echo.Context) error {
	items, err := h.svc.ListByDate(c.Request().Context(), c.Param("date"))
	if err != nil {
		return err
	}
	return response.OK(c, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	change, err := h.svc.ChangeStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Envelope{
		Success: true,
		Data:    change,
		Message: "appointment status updated",
	})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Update(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Envelope{
		Success: true,
		Data:    a,
		Message: "appointment updated",
	})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return response.Message(c, "appointment deleted")
}
