package billing

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/response"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointment/:id/prescription-cost", h.PrescriptionCost)
	api.POST("/invoice", h.CreateInvoice)
	api.GET("/invoice/:id", h.GetInvoice)
	api.GET("/invoices", h.ListInvoices)
	api.PATCH("/invoice/:id/pay", h.MarkPaid)
	api.PATCH("/invoice/:id/unpay", h.MarkUnpaid)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

type costResponse struct {
	AppointmentID    int64 `json:"appointmentId"`
	PrescriptionCost Money `json:"prescriptionCost"`
}

func (h *Handler) PrescriptionCost(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cost, err := h.svc.PrescriptionCost(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, costResponse{AppointmentID: id, PrescriptionCost: NewMoney(cost)})
}

type createdResponse struct {
	Success     bool   `json:"success"`
	InvoiceID   int64  `json:"invoiceId"`
	TotalAmount Money  `json:"totalAmount"`
	Message     string `json:"message"`
}

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req InvoiceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createdResponse{
		Success:     true,
		InvoiceID:   inv.ID,
		TotalAmount: inv.TotalAmount,
		Message:     "invoice created",
	})
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.OK(c, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{
		PaymentStatus: c.QueryParam("paymentStatus"),
		Limit:         p.Limit,
		Offset:        p.Offset,
	}
	extra := url.Values{}
	if v := c.QueryParam("appointmentId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apperr.Validation("invalid appointmentId")
		}
		f.AppointmentID = id
		extra.Set("appointmentId", v)
	}
	if f.PaymentStatus != "" {
		extra.Set("paymentStatus", f.PaymentStatus)
	}

	items, total, err := h.svc.ListInvoices(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return response.OK(c, pagination.NewResponse(items, total, p, "/api/invoices", extra))
}

func (h *Handler) MarkPaid(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PayRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inv, err := h.svc.MarkPaid(c.Request().Context(), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Envelope{Success: true, Data: inv, Message: "invoice marked as paid"})
}

func (h *Handler) MarkUnpaid(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.MarkUnpaid(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Envelope{Success: true, Data: inv, Message: "invoice marked as unpaid"})
}
