package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campsite/internal/bookings/service"
	"campsite/pkg/calendar"
	apperrors "campsite/pkg/errors"
	httputil "campsite/pkg/http"
	"campsite/pkg/logger"
	"campsite/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingRequest struct {
	Email         string `json:"email"`
	Fullname      string `json:"fullname"`
	ArrivalDate   string `json:"arrivalDate"`
	DepartureDate string `json:"departureDate"`
}

type BookingResponse struct {
	ID            string    `json:"id"`
	Version       int64     `json:"version"`
	Email         string    `json:"email"`
	Fullname      string    `json:"fullname"`
	ArrivalDate   string    `json:"arrivalDate"`
	DepartureDate string    `json:"departureDate"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
}

type AvailabilitiesResponse struct {
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	Availabilities []string `json:"availabilities"`
}

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	booking, err := decodeBooking(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.Add(r.Context(), booking)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, toResponse(created))
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, toResponse(booking))
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	responses := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		responses[i] = toResponse(b)
	}
	httputil.WritePaginated(w, responses, total, limit, offset)
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	replacement, err := decodeBooking(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), ps.ByName("id"), replacement)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, toResponse(updated))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.DeleteByID(r.Context(), ps.ByName("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// GetAvailabilities reports the free dates in [start, end). Absent
// parameters default to start=today and end=start plus one month.
func (h *BookingHandler) GetAvailabilities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start, err := httputil.ParseDateParam(r, "start")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	end, err := httputil.ParseDateParam(r, "end")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if start.IsZero() {
		start = calendar.Truncate(time.Now())
	}
	if end.IsZero() {
		end = start.AddDate(0, 1, 0)
	}
	if end.Before(start) {
		httputil.WriteError(w, apperrors.InvalidInput("Start date must not be after end date"))
		return
	}

	available, err := h.service.GetAvailabilities(r.Context(), start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	dates := make([]string, len(available))
	for i, d := range available {
		dates[i] = d.Format(httputil.ISODate)
	}
	httputil.WriteSuccess(w, AvailabilitiesResponse{
		StartDate:      start.Format(httputil.ISODate),
		EndDate:        end.Format(httputil.ISODate),
		Availabilities: dates,
	})
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.PUT("/api/v1/bookings/id/:id", h.Update)
	router.DELETE("/api/v1/bookings/id/:id", h.Delete)
	router.GET("/api/v1/availabilities", h.GetAvailabilities)
}

func decodeBooking(r *http.Request) (*model.Booking, error) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apperrors.InvalidInput("Invalid request body")
	}

	arrival, err := parseDate("arrivalDate", req.ArrivalDate)
	if err != nil {
		return nil, err
	}
	departure, err := parseDate("departureDate", req.DepartureDate)
	if err != nil {
		return nil, err
	}

	return &model.Booking{
		Email:         req.Email,
		Fullname:      req.Fullname,
		ArrivalDate:   arrival,
		DepartureDate: departure,
	}, nil
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(httputil.ISODate, value)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(fmt.Sprintf("%s must use format %s", name, httputil.ISODate))
	}
	return t, nil
}

func toResponse(b *model.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		Version:       b.Version,
		Email:         b.Email,
		Fullname:      b.Fullname,
		ArrivalDate:   b.ArrivalDate.Format(httputil.ISODate),
		DepartureDate: b.DepartureDate.Format(httputil.ISODate),
		CreatedAt:     b.CreatedAt,
	}
}
