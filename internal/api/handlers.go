package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/catalog"
	"courtbook/internal/database"
	"courtbook/internal/models"
	"courtbook/internal/service"
	"courtbook/internal/timeutil"

	"github.com/gin-gonic/gin"
)

type createBookingRequest struct {
	Date      string                    `json:"date" binding:"required"`
	StartTime string                    `json:"start_time" binding:"required"`
	EndTime   string                    `json:"end_time" binding:"required"`
	CourtID   int64                     `json:"court_id" binding:"required"`
	Equipment []models.BookingEquipment `json:"equipment"`
	CoachID   int64                     `json:"coach_id"`
}

type pricingPreviewRequest struct {
	Date      string                    `json:"date" binding:"required"`
	StartTime string                    `json:"start_time" binding:"required"`
	EndTime   string                    `json:"end_time" binding:"required"`
	CourtID   int64                     `json:"court_id" binding:"required"`
	Equipment []models.BookingEquipment `json:"equipment"`
	CoachID   int64                     `json:"coach_id"`
}

type joinWaitlistRequest struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	CourtID   int64  `json:"court_id" binding:"required"`
}

func (s *Server) handleListSlots(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	courtID, ok := int64Param(c, "court_id", true)
	if !ok {
		return
	}
	equipment, ok := equipmentParam(c)
	if !ok {
		return
	}
	coachID, ok := int64Param(c, "coach_id", false)
	if !ok {
		return
	}

	result, err := s.bookings.ListSlots(c.Request.Context(), date, courtID, equipment, coachID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format(timeutil.DateLayout), "slots": result})
}

func (s *Server) handleCheckAvailability(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	start := strings.TrimSpace(c.Query("start"))
	end := strings.TrimSpace(c.Query("end"))
	if start == "" || end == "" {
		badRequest(c, "start and end are required")
		return
	}
	courtID, ok := int64Param(c, "court_id", true)
	if !ok {
		return
	}
	equipment, ok := equipmentParam(c)
	if !ok {
		return
	}
	coachID, ok := int64Param(c, "coach_id", false)
	if !ok {
		return
	}

	result, err := s.bookings.CheckAvailability(c.Request.Context(), date, start, end, courtID, equipment, coachID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePricingPreview(c *gin.Context) {
	var req pricingPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		badRequest(c, "invalid date format; expected YYYY-MM-DD")
		return
	}

	breakdown, err := s.bookings.PreviewPricing(c.Request.Context(), req.CourtID, req.Equipment, req.CoachID, date, req.StartTime, req.EndTime)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) handleCreateBooking(c *gin.Context) {
	userID, ok := userIDFromHeader(c)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		badRequest(c, "invalid date format; expected YYYY-MM-DD")
		return
	}

	booking, err := s.bookings.CreateBooking(c.Request.Context(), service.CreateBookingRequest{
		UserID:    userID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CourtID:   req.CourtID,
		Equipment: req.Equipment,
		CoachID:   req.CoachID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (s *Server) handleGetBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid booking id")
		return
	}

	booking, err := s.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) handleCancelBooking(c *gin.Context) {
	userID, ok := userIDFromHeader(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid booking id")
		return
	}

	booking, err := s.bookings.CancelBooking(c.Request.Context(), id, userID, isAdmin(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (s *Server) handleUserBookings(c *gin.Context) {
	userID, ok := userIDFromHeader(c)
	if !ok {
		return
	}

	bookings, err := s.bookings.UserBookings(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (s *Server) handleJoinWaitlist(c *gin.Context) {
	userID, ok := userIDFromHeader(c)
	if !ok {
		return
	}

	var req joinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		badRequest(c, "invalid date format; expected YYYY-MM-DD")
		return
	}

	entry, err := s.bookings.JoinWaitlist(c.Request.Context(), userID, date, req.StartTime, req.EndTime, req.CourtID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleLeaveWaitlist(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid waitlist entry id")
		return
	}

	if err := s.bookings.LeaveWaitlist(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "waitlist entry removed"})
}

func (s *Server) handleListWaitlist(c *gin.Context) {
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	courtID, ok := int64Param(c, "court_id", true)
	if !ok {
		return
	}
	start := strings.TrimSpace(c.Query("start"))
	end := strings.TrimSpace(c.Query("end"))
	if start == "" || end == "" {
		badRequest(c, "start and end are required")
		return
	}

	entries, err := s.bookings.ListWaitlist(c.Request.Context(), courtID, date, start, end)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleListCourts(c *gin.Context) {
	courts, err := s.catalog.Courts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courts": courts})
}

func (s *Server) handleListEquipment(c *gin.Context) {
	equipment, err := s.catalog.EquipmentList(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"equipment": equipment})
}

func (s *Server) handleListCoaches(c *gin.Context) {
	coaches, err := s.catalog.Coaches(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coaches": coaches})
}

func (s *Server) handleExportSchedule(c *gin.Context) {
	startDate, ok := dateParam(c, "start")
	if !ok {
		return
	}
	endDate, ok := dateParam(c, "end")
	if !ok {
		return
	}
	if endDate.Before(startDate) {
		badRequest(c, "end must not be before start")
		return
	}

	path, err := s.exporter.ScheduleFile(c.Request.Context(), startDate, endDate)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError переводит доменные ошибки в HTTP-статусы.
func (s *Server) respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError

	switch {
	case errors.As(err, &validationErr):
		badRequest(c, validationErr.Error())
	case errors.Is(err, database.ErrPastDate):
		badRequest(c, "date is in the past")
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":             conflictErr.Error(),
			"conflicts":         conflictErr.Conflicts,
			"waitlist_eligible": true,
		})
	case errors.Is(err, database.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "booking is already cancelled"})
	case errors.Is(err, database.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "booking belongs to another user"})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, database.ErrWaitlistNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "waitlist entry not found"})
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func userIDFromHeader(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader(userIDHeader))
	if raw == "" {
		badRequest(c, "x-user-id header is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid x-user-id header")
		return 0, false
	}
	return id, true
}

func dateParam(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		badRequest(c, name+" is required")
		return time.Time{}, false
	}
	date, err := timeutil.ParseDate(raw)
	if err != nil {
		badRequest(c, "invalid "+name+" format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

func int64Param(c *gin.Context, name string, required bool) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		if required {
			badRequest(c, name+" is required")
			return 0, false
		}
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// equipmentParam разбирает параметр вида "1:2,3" — id:количество,
// количество по умолчанию 1.
func equipmentParam(c *gin.Context) ([]models.BookingEquipment, bool) {
	raw := strings.TrimSpace(c.Query("equipment"))
	if raw == "" {
		return nil, true
	}

	parts := strings.Split(raw, ",")
	items := make([]models.BookingEquipment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idRaw, qtyRaw, hasQty := strings.Cut(part, ":")
		id, err := strconv.ParseInt(strings.TrimSpace(idRaw), 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid equipment parameter")
			return nil, false
		}

		qty := int64(1)
		if hasQty {
			qty, err = strconv.ParseInt(strings.TrimSpace(qtyRaw), 10, 64)
			if err != nil || qty <= 0 {
				badRequest(c, "invalid equipment quantity")
				return nil, false
			}
		}
		items = append(items, models.BookingEquipment{EquipmentID: id, Quantity: qty})
	}
	return items, true
}
