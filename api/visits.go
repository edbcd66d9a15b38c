package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/clinops/service"
)

func (s *Server) scheduleVisit(c *gin.Context) {
	var req service.ScheduleVisitRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.ScheduleVisit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusCreated, view)
}

func (s *Server) getVisit(c *gin.Context) {
	view, err := s.svc.GetVisit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) rescheduleVisit(c *gin.Context) {
	var req service.RescheduleVisitRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.RescheduleVisit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) changeVisitStatus(c *gin.Context) {
	var req service.StatusRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.ChangeVisitStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) visitHistory(c *gin.Context) {
	history, err := s.svc.VisitHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
