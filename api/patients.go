package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/clinops/service"
)

func (s *Server) registerPatient(c *gin.Context) {
	var req service.RegisterPatientRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.RegisterPatient(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusCreated, view)
}

func (s *Server) getPatient(c *gin.Context) {
	view, err := s.svc.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) updatePatient(c *gin.Context) {
	var req service.UpdatePatientRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.UpdatePatient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) changePatientStatus(c *gin.Context) {
	var req service.StatusRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.ChangePatientStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) patientHistory(c *gin.Context) {
	history, err := s.svc.PatientHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
