package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/clinops/service"
)

func (s *Server) createProtocolVersion(c *gin.Context) {
	var req service.CreateProtocolVersionRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.CreateProtocolVersion(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusCreated, view)
}

func (s *Server) getProtocolVersion(c *gin.Context) {
	view, err := s.svc.GetProtocolVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) updateProtocolVersion(c *gin.Context) {
	var req service.UpdateProtocolVersionRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.UpdateProtocolVersion(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) changeProtocolVersionStatus(c *gin.Context) {
	var req service.StatusRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.ChangeProtocolVersionStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) protocolVersionHistory(c *gin.Context) {
	history, err := s.svc.ProtocolVersionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
