package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/clinops/service"
)

func (s *Server) createStudy(c *gin.Context) {
	var req service.CreateStudyRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.CreateStudy(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusCreated, view)
}

func (s *Server) getStudy(c *gin.Context) {
	view, err := s.svc.GetStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) updateStudy(c *gin.Context) {
	var req service.UpdateStudyRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.UpdateStudy(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) changeStudyStatus(c *gin.Context) {
	var req service.StatusRequest
	if !bind(c, &req) {
		return
	}
	view, err := s.svc.ChangeStudyStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondView(c, http.StatusOK, view)
}

func (s *Server) studyHistory(c *gin.Context) {
	history, err := s.svc.StudyHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) listProtocolVersions(c *gin.Context) {
	versions, err := s.svc.ListProtocolVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}
