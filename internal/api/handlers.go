package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gigflow/internal/common/auth"
	"gigflow/internal/common/errors"
	"gigflow/internal/common/validation"
	"gigflow/internal/marketplace"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Budget      int64  `json:"budget"`
}

type submitProposalRequest struct {
	GigID   string `json:"gigId"`
	Message string `json:"message"`
	Price   int64  `json:"price"`
}

// decode validates the body against schema before unmarshalling it into dst.
func decode(r *http.Request, schema string, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.NewValidationFailedError("could not read request body")
	}
	if err := validation.ValidateRequest(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewValidationFailedError("body is not valid JSON")
	}
	return nil
}

func caller(r *http.Request) string {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

// ==========================
// Gigs
// ==========================

func (s *Server) handleListOpenTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListOpenTasks(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decode(r, validation.SchemaCreateTask, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := s.service.CreateTask(r.Context(), marketplace.CreateTaskInput{
		OwnerID:     caller(r),
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, task)
}

func (s *Server) handleListMyTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListMyTasks(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

// ==========================
// Bids
// ==========================

func (s *Server) handleSubmitProposal(w http.ResponseWriter, r *http.Request) {
	var req submitProposalRequest
	if err := decode(r, validation.SchemaSubmitProposal, &req); err != nil {
		writeError(w, err)
		return
	}
	proposal, err := s.service.SubmitProposal(r.Context(), marketplace.SubmitProposalInput{
		TaskID:     req.GigID,
		ProposerID: caller(r),
		Message:    req.Message,
		Price:      req.Price,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, proposal)
}

func (s *Server) handleListMyProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.service.ListMyProposals(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, proposals)
}

func (s *Server) handleListProposalsForTask(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.service.ListProposalsForTask(r.Context(), chi.URLParam(r, "gigId"), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, proposals)
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	proposal, err := s.service.Hire(r.Context(), chi.URLParam(r, "bidId"), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, proposal)
}
