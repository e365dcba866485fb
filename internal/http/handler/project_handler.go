package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/http/response"
	"github.com/ramcharankhv-byte/taskhub/internal/observability"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/service"
)

type ProjectHandler struct {
	projectSvc service.ProjectServiceInterface
}

func NewProjectHandler(projectSvc service.ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{projectSvc: projectSvc}
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (req *projectRequest) validate() map[string]string {
	if strings.TrimSpace(req.Name) == "" {
		return map[string]string{"name": "is required"}
	}
	return nil
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if problems := req.validate(); problems != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "validation failed", problems)
		return
	}

	p, err := h.projectSvc.CreateProject(r.Context(), strings.TrimSpace(req.Name), req.Description, user.ID)
	if err != nil {
		observability.RecordProjectEvent(r.Context(), "create", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to create project", nil)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "project.create",
		ActorUserID: observability.ActorUserID(user.ID),
		TargetType:  "project",
		TargetID:    strconv.FormatUint(uint64(p.ID), 10),
		Action:      "create",
		Outcome:     "success",
		Reason:      "project_created",
	})
	observability.RecordProjectEvent(r.Context(), "create", "success")
	response.JSON(w, r, http.StatusCreated, p)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	projects, err := h.projectSvc.ListProjects(r.Context(), user.ID)
	if err != nil {
		observability.RecordProjectEvent(r.Context(), "list", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to list projects", nil)
		return
	}
	observability.RecordProjectEvent(r.Context(), "list", "success")
	response.JSON(w, r, http.StatusOK, projects)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	p, err := h.projectSvc.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "project not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to load project", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if problems := req.validate(); problems != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "validation failed", problems)
		return
	}
	p, err := h.projectSvc.UpdateProject(r.Context(), projectID, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "project not found", nil)
			return
		}
		observability.RecordProjectEvent(r.Context(), "update", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to update project", nil)
		return
	}
	observability.RecordProjectEvent(r.Context(), "update", "success")
	response.JSON(w, r, http.StatusOK, p)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	if err := h.projectSvc.DeleteProject(r.Context(), projectID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "project not found", nil)
			return
		}
		observability.RecordProjectEvent(r.Context(), "delete", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to delete project", nil)
		return
	}
	if user != nil {
		observability.EmitAudit(r, observability.AuditInput{
			EventName:   "project.delete",
			ActorUserID: observability.ActorUserID(user.ID),
			TargetType:  "project",
			TargetID:    strconv.FormatUint(uint64(projectID), 10),
			Action:      "delete",
			Outcome:     "success",
			Reason:      "project_deleted",
		})
	}
	observability.RecordProjectEvent(r.Context(), "delete", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid email address", nil)
		return
	}

	m, err := h.projectSvc.AddMember(r.Context(), projectID, req.Email, domain.MemberRole(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "unknown member role", map[string]any{
				"available_roles": domain.AvailableMemberRoles,
			})
		case errors.Is(err, repository.ErrUserNotFound):
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "no user with that email", nil)
		default:
			observability.RecordProjectEvent(r.Context(), "add_member", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to add member", nil)
		}
		return
	}
	if user != nil {
		observability.EmitAudit(r, observability.AuditInput{
			EventName:   "project.member.add",
			ActorUserID: observability.ActorUserID(user.ID),
			TargetType:  "membership",
			TargetID:    strconv.FormatUint(uint64(m.UserID), 10),
			Action:      "add",
			Outcome:     "success",
			Reason:      "member_enrolled",
		}, "project_id", projectID, "role", string(m.Role))
	}
	observability.RecordProjectEvent(r.Context(), "add_member", "success")
	response.JSON(w, r, http.StatusCreated, m)
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	members, err := h.projectSvc.ListMembers(r.Context(), projectID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to list members", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, members)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *ProjectHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	memberID, err := memberIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid member id", nil)
		return
	}
	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	m, err := h.projectSvc.ChangeMemberRole(r.Context(), projectID, memberID, domain.MemberRole(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "unknown member role", map[string]any{
				"available_roles": domain.AvailableMemberRoles,
			})
		case errors.Is(err, service.ErrLastAdminRemoval):
			response.Error(w, r, http.StatusConflict, response.CodeConflict, "a project must keep at least one admin", nil)
		case errors.Is(err, repository.ErrMembershipNotFound):
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "membership not found", nil)
		default:
			observability.RecordProjectEvent(r.Context(), "change_role", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to change role", nil)
		}
		return
	}
	if user != nil {
		observability.EmitAudit(r, observability.AuditInput{
			EventName:   "project.member.change_role",
			ActorUserID: observability.ActorUserID(user.ID),
			TargetType:  "membership",
			TargetID:    strconv.FormatUint(uint64(memberID), 10),
			Action:      "change_role",
			Outcome:     "success",
			Reason:      "role_updated",
		}, "project_id", projectID, "role", string(m.Role))
	}
	observability.RecordProjectEvent(r.Context(), "change_role", "success")
	response.JSON(w, r, http.StatusOK, m)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	memberID, err := memberIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid member id", nil)
		return
	}

	if err := h.projectSvc.RemoveMember(r.Context(), projectID, memberID); err != nil {
		switch {
		case errors.Is(err, service.ErrLastAdminRemoval):
			response.Error(w, r, http.StatusConflict, response.CodeConflict, "a project must keep at least one admin", nil)
		case errors.Is(err, repository.ErrMembershipNotFound):
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "membership not found", nil)
		default:
			observability.RecordProjectEvent(r.Context(), "remove_member", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to remove member", nil)
		}
		return
	}
	if user != nil {
		observability.EmitAudit(r, observability.AuditInput{
			EventName:   "project.member.remove",
			ActorUserID: observability.ActorUserID(user.ID),
			TargetType:  "membership",
			TargetID:    strconv.FormatUint(uint64(memberID), 10),
			Action:      "remove",
			Outcome:     "success",
			Reason:      "member_removed",
		}, "project_id", projectID)
	}
	observability.RecordProjectEvent(r.Context(), "remove_member", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"removed": true})
}

func memberIDFromRequest(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "userId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid member id")
	}
	return uint(id), nil
}
