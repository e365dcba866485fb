package handler

import (
	"encoding/json"
	"errors"
	"net/http"
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

type TaskHandler struct {
	taskSvc    service.TaskServiceInterface
	tasks      repository.TaskRepository
	storageSvc service.StorageService
}

func NewTaskHandler(taskSvc service.TaskServiceInterface, tasks repository.TaskRepository, storageSvc service.StorageService) *TaskHandler {
	return &TaskHandler{taskSvc: taskSvc, tasks: tasks, storageSvc: storageSvc}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  *uint  `json:"assigned_to"`
	Status      string `json:"status"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "title is required", nil)
		return
	}

	task, err := h.taskSvc.CreateTask(r.Context(), projectID, user.ID, service.CreateTaskInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		Status:      domain.TaskStatus(req.Status),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "unknown task status", map[string]any{
				"available_statuses": domain.AvailableTaskStatuses,
			})
		case errors.Is(err, service.ErrMemberNotInProject):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "assignee is not a member of this project", nil)
		default:
			observability.RecordTaskEvent(r.Context(), "create", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to create task", nil)
		}
		return
	}
	observability.RecordTaskEvent(r.Context(), "create", "success")
	response.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := middleware.ProjectIDFromRequest(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid project id", nil)
		return
	}

	q := repository.TaskListQuery{
		PageRequest: repository.PageRequest{
			Page:     queryInt(r, "page"),
			PageSize: queryInt(r, "page_size"),
		},
		Status: domain.TaskStatus(r.URL.Query().Get("status")),
	}
	if assignee := queryInt(r, "assigned_to"); assignee > 0 {
		q.AssignedTo = uint(assignee)
	}

	page, err := h.taskSvc.ListTasks(r.Context(), projectID, q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "unknown task status", map[string]any{
				"available_statuses": domain.AvailableTaskStatuses,
			})
			return
		}
		observability.RecordTaskEvent(r.Context(), "list", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to list tasks", nil)
		return
	}
	observability.RecordTaskEvent(r.Context(), "list", "success")
	response.JSON(w, r, http.StatusOK, page)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	task, err := h.taskSvc.GetTask(r.Context(), projectID, taskID)
	if err != nil {
		h.writeTaskError(w, r, "get", err)
		return
	}
	response.JSON(w, r, http.StatusOK, task)
}

type updateTaskRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	AssignedTo    *uint   `json:"assigned_to"`
	ClearAssignee bool    `json:"clear_assignee"`
	Status        *string `json:"status"`
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	in := service.UpdateTaskInput{
		Title:         req.Title,
		Description:   req.Description,
		AssignedTo:    req.AssignedTo,
		ClearAssignee: req.ClearAssignee,
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		in.Status = &status
	}

	task, err := h.taskSvc.UpdateTask(r.Context(), projectID, taskID, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "unknown task status", map[string]any{
				"available_statuses": domain.AvailableTaskStatuses,
			})
		case errors.Is(err, service.ErrMemberNotInProject):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "assignee is not a member of this project", nil)
		default:
			h.writeTaskError(w, r, "update", err)
		}
		return
	}
	observability.RecordTaskEvent(r.Context(), "update", "success")
	response.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	if err := h.taskSvc.DeleteTask(r.Context(), projectID, taskID); err != nil {
		h.writeTaskError(w, r, "delete", err)
		return
	}
	observability.RecordTaskEvent(r.Context(), "delete", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

type subTaskRequest struct {
	Title       *string `json:"title"`
	IsCompleted *bool   `json:"is_completed"`
}

func (h *TaskHandler) CreateSubTask(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required", nil)
		return
	}
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	var req subTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "title is required", nil)
		return
	}

	st, err := h.taskSvc.CreateSubTask(r.Context(), projectID, taskID, user.ID, strings.TrimSpace(*req.Title))
	if err != nil {
		h.writeTaskError(w, r, "create_subtask", err)
		return
	}
	observability.RecordTaskEvent(r.Context(), "create_subtask", "success")
	response.JSON(w, r, http.StatusCreated, st)
}

func (h *TaskHandler) UpdateSubTask(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	subTaskID, err := routeID(r, "subTaskId")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid subtask id", nil)
		return
	}
	var req subTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid request body", nil)
		return
	}

	st, err := h.taskSvc.UpdateSubTask(r.Context(), projectID, taskID, subTaskID, req.Title, req.IsCompleted)
	if err != nil {
		h.writeTaskError(w, r, "update_subtask", err)
		return
	}
	observability.RecordTaskEvent(r.Context(), "update_subtask", "success")
	response.JSON(w, r, http.StatusOK, st)
}

func (h *TaskHandler) DeleteSubTask(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	subTaskID, err := routeID(r, "subTaskId")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "invalid subtask id", nil)
		return
	}
	if err := h.taskSvc.DeleteSubTask(r.Context(), projectID, taskID, subTaskID); err != nil {
		h.writeTaskError(w, r, "delete_subtask", err)
		return
	}
	observability.RecordTaskEvent(r.Context(), "delete_subtask", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

// UploadAttachment stores the file in object storage and records the
// attachment row on the task.
func (h *TaskHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	projectID, taskID, err := taskRouteIDs(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, err.Error(), nil)
		return
	}
	if _, err := h.taskSvc.GetTask(r.Context(), projectID, taskID); err != nil {
		h.writeTaskError(w, r, "upload_attachment", err)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "failed to parse multipart form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "file is required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	objectKey, err := h.storageSvc.UploadAttachment(r.Context(), taskID, file, header.Size, contentType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooBig):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "file size exceeds 10MB limit", nil)
		case errors.Is(err, service.ErrInvalidFileType):
			response.Error(w, r, http.StatusBadRequest, response.CodeBadRequest, "file type is not allowed", nil)
		default:
			observability.RecordTaskEvent(r.Context(), "upload_attachment", "error")
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to upload attachment", nil)
		}
		return
	}

	attachment := &domain.TaskAttachment{
		TaskID:    taskID,
		ObjectKey: objectKey,
		FileName:  header.Filename,
		MimeType:  contentType,
		Size:      header.Size,
	}
	if err := h.tasks.AddAttachment(attachment); err != nil {
		observability.RecordTaskEvent(r.Context(), "upload_attachment", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to record attachment", nil)
		return
	}

	url, err := h.storageSvc.GenerateAttachmentURL(r.Context(), objectKey)
	if err != nil {
		observability.RecordTaskEvent(r.Context(), "upload_attachment", "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "failed to generate attachment URL", nil)
		return
	}
	observability.RecordTaskEvent(r.Context(), "upload_attachment", "success")
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"attachment": attachment,
		"url":        url,
	})
}

func (h *TaskHandler) writeTaskError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, repository.ErrSubTaskNotFound),
		errors.Is(err, service.ErrTaskNotInProject):
		// A task in another project is indistinguishable from a missing one.
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "task not found", nil)
	default:
		observability.RecordTaskEvent(r.Context(), action, "error")
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "operation failed", nil)
	}
}

func taskRouteIDs(r *http.Request) (projectID, taskID uint, err error) {
	projectID, err = middleware.ProjectIDFromRequest(r)
	if err != nil {
		return 0, 0, errors.New("invalid project id")
	}
	taskID, err = routeID(r, "taskId")
	if err != nil {
		return 0, 0, errors.New("invalid task id")
	}
	return projectID, taskID, nil
}

func routeID(r *http.Request, param string) (uint, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
