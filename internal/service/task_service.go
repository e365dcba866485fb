package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
)

var (
	ErrInvalidStatus    = errors.New("unknown task status")
	ErrTaskNotInProject = errors.New("task does not belong to this project")
)

type CreateTaskInput struct {
	Title       string
	Description string
	AssignedTo  *uint
	Status      domain.TaskStatus
}

type UpdateTaskInput struct {
	Title         *string
	Description   *string
	AssignedTo    *uint
	ClearAssignee bool
	Status        *domain.TaskStatus
}

type TaskServiceInterface interface {
	CreateTask(ctx context.Context, projectID, creatorID uint, in CreateTaskInput) (*domain.Task, error)
	ListTasks(ctx context.Context, projectID uint, q repository.TaskListQuery) (repository.PageResult[domain.Task], error)
	GetTask(ctx context.Context, projectID, taskID uint) (*domain.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID uint, in UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID uint) error

	CreateSubTask(ctx context.Context, projectID, taskID, creatorID uint, title string) (*domain.SubTask, error)
	UpdateSubTask(ctx context.Context, projectID, taskID, subTaskID uint, title *string, isCompleted *bool) (*domain.SubTask, error)
	DeleteSubTask(ctx context.Context, projectID, taskID, subTaskID uint) error
}

type TaskService struct {
	tasks       repository.TaskRepository
	memberships repository.MembershipRepository
	logger      *slog.Logger
}

func NewTaskService(tasks repository.TaskRepository, memberships repository.MembershipRepository, logger *slog.Logger) *TaskService {
	return &TaskService{tasks: tasks, memberships: memberships, logger: logger}
}

func (s *TaskService) CreateTask(ctx context.Context, projectID, creatorID uint, in CreateTaskInput) (*domain.Task, error) {
	status := in.Status
	if status == "" {
		status = domain.TaskStatusTodo
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if in.AssignedTo != nil {
		if err := s.ensureMember(projectID, *in.AssignedTo); err != nil {
			return nil, err
		}
	}
	t := &domain.Task{
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		AssignedBy:  creatorID,
		Status:      status,
	}
	if err := s.tasks.Create(t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.InfoContext(ctx, "task created", "project_id", projectID, "task_id", t.ID, "assigned_by", creatorID)
	return s.tasks.FindByID(t.ID)
}

func (s *TaskService) ListTasks(ctx context.Context, projectID uint, q repository.TaskListQuery) (repository.PageResult[domain.Task], error) {
	if q.Status != "" && !q.Status.Valid() {
		return repository.PageResult[domain.Task]{}, ErrInvalidStatus
	}
	return s.tasks.ListByProject(projectID, q)
}

// GetTask loads a task and checks it belongs to the project named in the
// route, so one project's membership cannot read another project's tasks.
func (s *TaskService) GetTask(ctx context.Context, projectID, taskID uint) (*domain.Task, error) {
	t, err := s.tasks.FindByID(taskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != projectID {
		return nil, ErrTaskNotInProject
	}
	return t, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, projectID, taskID uint, in UpdateTaskInput) (*domain.Task, error) {
	if _, err := s.GetTask(ctx, projectID, taskID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.Title != nil {
		fields["title"] = *in.Title
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		fields["status"] = *in.Status
	}
	switch {
	case in.ClearAssignee:
		fields["assigned_to"] = nil
	case in.AssignedTo != nil:
		if err := s.ensureMember(projectID, *in.AssignedTo); err != nil {
			return nil, err
		}
		fields["assigned_to"] = *in.AssignedTo
	}
	if len(fields) == 0 {
		return s.tasks.FindByID(taskID)
	}
	return s.tasks.Update(taskID, fields)
}

func (s *TaskService) DeleteTask(ctx context.Context, projectID, taskID uint) error {
	if _, err := s.GetTask(ctx, projectID, taskID); err != nil {
		return err
	}
	return s.tasks.Delete(taskID)
}

func (s *TaskService) CreateSubTask(ctx context.Context, projectID, taskID, creatorID uint, title string) (*domain.SubTask, error) {
	if _, err := s.GetTask(ctx, projectID, taskID); err != nil {
		return nil, err
	}
	st := &domain.SubTask{TaskID: taskID, Title: title, CreatedBy: creatorID}
	if err := s.tasks.CreateSubTask(st); err != nil {
		return nil, fmt.Errorf("create subtask: %w", err)
	}
	return st, nil
}

func (s *TaskService) UpdateSubTask(ctx context.Context, projectID, taskID, subTaskID uint, title *string, isCompleted *bool) (*domain.SubTask, error) {
	if err := s.ensureSubTask(ctx, projectID, taskID, subTaskID); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if title != nil {
		fields["title"] = *title
	}
	if isCompleted != nil {
		fields["is_completed"] = *isCompleted
	}
	if len(fields) == 0 {
		return s.tasks.FindSubTaskByID(subTaskID)
	}
	return s.tasks.UpdateSubTask(subTaskID, fields)
}

func (s *TaskService) DeleteSubTask(ctx context.Context, projectID, taskID, subTaskID uint) error {
	if err := s.ensureSubTask(ctx, projectID, taskID, subTaskID); err != nil {
		return err
	}
	return s.tasks.DeleteSubTask(subTaskID)
}

func (s *TaskService) ensureSubTask(ctx context.Context, projectID, taskID, subTaskID uint) error {
	if _, err := s.GetTask(ctx, projectID, taskID); err != nil {
		return err
	}
	st, err := s.tasks.FindSubTaskByID(subTaskID)
	if err != nil {
		return err
	}
	if st.TaskID != taskID {
		return repository.ErrSubTaskNotFound
	}
	return nil
}

// Assignees must already belong to the project.
func (s *TaskService) ensureMember(projectID, userID uint) error {
	if _, err := s.memberships.FindByProjectAndUser(projectID, userID); err != nil {
		if errors.Is(err, repository.ErrMembershipNotFound) {
			return ErrMemberNotInProject
		}
		return fmt.Errorf("check membership: %w", err)
	}
	return nil
}
