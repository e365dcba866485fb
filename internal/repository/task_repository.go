package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

// TaskListQuery filters and pages a project's tasks.
type TaskListQuery struct {
	PageRequest
	Status     domain.TaskStatus
	AssignedTo uint
}

type TaskRepository interface {
	Create(t *domain.Task) error
	FindByID(id uint) (*domain.Task, error)
	ListByProject(projectID uint, q TaskListQuery) (PageResult[domain.Task], error)
	Update(id uint, fields map[string]interface{}) (*domain.Task, error)
	Delete(id uint) error

	CreateSubTask(st *domain.SubTask) error
	FindSubTaskByID(id uint) (*domain.SubTask, error)
	UpdateSubTask(id uint, fields map[string]interface{}) (*domain.SubTask, error)
	DeleteSubTask(id uint) error

	AddAttachment(a *domain.TaskAttachment) error
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(t *domain.Task) error {
	return r.db.Create(t).Error
}

func (r *taskRepository) FindByID(id uint) (*domain.Task, error) {
	var t domain.Task
	err := r.db.
		Preload("Assignee").
		Preload("SubTasks").
		Preload("Attachments").
		First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *taskRepository) ListByProject(projectID uint, q TaskListQuery) (PageResult[domain.Task], error) {
	page := normalizePageRequest(q.PageRequest)

	tx := r.db.Model(&domain.Task{}).Where("project_id = ?", projectID)
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.AssignedTo != 0 {
		tx = tx.Where("assigned_to = ?", q.AssignedTo)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return PageResult[domain.Task]{}, err
	}

	var items []domain.Task
	err := tx.
		Preload("Assignee").
		Order("created_at").
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&items).Error
	if err != nil {
		return PageResult[domain.Task]{}, err
	}

	return PageResult[domain.Task]{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, page.PageSize),
	}, nil
}

func (r *taskRepository) Update(id uint, fields map[string]interface{}) (*domain.Task, error) {
	res := r.db.Model(&domain.Task{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTaskNotFound
	}
	return r.FindByID(id)
}

func (r *taskRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Task{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) CreateSubTask(st *domain.SubTask) error {
	return r.db.Create(st).Error
}

func (r *taskRepository) FindSubTaskByID(id uint) (*domain.SubTask, error) {
	var st domain.SubTask
	if err := r.db.First(&st, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubTaskNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (r *taskRepository) UpdateSubTask(id uint, fields map[string]interface{}) (*domain.SubTask, error) {
	res := r.db.Model(&domain.SubTask{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrSubTaskNotFound
	}
	return r.FindSubTaskByID(id)
}

func (r *taskRepository) DeleteSubTask(id uint) error {
	res := r.db.Delete(&domain.SubTask{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSubTaskNotFound
	}
	return nil
}

func (r *taskRepository) AddAttachment(a *domain.TaskAttachment) error {
	return r.db.Create(a).Error
}
