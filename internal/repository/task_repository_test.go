package repository

import (
	"errors"
	"testing"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
)

func TestTaskRepositoryListByProjectFiltersAndPages(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewTaskRepository(db)

	owner := createTestUser(t, db, "owner@example.com", "owner")
	worker := createTestUser(t, db, "worker@example.com", "worker")
	project := createTestProject(t, db, "apollo", owner.ID)
	other := createTestProject(t, db, "other", owner.ID)

	mustCreate := func(title string, projectID uint, status domain.TaskStatus, assignee *uint) {
		t.Helper()
		if err := repo.Create(&domain.Task{
			ProjectID:  projectID,
			Title:      title,
			AssignedBy: owner.ID,
			AssignedTo: assignee,
			Status:     status,
		}); err != nil {
			t.Fatalf("create task %s: %v", title, err)
		}
	}
	mustCreate("t1", project.ID, domain.TaskStatusTodo, &worker.ID)
	mustCreate("t2", project.ID, domain.TaskStatusInProgress, &worker.ID)
	mustCreate("t3", project.ID, domain.TaskStatusDone, nil)
	mustCreate("elsewhere", other.ID, domain.TaskStatusTodo, nil)

	page, err := repo.ListByProject(project.ID, TaskListQuery{PageRequest: PageRequest{Page: 1, PageSize: 2}})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.TotalPages != 2 {
		t.Fatalf("unexpected page: total=%d items=%d pages=%d", page.Total, len(page.Items), page.TotalPages)
	}

	filtered, err := repo.ListByProject(project.ID, TaskListQuery{
		PageRequest: PageRequest{Page: 1, PageSize: 10},
		Status:      domain.TaskStatusInProgress,
	})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if filtered.Total != 1 || filtered.Items[0].Title != "t2" {
		t.Fatalf("unexpected filtered result: %+v", filtered)
	}
	if filtered.Items[0].Assignee == nil || filtered.Items[0].Assignee.Username != "worker" {
		t.Fatalf("expected assignee preloaded, got %+v", filtered.Items[0].Assignee)
	}

	byAssignee, err := repo.ListByProject(project.ID, TaskListQuery{
		PageRequest: PageRequest{Page: 1, PageSize: 10},
		AssignedTo:  worker.ID,
	})
	if err != nil {
		t.Fatalf("list by assignee: %v", err)
	}
	if byAssignee.Total != 2 {
		t.Fatalf("expected 2 tasks for worker, got %d", byAssignee.Total)
	}
}

func TestTaskRepositoryCRUDWithSubTasksAndAttachments(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewTaskRepository(db)

	owner := createTestUser(t, db, "owner@example.com", "owner")
	project := createTestProject(t, db, "apollo", owner.ID)

	task := &domain.Task{ProjectID: project.ID, Title: "build", AssignedBy: owner.ID, Status: domain.TaskStatusTodo}
	if err := repo.Create(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := repo.AddAttachment(&domain.TaskAttachment{
		TaskID: task.ID, ObjectKey: "attachments/task-1/spec.pdf", FileName: "spec.pdf", MimeType: "application/pdf", Size: 1024,
	}); err != nil {
		t.Fatalf("add attachment: %v", err)
	}
	if err := repo.CreateSubTask(&domain.SubTask{TaskID: task.ID, Title: "step one", CreatedBy: owner.ID}); err != nil {
		t.Fatalf("create subtask: %v", err)
	}

	loaded, err := repo.FindByID(task.ID)
	if err != nil {
		t.Fatalf("find task: %v", err)
	}
	if len(loaded.Attachments) != 1 || len(loaded.SubTasks) != 1 {
		t.Fatalf("expected 1 attachment and 1 subtask, got %d/%d", len(loaded.Attachments), len(loaded.SubTasks))
	}

	updated, err := repo.Update(task.ID, map[string]interface{}{"status": domain.TaskStatusDone})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Status != domain.TaskStatusDone {
		t.Fatalf("expected status done, got %q", updated.Status)
	}

	st := loaded.SubTasks[0]
	updatedSub, err := repo.UpdateSubTask(st.ID, map[string]interface{}{"is_completed": true})
	if err != nil {
		t.Fatalf("update subtask: %v", err)
	}
	if !updatedSub.IsCompleted {
		t.Fatal("expected subtask completed")
	}

	if err := repo.DeleteSubTask(st.ID); err != nil {
		t.Fatalf("delete subtask: %v", err)
	}
	if _, err := repo.FindSubTaskByID(st.ID); !errors.Is(err, ErrSubTaskNotFound) {
		t.Fatalf("expected subtask gone, got %v", err)
	}

	if err := repo.Delete(task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := repo.FindByID(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}
}

func TestPaginationNormalization(t *testing.T) {
	norm := normalizePageRequest(PageRequest{})
	if norm.Page != DefaultPage || norm.PageSize != DefaultPageSize {
		t.Fatalf("unexpected defaults: %+v", norm)
	}
	norm = normalizePageRequest(PageRequest{Page: -2, PageSize: 5000})
	if norm.Page != DefaultPage || norm.PageSize != MaxPageSize {
		t.Fatalf("unexpected clamped request: %+v", norm)
	}
	if got := calcTotalPages(0, 10); got != 0 {
		t.Fatalf("expected 0 pages for empty set, got %d", got)
	}
	if got := calcTotalPages(21, 10); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
}
