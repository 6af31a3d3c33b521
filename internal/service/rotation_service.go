package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/internal/dto"
	"github.com/noah-isme/attendo-api/internal/models"
	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RotationService hands every teacher their own coordinator and enforces course ownership.
type RotationService struct {
	courses  courseReader
	settings RotationSettings
	deps     RotationDeps
	logger   *zap.Logger

	mu           sync.Mutex
	coordinators map[string]*RotationCoordinator
}

// NewRotationService constructs the service.
func NewRotationService(courses courseReader, settings RotationSettings, deps RotationDeps, logger *zap.Logger) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &RotationService{
		courses:      courses,
		settings:     settings,
		deps:         deps,
		logger:       logger,
		coordinators: make(map[string]*RotationCoordinator),
	}
}

func (s *RotationService) coordinator(teacherID string) *RotationCoordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coordinators[teacherID]
	if !ok {
		c = NewRotationCoordinator(teacherID, s.settings, s.deps)
		s.coordinators[teacherID] = c
	}
	return c
}

// Start begins code rotation for a course the teacher owns.
func (s *RotationService) Start(ctx context.Context, teacherID string, req dto.StartRotationRequest) (dto.RotationSnapshot, error) {
	if req.CourseID == "" {
		return dto.RotationSnapshot{}, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dto.RotationSnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return dto.RotationSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.TeacherID != teacherID {
		return dto.RotationSnapshot{}, appErrors.Clone(appErrors.ErrForbidden, "you do not teach this course")
	}

	c := s.coordinator(teacherID)
	if err := c.Start(course.ID); err != nil {
		return dto.RotationSnapshot{}, err
	}
	return c.Snapshot(), nil
}

// Stop ends the teacher's session if any.
func (s *RotationService) Stop(teacherID string) dto.RotationSnapshot {
	c := s.coordinator(teacherID)
	c.Stop()
	return c.Snapshot()
}

// Snapshot returns the teacher's current display state.
func (s *RotationService) Snapshot(teacherID string) dto.RotationSnapshot {
	return s.coordinator(teacherID).Snapshot()
}

// SetBatchSize changes the teacher's batch size while idle.
func (s *RotationService) SetBatchSize(teacherID string, req dto.BatchSizeRequest) (dto.RotationSnapshot, error) {
	c := s.coordinator(teacherID)
	if err := c.SetBatchTargetSize(req.Size); err != nil {
		return dto.RotationSnapshot{}, err
	}
	return c.Snapshot(), nil
}

// Subscribe streams the teacher's snapshots.
func (s *RotationService) Subscribe(teacherID string) (<-chan dto.RotationSnapshot, func()) {
	return s.coordinator(teacherID).Subscribe()
}

// Shutdown stops every session and waits for dispatched commits.
func (s *RotationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	coordinators := make([]*RotationCoordinator, 0, len(s.coordinators))
	for _, c := range s.coordinators {
		coordinators = append(coordinators, c)
	}
	s.mu.Unlock()

	for _, c := range coordinators {
		c.Stop()
	}
	for _, c := range coordinators {
		if err := c.Wait(ctx); err != nil {
			s.logger.Warn("pending commits abandoned on shutdown", zap.Error(err))
			return err
		}
	}
	return nil
}
