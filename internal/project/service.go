package project

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type ProjectService interface {
	Create(ctx context.Context, name, url string) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]*Project, error)
	Update(ctx context.Context, id string, patch Patch) (*Project, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	RenameIfDefault(ctx context.Context, id, title string) (*Project, error)
	AttachVideo(ctx context.Context, id string, video VideoInfo) (*Project, error)
	RecordExport(ctx context.Context, projectID, format string, segmentCount int, objectKey string) error
}

// VideoInfo describes a finished download.
type VideoInfo struct {
	Path     string
	Duration float64
	Title    string
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, name, url string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}

	now := s.now().UTC()
	p := &Project{
		ID:        NewID(),
		Name:      name,
		URL:       strings.TrimSpace(url),
		Segments:  []Segment{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []*Project{}
	}
	return projects, nil
}

// Update merges patch into the stored project. Segments without an id are
// assigned one.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Project, error) {
	if patch.Segments != nil {
		if err := ValidateSegments(*patch.Segments); err != nil {
			return nil, err
		}
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(p)
	for i := range p.Segments {
		if p.Segments[i].ID == "" {
			p.Segments[i].ID = NewID()
		}
	}
	if p.Segments == nil {
		p.Segments = []Segment{}
	}

	return p, s.save(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if s.logger != nil {
		s.logger.Info("project deleted", "project_id", id)
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.CountProjects(ctx)
}

// RenameIfDefault replaces an empty or default name with title.
func (s *Service) RenameIfDefault(ctx context.Context, id, title string) (*Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if title == "" || !p.HasDefaultName() {
		return p, nil
	}
	p.Name = title
	return p, s.save(ctx, p)
}

func (s *Service) AttachVideo(ctx context.Context, id string, video VideoInfo) (*Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.VideoPath = video.Path
	p.Duration = video.Duration
	p.Title = video.Title
	if video.Title != "" && p.HasDefaultName() {
		p.Name = video.Title
	}

	return p, s.save(ctx, p)
}

func (s *Service) RecordExport(ctx context.Context, projectID, format string, segmentCount int, objectKey string) error {
	return s.repo.RecordExport(ctx, &ExportRecord{
		ID:           NewID(),
		ProjectID:    projectID,
		Format:       format,
		SegmentCount: segmentCount,
		ObjectKey:    objectKey,
		CreatedAt:    s.now().UTC(),
	})
}

func (s *Service) save(ctx context.Context, p *Project) error {
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveProject(ctx, p); err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

// ValidationError reports a malformed segment in an update.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("segment %d: %s", e.Index, e.Reason)
}

func ValidateSegments(segs []Segment) error {
	for i, seg := range segs {
		switch {
		case seg.Start < 0:
			return &ValidationError{Index: i, Reason: "start must not be negative"}
		case seg.End <= seg.Start:
			return &ValidationError{Index: i, Reason: "end must be after start"}
		}
	}
	return nil
}
