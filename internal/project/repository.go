package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	SaveProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error
	CountProjects(ctx context.Context) (int, error)

	RecordExport(ctx context.Context, e *ExportRecord) error
	ListExports(ctx context.Context, projectID string) ([]*ExportRecord, error)
}

// ExportRecord is one finished export of a project.
type ExportRecord struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Format       string    `json:"format"`
	SegmentCount int       `json:"segment_count"`
	ObjectKey    string    `json:"object_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const projectColumns = `id, name, url, title, video_path, duration, segments, created_at, updated_at`

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	segments, err := encodeSegments(p.Segments)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullString(p.URL), nullString(p.Title), nullString(p.VideoPath), nullFloat(p.Duration),
		segments, p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepository) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *SQLiteRepository) SaveProject(ctx context.Context, p *Project) error {
	segments, err := encodeSegments(p.Segments)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, url = ?, title = ?, video_path = ?, duration = ?, segments = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, nullString(p.URL), nullString(p.Title), nullString(p.VideoPath), nullFloat(p.Duration),
		segments, p.UpdatedAt.Format(time.RFC3339), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepository) CountProjects(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) RecordExport(ctx context.Context, e *ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (id, project_id, format, segment_count, object_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.Format, e.SegmentCount, nullString(e.ObjectKey), e.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ListExports(ctx context.Context, projectID string) ([]*ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, format, segment_count, object_key, created_at
		FROM exports WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ExportRecord
	for rows.Next() {
		var e ExportRecord
		var objectKey sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Format, &e.SegmentCount, &objectKey, &createdAt); err != nil {
			return nil, err
		}
		e.ObjectKey = objectKey.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, &e)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	var url, title, videoPath sql.NullString
	var duration sql.NullFloat64
	var segments, createdAt, updatedAt string

	if err := row.Scan(&p.ID, &p.Name, &url, &title, &videoPath, &duration, &segments, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.URL = url.String
	p.Title = title.String
	p.VideoPath = videoPath.String
	p.Duration = duration.Float64
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	p.Segments = []Segment{}
	if segments != "" {
		if err := json.Unmarshal([]byte(segments), &p.Segments); err != nil {
			return nil, fmt.Errorf("decode segments of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeSegments(segs []Segment) (string, error) {
	if segs == nil {
		segs = []Segment{}
	}
	data, err := json.Marshal(segs)
	if err != nil {
		return "", fmt.Errorf("encode segments: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}
