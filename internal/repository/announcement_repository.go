package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuskit/campus-api/internal/models"
)

// AnnouncementRepository handles persistence of announcement rows.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// audienceForRole maps a viewer role onto the audiences it may read.
func audienceForRole(role models.UserRole) []string {
	switch role {
	case models.RoleTeacher:
		return []string{string(models.AnnouncementAudienceAll), string(models.AnnouncementAudienceTeachers)}
	case models.RoleStudent:
		return []string{string(models.AnnouncementAudienceAll), string(models.AnnouncementAudienceStudents), string(models.AnnouncementAudienceClass)}
	default:
		return nil // admins see everything
	}
}

// List returns visible announcements, pinned first, then priority and recency.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	conditions := []string{"(a.expires_at IS NULL OR a.expires_at > NOW())", "a.published_at <= NOW()"}
	var args []interface{}

	var audiences []string
	for _, role := range filter.AudienceRoles {
		audiences = append(audiences, audienceForRole(role)...)
	}
	if len(audiences) > 0 {
		if len(filter.ClassIDs) > 0 {
			conditions = append(conditions, fmt.Sprintf("(a.audience = ANY($%d) AND (a.audience <> 'CLASS' OR a.target_class_id = ANY($%d)))", len(args)+1, len(args)+2))
			args = append(args, pq.Array(audiences), pq.Array(filter.ClassIDs))
		} else {
			conditions = append(conditions, fmt.Sprintf("a.audience = ANY($%d) AND a.audience <> 'CLASS'", len(args)+1))
			args = append(args, pq.Array(audiences))
		}
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.title, a.content, a.audience, a.target_class_id, a.priority, a.is_pinned,
        a.published_at, a.expires_at, a.created_by, a.created_at, a.updated_at
        FROM announcements a%s
        ORDER BY a.is_pinned DESC,
            CASE a.priority WHEN 'HIGH' THEN 0 WHEN 'NORMAL' THEN 1 ELSE 2 END,
            a.published_at DESC
        LIMIT %d OFFSET %d`, clause, size, offset)

	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM announcements a"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// FindByID returns an announcement by ID.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	const query = `SELECT id, title, content, audience, target_class_id, priority, is_pinned,
        published_at, expires_at, created_by, created_at, updated_at
        FROM announcements WHERE id = $1`
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create persists a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	announcement.CreatedAt = now
	announcement.UpdatedAt = now
	const query = `INSERT INTO announcements (id, title, content, audience, target_class_id, priority, is_pinned,
        published_at, expires_at, created_by, created_at, updated_at)
        VALUES (:id, :title, :content, :audience, :target_class_id, :priority, :is_pinned,
        :published_at, :expires_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update saves announcement changes.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	const query = `UPDATE announcements SET title = :title, content = :content, audience = :audience,
        target_class_id = :target_class_id, priority = :priority, is_pinned = :is_pinned,
        published_at = :published_at, expires_at = :expires_at, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement row.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
