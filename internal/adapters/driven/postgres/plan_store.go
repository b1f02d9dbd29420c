package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PlanStore = (*PlanStore)(nil)

// PlanStore implements driven.PlanStore using PostgreSQL. Plans are
// stored in their weekly-slot shape: one column per weekly slot plus an
// overflow column, matching domain.PlanDocument field for field.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new PlanStore
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

// Save creates or updates a plan document
func (s *PlanStore) Save(ctx context.Context, doc *domain.PlanDocument) error {
	topics, err := json.Marshal(doc.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	query := `
		INSERT INTO learning_plans (
			id, student_id, title, description, subject, topics,
			status, progress_percentage, start_date, end_date, created_at, updated_at,
			activities_week_1, activities_week_2, activities_week_3, activities_week_4,
			activities_week_5, activities_week_6, activities_week_7, activities_week_8,
			activities_overflow
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			topics = EXCLUDED.topics,
			status = EXCLUDED.status,
			progress_percentage = EXCLUDED.progress_percentage,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			updated_at = EXCLUDED.updated_at,
			activities_week_1 = EXCLUDED.activities_week_1,
			activities_week_2 = EXCLUDED.activities_week_2,
			activities_week_3 = EXCLUDED.activities_week_3,
			activities_week_4 = EXCLUDED.activities_week_4,
			activities_week_5 = EXCLUDED.activities_week_5,
			activities_week_6 = EXCLUDED.activities_week_6,
			activities_week_7 = EXCLUDED.activities_week_7,
			activities_week_8 = EXCLUDED.activities_week_8,
			activities_overflow = EXCLUDED.activities_overflow
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.ID,
		doc.StudentID,
		doc.Title,
		doc.Description,
		doc.Subject,
		topics,
		string(doc.Status),
		doc.ProgressPercentage,
		doc.StartDate,
		doc.EndDate,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.ActivitiesWeek[0],
		doc.ActivitiesWeek[1],
		doc.ActivitiesWeek[2],
		doc.ActivitiesWeek[3],
		doc.ActivitiesWeek[4],
		doc.ActivitiesWeek[5],
		doc.ActivitiesWeek[6],
		doc.ActivitiesWeek[7],
		doc.ActivitiesOverflow,
	)
	return err
}

// Get retrieves a plan document by ID
func (s *PlanStore) Get(ctx context.Context, id string) (*domain.PlanDocument, error) {
	query := selectPlanQuery + ` WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	doc, err := scanPlanDocument(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListByStudent retrieves a student's plan documents, newest first
func (s *PlanStore) ListByStudent(ctx context.Context, studentID string) ([]*domain.PlanDocument, error) {
	query := selectPlanQuery + ` WHERE student_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.PlanDocument
	for rows.Next() {
		doc, err := scanPlanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

const selectPlanQuery = `
	SELECT id, student_id, title, description, subject, topics,
		status, progress_percentage, start_date, end_date, created_at, updated_at,
		activities_week_1, activities_week_2, activities_week_3, activities_week_4,
		activities_week_5, activities_week_6, activities_week_7, activities_week_8,
		activities_overflow
	FROM learning_plans
`

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanPlanDocument(row scanner) (*domain.PlanDocument, error) {
	var doc domain.PlanDocument
	var topics []byte

	err := row.Scan(
		&doc.ID,
		&doc.StudentID,
		&doc.Title,
		&doc.Description,
		&doc.Subject,
		&topics,
		&doc.Status,
		&doc.ProgressPercentage,
		&doc.StartDate,
		&doc.EndDate,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.ActivitiesWeek[0],
		&doc.ActivitiesWeek[1],
		&doc.ActivitiesWeek[2],
		&doc.ActivitiesWeek[3],
		&doc.ActivitiesWeek[4],
		&doc.ActivitiesWeek[5],
		&doc.ActivitiesWeek[6],
		&doc.ActivitiesWeek[7],
		&doc.ActivitiesOverflow,
	)
	if err != nil {
		return nil, err
	}

	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &doc.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
	}

	return &doc, nil
}
