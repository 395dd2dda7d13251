package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// Querier is the database surface the services use. Satisfied by *sql.DB and
// *sql.Tx; tests fake it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MealService persists completed estimations.
type MealService struct {
	db Querier
}

// NewMealService creates a meal service over the given database.
func NewMealService(db Querier) *MealService {
	return &MealService{db: db}
}

// SaveMeal inserts a meal record. Idempotent on job id: a conflicting insert
// from a redelivered job is a silent no-op.
func (s *MealService) SaveMeal(ctx context.Context, meal *models.Meal) error {
	if meal == nil {
		return NewValidationError("meal", "must not be nil")
	}
	if meal.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	if meal.JobID == "" {
		return NewValidationError("job_id", "must not be empty")
	}
	if err := meal.Estimate.Validate(); err != nil {
		return NewValidationError("estimate", err.Error())
	}

	items, err := json.Marshal(meal.Estimate.Items)
	if err != nil {
		return fmt.Errorf("encoding meal items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meals (
			id, job_id, source_user_hash, chat_id_hash, trigger_type, caption,
			photo_count, calories_mean, calories_min, calories_max,
			protein_g, carbs_g, fats_g, items, confidence,
			model_latency_ms, low_confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (job_id) DO NOTHING`,
		meal.ID, meal.JobID, meal.SourceUserHash, meal.ChatIDHash,
		string(meal.TriggerType), meal.Caption, meal.PhotoCount,
		meal.Estimate.CaloriesMean, meal.Estimate.CaloriesMin, meal.Estimate.CaloriesMax,
		meal.Estimate.Macronutrients.ProteinG, meal.Estimate.Macronutrients.CarbsG,
		meal.Estimate.Macronutrients.FatsG, items, meal.Estimate.Confidence,
		meal.Estimate.ModelLatencyMs, meal.Estimate.LowConfidence, meal.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting meal: %w", err)
	}
	return nil
}

// GetMealByJobID fetches the meal persisted for a job, or ErrNotFound.
func (s *MealService) GetMealByJobID(ctx context.Context, jobID string) (*models.Meal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, source_user_hash, chat_id_hash, trigger_type, caption,
		       photo_count, calories_mean, calories_min, calories_max,
		       protein_g, carbs_g, fats_g, items, confidence,
		       model_latency_ms, low_confidence, created_at
		FROM meals WHERE job_id = $1`, jobID)
	return scanMeal(row)
}

// ListMealsByUser returns the user's most recent meals, newest first.
func (s *MealService) ListMealsByUser(ctx context.Context, userHash string, limit int) ([]*models.Meal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, source_user_hash, chat_id_hash, trigger_type, caption,
		       photo_count, calories_mean, calories_min, calories_max,
		       protein_g, carbs_g, fats_g, items, confidence,
		       model_latency_ms, low_confidence, created_at
		FROM meals WHERE source_user_hash = $1
		ORDER BY created_at DESC LIMIT $2`, userHash, limit)
	if err != nil {
		return nil, fmt.Errorf("listing meals: %w", err)
	}
	defer rows.Close()

	var meals []*models.Meal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, meal)
	}
	return meals, rows.Err()
}

// DeleteMealsBefore removes meals older than the cutoff. Returns the number
// of rows removed; used by the retention sweeper.
func (s *MealService) DeleteMealsBefore(ctx context.Context, cutoff string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meals WHERE created_at < $1::timestamptz`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired meals: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (*models.Meal, error) {
	var meal models.Meal
	var trigger string
	var items []byte
	err := row.Scan(
		&meal.ID, &meal.JobID, &meal.SourceUserHash, &meal.ChatIDHash,
		&trigger, &meal.Caption, &meal.PhotoCount,
		&meal.Estimate.CaloriesMean, &meal.Estimate.CaloriesMin, &meal.Estimate.CaloriesMax,
		&meal.Estimate.Macronutrients.ProteinG, &meal.Estimate.Macronutrients.CarbsG,
		&meal.Estimate.Macronutrients.FatsG, &items, &meal.Estimate.Confidence,
		&meal.Estimate.ModelLatencyMs, &meal.Estimate.LowConfidence, &meal.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning meal: %w", err)
	}
	meal.TriggerType = config.TriggerType(trigger)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &meal.Estimate.Items); err != nil {
			return nil, fmt.Errorf("decoding meal items: %w", err)
		}
	}
	return &meal, nil
}
