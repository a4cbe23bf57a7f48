package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kbukum/gormock/logger"
)

// Step is a programmatic migration, for schema objects the models cannot
// declare (views, triggers, seed lookup tables).
type Step struct {
	ID          string
	Description string
	Up          func(*gorm.DB) error
}

// Runner applies Steps tracked in the gormock_steps table.
type Runner struct {
	db    *gorm.DB
	log   *logger.Logger
	steps []Step
}

// NewRunner creates a runner bound to the given database and logger.
func NewRunner(db *gorm.DB, log *logger.Logger) *Runner {
	return &Runner{db: db, log: log.WithComponent("migration")}
}

// Add registers steps to be applied in order.
func (r *Runner) Add(steps ...Step) {
	r.steps = append(r.steps, steps...)
}

// Run applies every step that has not been recorded yet. Each step and its
// record commit together.
func (r *Runner) Run() error {
	if err := r.createStepsTable(); err != nil {
		return fmt.Errorf("failed to create steps table: %w", err)
	}

	for _, step := range r.steps {
		applied, err := r.isApplied(step.ID)
		if err != nil {
			return fmt.Errorf("failed to check step status: %w", err)
		}
		if applied {
			r.log.Debug("Step already applied", map[string]interface{}{"id": step.ID})
			continue
		}

		if err := r.db.Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Exec("INSERT INTO gormock_steps (id) VALUES (?)", step.ID).Error
		}); err != nil {
			return fmt.Errorf("failed to apply step %s: %w", step.ID, err)
		}

		r.log.Debug("Step applied", map[string]interface{}{
			"id":          step.ID,
			"description": step.Description,
		})
	}
	return nil
}

func (r *Runner) createStepsTable() error {
	return r.db.Exec(`
		CREATE TABLE IF NOT EXISTS gormock_steps (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`).Error
}

func (r *Runner) isApplied(id string) (bool, error) {
	var count int64
	err := r.db.Table("gormock_steps").Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
