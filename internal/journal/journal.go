// Package journal records training runs in a SQLite database: one row per
// run with its configuration, and one row per finished epoch.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
	StatusDiverged  = "diverged"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the trainer.
type Run struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Name          string `gorm:"not null;index"`
	Config        string `gorm:"not null"` // YAML
	Status        string `gorm:"not null"`
	FinishedAt    *time.Time
	BestValidLoss *float64
	BestEpoch     *int

	Epochs []Epoch
}

// Epoch is the outcome of one pass over the training windows.
type Epoch struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"not null"`

	RunID      uint          `gorm:"not null;uniqueIndex:idx_run_epoch"`
	Number     int           `gorm:"not null;uniqueIndex:idx_run_epoch"`
	TrainLoss  float64       `gorm:"not null"`
	ValidLoss  *float64      // nil without a validation split
	Steps      int           `gorm:"not null"`
	Duration   time.Duration `gorm:"not null"`
	Checkpoint string
}

// Models lists the tables of the journal.
var Models = []any{&Run{}, &Epoch{}}

// Journal is an open training journal.
type Journal struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite journal at filename.
func Open(filename string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: NewLogger(log.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun inserts a running run.
func (j *Journal) StartRun(name, config string) (*Run, error) {
	run := &Run{Name: name, Config: config, Status: StatusRunning}
	if err := j.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// RecordEpoch stores e under run and keeps the run's best validation loss
// current.
func (j *Journal) RecordEpoch(run *Run, e Epoch) error {
	e.RunID = run.ID
	return j.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&e).Error; err != nil {
			return fmt.Errorf("failed to record epoch %d: %w", e.Number, err)
		}
		if e.ValidLoss == nil || (run.BestValidLoss != nil && *run.BestValidLoss <= *e.ValidLoss) {
			return nil
		}
		loss, number := *e.ValidLoss, e.Number
		run.BestValidLoss, run.BestEpoch = &loss, &number
		if err := tx.Model(run).Updates(map[string]any{"best_valid_loss": loss, "best_epoch": number}).Error; err != nil {
			return fmt.Errorf("failed to update run %d: %w", run.ID, err)
		}
		return nil
	})
}

// FinishRun sets the final status of run.
func (j *Journal) FinishRun(run *Run, status string) error {
	now := time.Now()
	run.Status, run.FinishedAt = status, &now
	if err := j.db.Model(run).Updates(map[string]any{"status": status, "finished_at": now}).Error; err != nil {
		return fmt.Errorf("failed to finish run %d: %w", run.ID, err)
	}
	return nil
}

// Runs returns every run, newest first.
func (j *Journal) Runs() ([]Run, error) {
	var runs []Run
	if err := j.db.Order("id desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Run returns the run with id and its epochs in order.
func (j *Journal) Run(id uint) (*Run, error) {
	var run Run
	err := j.db.Preload("Epochs", func(db *gorm.DB) *gorm.DB {
		return db.Order("number")
	}).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", id, err)
	}
	return &run, nil
}
