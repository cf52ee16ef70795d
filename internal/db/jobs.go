package db

import (
	"context"
	"database/sql"

	"fantasy-exchange/internal/model"
)

// StartJob records the start of a scheduler cycle so a crash mid-run
// leaves an auditable "running" row behind instead of silence.
func (s *Store) StartJob(ctx context.Context, jobName string) (*model.JobLog, error) {
	j := &model.JobLog{JobName: jobName, Status: model.JobRunning}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO job_log (job_name, status) VALUES ($1,$2) RETURNING id, started_at`,
		jobName, model.JobRunning,
	).Scan(&j.ID, &j.StartedAt)
	return j, err
}

func (s *Store) FinishJob(ctx context.Context, id int64, status model.JobStatus, recordsProcessed, errorCount int, message string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE job_log SET status=$1, finished_at=now(), records_processed=$2, error_count=$3, message=$4 WHERE id=$5`,
		status, recordsProcessed, errorCount, message, id,
	)
	return err
}

func (s *Store) LastJobRun(ctx context.Context, jobName string) (*model.JobLog, error) {
	j := &model.JobLog{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, job_name, status, started_at, finished_at, records_processed, error_count, message
		 FROM job_log WHERE job_name=$1 ORDER BY started_at DESC LIMIT 1`, jobName,
	).Scan(&j.ID, &j.JobName, &j.Status, &j.StartedAt, &j.FinishedAt, &j.RecordsProcessed, &j.ErrorCount, &j.Message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (s *Store) ListRecentJobRuns(ctx context.Context, jobName string, limit int) ([]model.JobLog, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, job_name, status, started_at, finished_at, records_processed, error_count, message
		 FROM job_log WHERE job_name=$1 ORDER BY started_at DESC LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.JobLog
	for rows.Next() {
		var j model.JobLog
		if err := rows.Scan(&j.ID, &j.JobName, &j.Status, &j.StartedAt, &j.FinishedAt, &j.RecordsProcessed, &j.ErrorCount, &j.Message); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
