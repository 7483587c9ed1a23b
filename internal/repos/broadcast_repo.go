package repos

import (
	"github.com/jmoiron/sqlx"

	"keycrate/internal/domain"
)

type BroadcastRepo struct{ db *sqlx.DB }

func NewBroadcastRepo(db *sqlx.DB) *BroadcastRepo { return &BroadcastRepo{db: db} }

// CreateJob writes the job header and its recipient snapshot in one
// transaction, so a crash can never leave a job without targets.
func (r *BroadcastRepo) CreateJob(job domain.BroadcastJob, userIDs []int64) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
	  INSERT INTO broadcast_jobs(id, payload, created_by, total, created_at)
	  VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, job.ID, job.Payload, job.CreatedBy, len(userIDs)); err != nil {
		return err
	}
	for _, uid := range userIDs {
		if _, err := tx.Exec(`
		  INSERT INTO broadcast_targets(job_id, user_id, status, updated_at)
		  VALUES(?, ?, 'pending', CURRENT_TIMESTAMP)
		`, job.ID, uid); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *BroadcastRepo) GetJob(id string) (domain.BroadcastJob, error) {
	var j domain.BroadcastJob
	err := r.db.Get(&j, `
	  SELECT id, payload, created_by, total, completed, cancelled, created_at, finished_at
	  FROM broadcast_jobs WHERE id = ?
	`, id)
	return j, err
}

// ListUnfinished returns jobs to resume after a restart.
func (r *BroadcastRepo) ListUnfinished() ([]domain.BroadcastJob, error) {
	var out []domain.BroadcastJob
	err := r.db.Select(&out, `
	  SELECT id, payload, created_by, total, completed, cancelled, created_at, finished_at
	  FROM broadcast_jobs WHERE completed = 0
	  ORDER BY datetime(created_at) ASC
	`)
	return out, err
}

// PendingTargets returns the recipients a (possibly resumed) run still has
// to attempt; targets already in a terminal status are skipped.
func (r *BroadcastRepo) PendingTargets(jobID string) ([]domain.BroadcastTarget, error) {
	var out []domain.BroadcastTarget
	err := r.db.Select(&out, `
	  SELECT job_id, user_id, status, attempts, last_error, COALESCE(updated_at,'') AS updated_at
	  FROM broadcast_targets
	  WHERE job_id = ? AND status = 'pending'
	  ORDER BY user_id
	`, jobID)
	return out, err
}

// SetTargetStatus records one recipient outcome. Terminal statuses are
// monotonic: once a target leaves 'pending' it never changes again.
func (r *BroadcastRepo) SetTargetStatus(jobID string, userID int64, status domain.TargetStatus, attempts int, lastErr string) error {
	_, err := r.db.Exec(`
	  UPDATE broadcast_targets
	  SET status = ?, attempts = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
	  WHERE job_id = ? AND user_id = ? AND status = 'pending'
	`, status, attempts, lastErr, jobID, userID)
	return err
}

// SkipRemaining marks every still-pending target skipped; used on cancel.
// Returns how many targets were skipped.
func (r *BroadcastRepo) SkipRemaining(jobID string) (int, error) {
	res, err := r.db.Exec(`
	  UPDATE broadcast_targets
	  SET status = 'skipped', updated_at = CURRENT_TIMESTAMP
	  WHERE job_id = ? AND status = 'pending'
	`, jobID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *BroadcastRepo) MarkCancelled(jobID string) error {
	_, err := r.db.Exec(`UPDATE broadcast_jobs SET cancelled = 1 WHERE id = ?`, jobID)
	return err
}

func (r *BroadcastRepo) MarkCompleted(jobID string) error {
	_, err := r.db.Exec(`
	  UPDATE broadcast_jobs SET completed = 1, finished_at = CURRENT_TIMESTAMP WHERE id = ?
	`, jobID)
	return err
}

func (r *BroadcastRepo) Summary(jobID string) (domain.BroadcastSummary, error) {
	job, err := r.GetJob(jobID)
	if err != nil {
		return domain.BroadcastSummary{}, err
	}
	rows := []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}{}
	if err := r.db.Select(&rows, `
	  SELECT status, COUNT(*) AS n FROM broadcast_targets WHERE job_id = ? GROUP BY status
	`, jobID); err != nil {
		return domain.BroadcastSummary{}, err
	}

	s := domain.BroadcastSummary{
		JobID:     job.ID,
		Total:     job.Total,
		Completed: job.Completed,
		Cancelled: job.Cancelled,
	}
	for _, row := range rows {
		switch domain.TargetStatus(row.Status) {
		case domain.TargetPending:
			s.Pending = row.N
		case domain.TargetDelivered:
			s.Delivered = row.N
		case domain.TargetFailed:
			s.Failed = row.N
		case domain.TargetBlocked:
			s.Blocked = row.N
		case domain.TargetSkipped:
			s.Skipped = row.N
		}
	}
	return s, nil
}
