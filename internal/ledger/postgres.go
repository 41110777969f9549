package ledger

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresPersister writes assignment snapshots through to Postgres so
// matching history survives a restart. It never reads on the hot path.
type PostgresPersister struct {
	db *sql.DB
}

func NewPostgresPersister(dsn string) (*PostgresPersister, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresPersister{db: db}, nil
}

func (p *PostgresPersister) SaveAssignment(a Assignment) error {
	_, err := p.db.Exec(
		`INSERT INTO assignments(request_id, status, created_at, proposed, rejected, assigned_driver_id, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		a.RequestID, string(a.Status), a.CreatedAt,
		pq.Array(a.Proposed), pq.Array(a.Rejected), a.AssignedDriverID, time.Now())
	return err
}

func (p *PostgresPersister) UpdateAssignment(a Assignment) error {
	_, err := p.db.Exec(
		`UPDATE assignments SET status=$1, proposed=$2, rejected=$3, assigned_driver_id=$4, updated_at=$5 WHERE request_id=$6`,
		string(a.Status), pq.Array(a.Proposed), pq.Array(a.Rejected), a.AssignedDriverID, time.Now(), a.RequestID)
	return err
}

func (p *PostgresPersister) Close() error { return p.db.Close() }
