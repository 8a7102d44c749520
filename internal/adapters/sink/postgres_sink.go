package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

const DefaultGoalTable = "goal_events"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink appends every notification to a goal log table. The schema
// works unchanged as a Timescale hypertable on detected_at.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultGoalTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{db: db, tableName: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the goal table when it does not exist yet.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+p.tableName+` (
	seq         BIGINT      NOT NULL,
	goal        TEXT        NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	sent_at     TIMESTAMPTZ NOT NULL,
	message     TEXT        NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.tableName, err)
	}
	return nil
}

func (p *PostgresSink) Send(ctx context.Context, n domain.Notification) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO "+p.tableName+" (seq, goal, detected_at, sent_at, message) VALUES ($1,$2,$3,$4,$5)",
		int64(n.Seq), n.Goal.String(), n.DetectedAt, n.SentAt, n.Text)
	if err != nil {
		return fmt.Errorf("insert goal %d: %w", n.Seq, err)
	}
	return nil
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}

var _ ports.Sink = (*PostgresSink)(nil)
