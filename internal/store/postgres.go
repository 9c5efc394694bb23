package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rentdesk/internal/model"
)

// Postgres stores everything in a single records table plus profiles and
// webhook bookkeeping, mirroring the single-table document layout of the
// hosted backend it replaces.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema. Dev helper; production uses managed migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			rtype      text NOT NULL,
			id         text NOT NULL,
			owner_id   text NOT NULL,
			doc        jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (rtype, id)
		)`,
		`CREATE INDEX IF NOT EXISTS records_owner_idx ON records (rtype, owner_id)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			subject    text PRIMARY KEY,
			email      text NOT NULL UNIQUE,
			doc        jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id       text PRIMARY KEY,
			owner_id text NOT NULL,
			url      text NOT NULL,
			events   jsonb NOT NULL,
			secret   text NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id              text PRIMARY KEY,
			owner_id        text NOT NULL,
			subscription_id text NOT NULL,
			event_type      text NOT NULL,
			url             text NOT NULL,
			secret          text NOT NULL DEFAULT '',
			payload         bytea NOT NULL,
			attempts        int NOT NULL DEFAULT 0,
			status          text NOT NULL DEFAULT 'pending',
			next_attempt_at timestamptz NOT NULL DEFAULT now(),
			last_error      text NOT NULL DEFAULT '',
			response_code   int NOT NULL DEFAULT 0
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "duplicate key") {
		return ErrConflict
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return ErrUnavailable
	}
	return err
}

func (p *Postgres) Get(ctx context.Context, rtype, id string) (Record, error) {
	var r Record
	row := p.db.QueryRowContext(ctx,
		`SELECT rtype, id, owner_id, doc, created_at, updated_at FROM records WHERE rtype=$1 AND id=$2`,
		rtype, id)
	if err := row.Scan(&r.Type, &r.ID, &r.OwnerID, &r.Doc, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Record{}, wrapErr(err)
	}
	return r, nil
}

func (p *Postgres) Create(ctx context.Context, rec Record) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO records (rtype, id, owner_id, doc) VALUES ($1,$2,$3,$4)`,
		rec.Type, rec.ID, rec.OwnerID, []byte(rec.Doc))
	return wrapErr(err)
}

// PutIfOwnerUnchanged is a single conditional UPDATE: the owner predicate is
// evaluated atomically by the database, so there is no window between the
// ownership check and the write.
func (p *Postgres) PutIfOwnerUnchanged(ctx context.Context, rtype, id, expectedOwner string, doc json.RawMessage) (Record, error) {
	var r Record
	row := p.db.QueryRowContext(ctx,
		`UPDATE records SET doc=$4, updated_at=now()
		 WHERE rtype=$1 AND id=$2 AND owner_id=$3
		 RETURNING rtype, id, owner_id, doc, created_at, updated_at`,
		rtype, id, expectedOwner, []byte(doc))
	err := row.Scan(&r.Type, &r.ID, &r.OwnerID, &r.Doc, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing record from an owner mismatch without
		// leaking which one to the caller of the HTTP API; the guard
		// has already decided visibility by this point.
		var exists bool
		if e := p.db.QueryRowContext(ctx,
			`SELECT true FROM records WHERE rtype=$1 AND id=$2`, rtype, id).Scan(&exists); e == nil {
			return Record{}, ErrConflict
		}
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, wrapErr(err)
	}
	return r, nil
}

func (p *Postgres) Delete(ctx context.Context, rtype, id, expectedOwner string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM records WHERE rtype=$1 AND id=$2 AND owner_id=$3`,
		rtype, id, expectedOwner)
	if err != nil {
		return wrapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if e := p.db.QueryRowContext(ctx,
			`SELECT true FROM records WHERE rtype=$1 AND id=$2`, rtype, id).Scan(&exists); e == nil {
			return ErrConflict
		}
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) QueryByOwner(ctx context.Context, rtype, ownerID string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT rtype, id, owner_id, doc, created_at, updated_at
		 FROM records WHERE rtype=$1 AND owner_id=$2 ORDER BY created_at`,
		rtype, ownerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) QueryAll(ctx context.Context, rtype string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT rtype, id, owner_id, doc, created_at, updated_at
		 FROM records WHERE rtype=$1 ORDER BY created_at LIMIT $2`,
		rtype, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Type, &r.ID, &r.OwnerID, &r.Doc, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, r)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) GetProfileBySubject(ctx context.Context, subject string) (model.Profile, error) {
	return p.scanProfile(p.db.QueryRowContext(ctx,
		`SELECT subject, email, doc, created_at, updated_at FROM profiles WHERE subject=$1`, subject))
}

func (p *Postgres) GetProfileByEmail(ctx context.Context, email string) (model.Profile, error) {
	return p.scanProfile(p.db.QueryRowContext(ctx,
		`SELECT subject, email, doc, created_at, updated_at FROM profiles WHERE email=lower($1)`, email))
}

// profileDoc is the jsonb body for a profile row; credentials stay in the
// doc so they never appear in query projections by accident.
type profileDoc struct {
	PasswordHash string        `json:"passwordHash,omitempty"`
	Role         string        `json:"role"`
	FirstName    string        `json:"firstName,omitempty"`
	LastName     string        `json:"lastName,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Company      string        `json:"company,omitempty"`
	Address      model.Address `json:"address,omitempty"`
	Status       string        `json:"status,omitempty"`
}

func (p *Postgres) scanProfile(row *sql.Row) (model.Profile, error) {
	var (
		prof model.Profile
		doc  []byte
		cAt  time.Time
		uAt  time.Time
	)
	if err := row.Scan(&prof.Subject, &prof.Email, &doc, &cAt, &uAt); err != nil {
		return model.Profile{}, wrapErr(err)
	}
	var d profileDoc
	if err := json.Unmarshal(doc, &d); err != nil {
		return model.Profile{}, err
	}
	prof.PasswordHash = d.PasswordHash
	prof.Role = d.Role
	prof.FirstName = d.FirstName
	prof.LastName = d.LastName
	prof.Phone = d.Phone
	prof.Company = d.Company
	prof.Address = d.Address
	prof.Status = d.Status
	prof.CreatedAt = model.Timestamp(cAt)
	prof.UpdatedAt = model.Timestamp(uAt)
	return prof, nil
}

func profileToDoc(p model.Profile) ([]byte, error) {
	return json.Marshal(profileDoc{
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Phone:        p.Phone,
		Company:      p.Company,
		Address:      p.Address,
		Status:       p.Status,
	})
}

func (p *Postgres) CreateProfile(ctx context.Context, prof model.Profile) error {
	doc, err := profileToDoc(prof)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO profiles (subject, email, doc) VALUES ($1, lower($2), $3)`,
		prof.Subject, prof.Email, doc)
	return wrapErr(err)
}

func (p *Postgres) UpdateProfile(ctx context.Context, prof model.Profile) (model.Profile, error) {
	cur, err := p.GetProfileBySubject(ctx, prof.Subject)
	if err != nil {
		return model.Profile{}, err
	}
	// Identity-bearing fields are immutable through this path.
	prof.Email = cur.Email
	prof.Role = cur.Role
	prof.PasswordHash = cur.PasswordHash
	doc, err := profileToDoc(prof)
	if err != nil {
		return model.Profile{}, err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE profiles SET doc=$2, updated_at=now() WHERE subject=$1`,
		prof.Subject, doc)
	if err != nil {
		return model.Profile{}, wrapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Profile{}, ErrNotFound
	}
	return p.GetProfileBySubject(ctx, prof.Subject)
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	events, _ := json.Marshal(sub.Events)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, owner_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		sub.ID, sub.OwnerID, sub.URL, events, sub.Secret)
	if err != nil {
		return model.Subscription{}, wrapErr(err)
	}
	return sub, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, ownerID string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, owner_id, url, events, secret FROM subscriptions WHERE owner_id=$1`, ownerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.URL, &events, &s.Secret); err != nil {
			return nil, wrapErr(err)
		}
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) DeleteSubscription(ctx context.Context, ownerID, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return wrapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, ownerID, eventType string) ([]model.Subscription, error) {
	subs, err := p.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := []model.Subscription{}
	for _, s := range subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (p *Postgres) EnqueueDelivery(ctx context.Context, ownerID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, owner_id, subscription_id, event_type, url, secret, payload)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, ownerID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", wrapErr(err)
	}
	return id, nil
}

func (p *Postgres) FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, owner_id, subscription_id, event_type, url, secret, payload, attempts, status
		 FROM deliveries
		 WHERE status='pending' AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	out := []Delivery{}
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts, &d.Status); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, d)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	status := "pending"
	if success {
		status = "delivered"
	} else if nextAttemptAt == nil {
		status = "failed"
	}
	next := time.Now()
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE deliveries SET attempts=attempts+1, status=$2, next_attempt_at=$3, last_error=$4, response_code=$5 WHERE id=$1`,
		id, status, next, lastError, responseCode)
	return wrapErr(err)
}
