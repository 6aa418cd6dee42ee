package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/geotrack/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) AppendRoutePoint(userID string, pt models.RoutePoint) error {
	_, err := p.db.Exec(`INSERT INTO route_points(user_id, lat, lng, altitude, speed, recorded_at) VALUES($1,$2,$3,$4,$5,$6)`,
		userID, pt.Position.Lat, pt.Position.Lng, pt.Position.Altitude, pt.Speed, pt.RecordedAt)
	return err
}

func (p *PostgresStore) LastRoutePoint(userID string) (models.RoutePoint, bool, error) {
	row := p.db.QueryRow(`SELECT lat, lng, altitude, speed, recorded_at FROM route_points WHERE user_id=$1 ORDER BY recorded_at DESC, id DESC LIMIT 1`, userID)
	var pt models.RoutePoint
	err := row.Scan(&pt.Position.Lat, &pt.Position.Lng, &pt.Position.Altitude, &pt.Speed, &pt.RecordedAt)
	if err == sql.ErrNoRows {
		return models.RoutePoint{}, false, nil
	}
	if err != nil {
		return models.RoutePoint{}, false, err
	}
	return pt, true, nil
}

func (p *PostgresStore) RoutePointsSince(userID string, since time.Time) ([]models.RoutePoint, error) {
	rows, err := p.db.Query(`SELECT lat, lng, altitude, speed, recorded_at FROM route_points WHERE user_id=$1 AND ($2::timestamptz IS NULL OR recorded_at >= $2) ORDER BY recorded_at ASC, id ASC`,
		userID, nullTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RoutePoint
	for rows.Next() {
		var pt models.RoutePoint
		if err := rows.Scan(&pt.Position.Lat, &pt.Position.Lng, &pt.Position.Altitude, &pt.Speed, &pt.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (p *PostgresStore) TrimRoute(userID string, cutoff time.Time, maxPoints int) error {
	if _, err := p.db.Exec(`DELETE FROM route_points WHERE user_id=$1 AND recorded_at <= $2`, userID, cutoff); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM route_points WHERE user_id=$1 AND id NOT IN (
		SELECT id FROM route_points WHERE user_id=$1 ORDER BY recorded_at DESC, id DESC LIMIT $2)`, userID, maxPoints)
	return err
}

func (p *PostgresStore) ClearRoute(userID string) (int, error) {
	res, err := p.db.Exec(`DELETE FROM route_points WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FinalizeCollection runs the score upsert and the event insert in one
// transaction so a failure cannot leave a score without its event.
func (p *PostgresStore) FinalizeCollection(ev models.CollectionEvent, delta int) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO scores(room_name, user_id, score) VALUES($1,$2,$3)
		ON CONFLICT (room_name, user_id) DO UPDATE SET score = scores.score + EXCLUDED.score`,
		ev.RoomName, ev.CollectorID, delta); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO collection_events(id, room_name, pin_id, collector_id, creator_id, lat, lng, created_at, collected_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.RoomName, ev.PinID, ev.CollectorID, ev.CreatorID, ev.Position.Lat, ev.Position.Lng, ev.CreatedAt, ev.CollectedAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Scores(room string) ([]models.ScoreEntry, error) {
	rows, err := p.db.Query(`SELECT user_id, score FROM scores WHERE room_name=$1 ORDER BY score DESC, user_id ASC`, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ScoreEntry
	for rows.Next() {
		var e models.ScoreEntry
		if err := rows.Scan(&e.UserID, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Collections(room, userID string) ([]models.CollectionEvent, error) {
	rows, err := p.db.Query(`SELECT id, pin_id, creator_id, lat, lng, created_at, collected_at FROM collection_events
		WHERE room_name=$1 AND collector_id=$2 ORDER BY collected_at ASC`, room, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.CollectionEvent
	for rows.Next() {
		ev := models.CollectionEvent{RoomName: room, CollectorID: userID}
		if err := rows.Scan(&ev.ID, &ev.PinID, &ev.CreatorID, &ev.Position.Lat, &ev.Position.Lng, &ev.CreatedAt, &ev.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PurgeRoom(room string) error {
	if _, err := p.db.Exec(`DELETE FROM scores WHERE room_name=$1`, room); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM collection_events WHERE room_name=$1`, room)
	return err
}

func (p *PostgresStore) TotalRoutePoints() (int, error) {
	var n int
	err := p.db.QueryRow(`SELECT COUNT(*) FROM route_points`).Scan(&n)
	return n, err
}

func (p *PostgresStore) Reset() error {
	_, err := p.db.Exec(`TRUNCATE route_points, scores, collection_events`)
	return err
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
