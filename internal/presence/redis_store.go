package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/geotrack/internal/models"
)

// RedisStore implements Store using Redis GEO commands plus a metadata hash
// per user. Each room keeps its own geo set so listing a room is a plain
// member scan. Errors are swallowed best-effort, matching the in-memory
// semantics of "absent, not an error".
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	ctx     context.Context
}

func NewRedisStore(addr, password string, timeout time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, timeout: timeout, ctx: context.Background()}
}

const roomsKey = "presence:rooms"

func geoKey(room string) string  { return "presence_geo:" + room }
func metaKey(user string) string { return "presence:meta:" + user }

func (r *RedisStore) Upsert(p models.UserPresence) (models.UserPresence, bool) {
	prev, existed := r.Get(p.UserID)
	if existed && prev.RoomName != p.RoomName {
		_ = r.client.ZRem(r.ctx, geoKey(prev.RoomName), p.UserID).Err()
	}
	_, _ = r.client.GeoAdd(r.ctx, geoKey(p.RoomName), &redis.GeoLocation{Longitude: p.Position.Lng, Latitude: p.Position.Lat, Name: p.UserID}).Result()
	_ = r.client.SAdd(r.ctx, roomsKey, p.RoomName).Err()
	_ = r.client.HSet(r.ctx, metaKey(p.UserID), metaFields(p)).Err()
	return prev, existed
}

func (r *RedisStore) Get(userID string) (models.UserPresence, bool) {
	m, err := r.client.HGetAll(r.ctx, metaKey(userID)).Result()
	if err != nil || len(m) == 0 {
		return models.UserPresence{}, false
	}
	return presenceFromMeta(userID, m), true
}

func (r *RedisStore) List(roomName string, now time.Time) []models.UserPresence {
	members, err := r.client.ZRange(r.ctx, geoKey(roomName), 0, -1).Result()
	if err != nil {
		return nil
	}
	out := make([]models.UserPresence, 0, len(members))
	for _, id := range members {
		p, ok := r.Get(id)
		if !ok {
			_ = r.client.ZRem(r.ctx, geoKey(roomName), id).Err()
			continue
		}
		// the meta hash is the room of record; a leftover geo-set member
		// from before a room change is dropped, not listed
		if p.RoomName != roomName {
			_ = r.client.ZRem(r.ctx, geoKey(roomName), id).Err()
			continue
		}
		if now.Sub(p.LastSeen) > r.timeout {
			r.evict(id, roomName)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *RedisStore) evict(userID, room string) {
	_ = r.client.ZRem(r.ctx, geoKey(room), userID).Err()
	_ = r.client.Del(r.ctx, metaKey(userID)).Err()
}

func (r *RedisStore) Remove(userID string) bool {
	p, ok := r.Get(userID)
	if !ok {
		return false
	}
	r.evict(userID, p.RoomName)
	return true
}

func (r *RedisStore) MoveRoom(from, to string) int {
	members, err := r.client.ZRange(r.ctx, geoKey(from), 0, -1).Result()
	if err != nil {
		return 0
	}
	moved := 0
	for _, id := range members {
		p, ok := r.Get(id)
		if !ok {
			continue
		}
		p.RoomName = to
		r.Upsert(p)
		moved++
	}
	_ = r.client.Del(r.ctx, geoKey(from)).Err()
	return moved
}

func (r *RedisStore) CountByRoom() map[string]int {
	rooms, err := r.client.SMembers(r.ctx, roomsKey).Result()
	if err != nil {
		return nil
	}
	counts := make(map[string]int, len(rooms))
	for _, room := range rooms {
		n, err := r.client.ZCard(r.ctx, geoKey(room)).Result()
		if err != nil || n == 0 {
			continue
		}
		counts[room] = int(n)
	}
	return counts
}

func (r *RedisStore) Clear() {
	rooms, _ := r.client.SMembers(r.ctx, roomsKey).Result()
	for _, room := range rooms {
		members, _ := r.client.ZRange(r.ctx, geoKey(room), 0, -1).Result()
		for _, id := range members {
			_ = r.client.Del(r.ctx, metaKey(id)).Err()
		}
		_ = r.client.Del(r.ctx, geoKey(room)).Err()
	}
	_ = r.client.Del(r.ctx, roomsKey).Err()
}

func metaFields(p models.UserPresence) map[string]interface{} {
	idleSince := int64(0)
	if !p.IdleSince.IsZero() {
		idleSince = p.IdleSince.Unix()
	}
	return map[string]interface{}{
		"device":       p.DeviceID,
		"lat":          strconv.FormatFloat(p.Position.Lat, 'f', -1, 64),
		"lng":          strconv.FormatFloat(p.Position.Lng, 'f', -1, 64),
		"altitude":     strconv.FormatFloat(p.Position.Altitude, 'f', -1, 64),
		"speed":        strconv.FormatFloat(p.Speed, 'f', -1, 64),
		"room":         p.RoomName,
		"last_seen":    strconv.FormatInt(p.LastSeen.Unix(), 10),
		"idle_since":   strconv.FormatInt(idleSince, 10),
		"idle_status":  string(p.IdleStatus),
		"idle_minutes": strconv.Itoa(p.IdleMinutes),
	}
}

func presenceFromMeta(userID string, m map[string]string) models.UserPresence {
	p := models.UserPresence{UserID: userID, DeviceID: m["device"], RoomName: m["room"], IdleStatus: models.IdleStatus(m["idle_status"])}
	p.Position.Lat, _ = strconv.ParseFloat(m["lat"], 64)
	p.Position.Lng, _ = strconv.ParseFloat(m["lng"], 64)
	p.Position.Altitude, _ = strconv.ParseFloat(m["altitude"], 64)
	p.Speed, _ = strconv.ParseFloat(m["speed"], 64)
	if v, err := strconv.ParseInt(m["last_seen"], 10, 64); err == nil {
		p.LastSeen = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(m["idle_since"], 10, 64); err == nil && v > 0 {
		p.IdleSince = time.Unix(v, 0)
	}
	p.IdleMinutes, _ = strconv.Atoi(m["idle_minutes"])
	if p.IdleStatus == "" {
		p.IdleStatus = models.StatusOnline
	}
	return p
}
