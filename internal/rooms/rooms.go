package rooms

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/geotrack/internal/models"
)

// GeneralRoom is the open default room. It has no password, no admin, and
// cannot be deleted; pin collection never runs in it.
const GeneralRoom = "general"

var (
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrReservedRoom  = errors.New("room name is reserved")
	ErrWeakPassword  = errors.New("password must be at least 3 characters")
	ErrWrongPassword = errors.New("wrong password")
	ErrNotAdmin      = errors.New("only the room admin may do this")
)

type Room struct {
	Name       string
	Password   string
	CreatedBy  string
	CreatedAt  time.Time
	Collectors map[string]bool
}

type Info struct {
	Name        string `json:"name"`
	HasPassword bool   `json:"hasPassword"`
	UserCount   int    `json:"userCount"`
	CreatedBy   string `json:"createdBy,omitempty"`
	IsAdmin     bool   `json:"isAdmin"`
	Password    string `json:"password,omitempty"`
}

// Registry owns rooms, collector permissions, and per-user visibility
// policies. The room creator is its admin.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	visibility map[string]models.Visibility
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		visibility: make(map[string]models.Visibility),
	}
}

func (r *Registry) Create(name, password, createdBy string, now time.Time) error {
	if name == GeneralRoom {
		return ErrReservedRoom
	}
	if len(password) < 3 {
		return ErrWeakPassword
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[name]; ok {
		return ErrRoomExists
	}
	r.rooms[name] = &Room{
		Name:       name,
		Password:   password,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		Collectors: make(map[string]bool),
	}
	return nil
}

func (r *Registry) Join(name, password string) error {
	if name == GeneralRoom {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Password != password {
		return ErrWrongPassword
	}
	return nil
}

func (r *Registry) Exists(name string) bool {
	if name == GeneralRoom {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[name]
	return ok
}

// Delete removes a room. Callers are responsible for relocating members and
// purging the room's pins, scores, and events.
func (r *Registry) Delete(name, adminID string) error {
	if name == GeneralRoom {
		return ErrReservedRoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.CreatedBy != adminID {
		return ErrNotAdmin
	}
	delete(r.rooms, name)
	return nil
}

func (r *Registry) Password(name, adminID string) (string, error) {
	if name == GeneralRoom {
		return "", ErrReservedRoom
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return "", ErrRoomNotFound
	}
	if room.CreatedBy != adminID {
		return "", ErrNotAdmin
	}
	return room.Password, nil
}

func (r *Registry) ChangePassword(name, adminID, newPassword string) error {
	if name == GeneralRoom {
		return ErrReservedRoom
	}
	if len(newPassword) < 3 {
		return ErrWeakPassword
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.CreatedBy != adminID {
		return ErrNotAdmin
	}
	room.Password = newPassword
	return nil
}

func (r *Registry) SetCollector(name, adminID, userID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.CreatedBy != adminID {
		return ErrNotAdmin
	}
	if enabled {
		room.Collectors[userID] = true
	} else {
		delete(room.Collectors, userID)
	}
	return nil
}

// IsCollector reports whether the user may trigger pin collection in the
// room. The general room has no admin, so it never grants the capability.
func (r *Registry) IsCollector(name, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	return ok && room.Collectors[userID]
}

func (r *Registry) Permissions(name string) (admin string, collectors []string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, found := r.rooms[name]
	if !found {
		return "", nil, false
	}
	collectors = make([]string, 0, len(room.Collectors))
	for id := range room.Collectors {
		collectors = append(collectors, id)
	}
	sort.Strings(collectors)
	return room.CreatedBy, collectors, true
}

// List returns the general room first, then created rooms sorted by name.
// Admins see their own room's password.
func (r *Registry) List(userID string, counts map[string]int) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Info{{Name: GeneralRoom, UserCount: counts[GeneralRoom]}}
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		room := r.rooms[name]
		info := Info{
			Name:        name,
			HasPassword: true,
			UserCount:   counts[name],
			CreatedBy:   room.CreatedBy,
			IsAdmin:     room.CreatedBy == userID,
		}
		if info.IsAdmin {
			info.Password = room.Password
		}
		out = append(out, info)
	}
	return out
}

func (r *Registry) SetVisibility(userID string, v models.Visibility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visibility[userID] = v
}

func (r *Registry) Visibility(userID string) models.Visibility {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.visibility[userID]; ok {
		return v
	}
	return models.Visibility{Mode: models.VisibilityAll, Allowed: []string{}}
}

// Visible reports whether viewer may see owner in a room listing. Users
// always see themselves.
func (r *Registry) Visible(owner, viewer string) bool {
	if owner == viewer {
		return true
	}
	switch v := r.Visibility(owner); v.Mode {
	case models.VisibilityHidden:
		return false
	case models.VisibilityCustom:
		for _, id := range v.Allowed {
			if id == viewer {
				return true
			}
		}
		return false
	default: // all, room
		return true
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]*Room)
	r.visibility = make(map[string]models.Visibility)
}
