package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/tradechat/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// PartyMap manages the live sessions of each party and their presence
type PartyMap struct {
	mu      sync.RWMutex
	parties map[string]*PartySessions // partyId -> sessions
	rdb     *redis.Client
	ttl     time.Duration
}

// PartySessions holds all connections for a party
type PartySessions struct {
	Clients []*Client
	Time    time.Time
}

// NewPartyMap creates a new PartyMap. rdb may be nil, in which case presence
// is local to this instance.
func NewPartyMap(rdb *redis.Client, ttl time.Duration) *PartyMap {
	return &PartyMap{
		parties: make(map[string]*PartySessions),
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Register registers a client
func (m *PartyMap) Register(ctx context.Context, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, exists := m.parties[client.PartyId]
	if !exists {
		sessions = &PartySessions{
			Clients: make([]*Client, 0, 4),
		}
		m.parties[client.PartyId] = sessions
	}

	sessions.Clients = append(sessions.Clients, client)
	sessions.Time = time.Now()

	m.setOnline(ctx, client.PartyId)
}

// Unregister unregisters a client and reports whether the party has no
// sessions left
func (m *PartyMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, exists := m.parties[client.PartyId]
	if !exists {
		return false
	}

	remaining := make([]*Client, 0, len(sessions.Clients))
	for _, c := range sessions.Clients {
		if c.ConnId != client.ConnId {
			remaining = append(remaining, c)
		}
	}
	sessions.Clients = remaining

	if len(sessions.Clients) == 0 {
		delete(m.parties, client.PartyId)
		m.setOffline(ctx, client.PartyId)
		return true
	}

	return false
}

// GetAll gets all clients for a party
func (m *PartyMap) GetAll(partyId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions, exists := m.parties[partyId]
	if !exists {
		return nil, false
	}

	clients := make([]*Client, len(sessions.Clients))
	copy(clients, sessions.Clients)
	return clients, true
}

// HasConnection checks if a party has any connection on this instance
func (m *PartyMap) HasConnection(partyId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions, exists := m.parties[partyId]
	return exists && len(sessions.Clients) > 0
}

// OnlineParties reports presence for each party, checking local sessions
// first and Redis for sessions held by other instances
func (m *PartyMap) OnlineParties(ctx context.Context, partyIds []string) map[string]bool {
	result := make(map[string]bool, len(partyIds))
	remote := make([]string, 0, len(partyIds))
	for _, id := range partyIds {
		if m.HasConnection(id) {
			result[id] = true
			continue
		}
		remote = append(remote, id)
	}
	if m.rdb == nil || len(remote) == 0 {
		return result
	}

	pipe := m.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(remote))
	for i, id := range remote {
		cmds[i] = pipe.Exists(ctx, onlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.CtxWarn(ctx, "check presence failed: %v", err)
		return result
	}
	for i, id := range remote {
		result[id] = cmds[i].Val() > 0
	}
	return result
}

// IsOnline checks whether a single party is online
func (m *PartyMap) IsOnline(ctx context.Context, partyId string) bool {
	return m.OnlineParties(ctx, []string{partyId})[partyId]
}

// RefreshOnlineStatus extends the presence TTL of every local party
func (m *PartyMap) RefreshOnlineStatus(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	pipe := m.rdb.Pipeline()
	for _, id := range m.GetAllOnlinePartyIds() {
		pipe.Expire(ctx, onlineKey(id), m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		log.CtxWarn(ctx, "refresh presence failed: %v", err)
	}
}

// GetOnlinePartyCount returns the number of parties with a local session
func (m *PartyMap) GetOnlinePartyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parties)
}

// GetAllOnlinePartyIds returns all party ids with a local session
func (m *PartyMap) GetAllOnlinePartyIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.parties))
	for id := range m.parties {
		ids = append(ids, id)
	}
	return ids
}

func (m *PartyMap) setOnline(ctx context.Context, partyId string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Set(ctx, onlineKey(partyId), "1", m.ttl).Err(); err != nil {
		log.CtxWarn(ctx, "set online failed: party_id=%s, error=%v", partyId, err)
	}
}

func (m *PartyMap) setOffline(ctx context.Context, partyId string) {
	if m.rdb == nil {
		return
	}
	m.rdb.Del(ctx, onlineKey(partyId))
}

func onlineKey(partyId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), partyId)
}
