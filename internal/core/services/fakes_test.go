package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient records every frame sent to it.
type fakeClient struct {
	id     uuid.UUID
	userID string

	mu     sync.Mutex
	frames []domain.Frame
	closed bool
}

func newFakeClient(userID string) *fakeClient {
	return &fakeClient{id: uuid.New(), userID: userID}
}

func (c *fakeClient) ID() uuid.UUID  { return c.id }
func (c *fakeClient) UserID() string { return c.userID }

func (c *fakeClient) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClientClosed
	}
	var f domain.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// events returns the types of every received frame in order.
func (c *fakeClient) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.Type
	}
	return out
}

func (c *fakeClient) countEvent(name string) int {
	n := 0
	for _, ev := range c.events() {
		if ev == name {
			n++
		}
	}
	return n
}

func (c *fakeClient) lastPayload(t *testing.T, name string, dst any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == name {
			if err := json.Unmarshal(c.frames[i].Payload, dst); err != nil {
				t.Fatalf("decode %s payload: %v", name, err)
			}
			return
		}
	}
	t.Fatalf("no %s frame received, got %v", name, c.events())
}

// fakeMembers is an in-memory MembershipRepository.
type fakeMembers struct {
	mu      sync.Mutex
	byUser  map[string][]string
	members map[string][]string
	err     error
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{
		byUser:  make(map[string][]string),
		members: make(map[string][]string),
	}
}

func (m *fakeMembers) add(channelID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[userID] = append(m.byUser[userID], channelID)
	m.members[channelID] = append(m.members[channelID], userID)
}

func (m *fakeMembers) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	for _, id := range m.byUser[userID] {
		if id == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeMembers) ChannelsFor(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.byUser[userID]...), nil
}

func (m *fakeMembers) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.members[channelID]...), nil
}

// fakePresenceRepo is an in-memory PresenceRepository counting writes.
type fakePresenceRepo struct {
	mu      sync.Mutex
	records map[string]domain.PresenceRecord
	upserts int
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{records: make(map[string]domain.PresenceRecord)}
}

func (r *fakePresenceRepo) Get(ctx context.Context, userID string) (*domain.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, domain.ErrPresenceNotFound
	}
	cp := rec
	return &cp, nil
}

func (r *fakePresenceRepo) Upsert(ctx context.Context, rec *domain.PresenceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.UserID] = *rec
	r.upserts++
	return nil
}

// fakeRoster is an in-memory ChannelRoster.
type fakeRoster struct {
	mu      sync.Mutex
	present map[string]map[string]struct{}
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{present: make(map[string]map[string]struct{})}
}

func (r *fakeRoster) MarkPresent(ctx context.Context, channelID, userID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.present[channelID] == nil {
		r.present[channelID] = make(map[string]struct{})
	}
	r.present[channelID][userID] = struct{}{}
	return nil
}

func (r *fakeRoster) MarkAbsent(ctx context.Context, channelID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.present[channelID], userID)
	return nil
}

func (r *fakeRoster) PresentUsers(ctx context.Context, channelID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id := range r.present[channelID] {
		out = append(out, id)
	}
	return out, nil
}

func (r *fakeRoster) Clear(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.present, channelID)
	return nil
}

// fakeQueue records published stream entries.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	acked     []string
	deleted   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: make(map[string][][]byte)}
}

func (q *fakeQueue) PublishToStream(ctx context.Context, channelID string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[channelID] = append(q.published[channelID], payload)
	return nil
}

func (q *fakeQueue) SubscribeToStream(ctx context.Context, channelID, group string, handler func(ctx context.Context, entryID string, data []byte) error) error {
	return nil
}

func (q *fakeQueue) AcknowledgeMessage(ctx context.Context, channelID, group, entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, entryID)
	return nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, channelID, entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, entryID)
	return nil
}

func (q *fakeQueue) DeleteStream(ctx context.Context, channelID string) error { return nil }

// fakeTx runs the function without a real transaction.
type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeMessageRepo assigns sequences in memory.
type fakeMessageRepo struct {
	mu       sync.Mutex
	seqs     map[string]int64
	saved    []domain.Message
	authors  map[uuid.UUID]string
	channels map[uuid.UUID]string
	reacts   map[string][]string
	readAt   map[string]int64
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		seqs:     make(map[string]int64),
		authors:  make(map[uuid.UUID]string),
		channels: make(map[uuid.UUID]string),
		reacts:   make(map[string][]string),
		readAt:   make(map[string]int64),
	}
}

func (r *fakeMessageRepo) SaveWithSequence(ctx context.Context, msg *domain.Message) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[msg.ChannelID]++
	seq := r.seqs[msg.ChannelID]
	msg.Seq = seq
	r.saved = append(r.saved, *msg)
	r.authors[msg.ID] = msg.SenderID
	r.channels[msg.ID] = msg.ChannelID
	return seq, nil
}

func (r *fakeMessageRepo) AddReaction(ctx context.Context, messageID uuid.UUID, userID, emoji string) (*domain.ReactionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	author, ok := r.authors[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	key := messageID.String() + "/" + emoji
	r.reacts[key] = append(r.reacts[key], userID)
	return &domain.ReactionSummary{
		MessageID: messageID,
		ChannelID: r.channels[messageID],
		AuthorID:  author,
		Emoji:     emoji,
		Count:     len(r.reacts[key]),
		UserIDs:   append([]string(nil), r.reacts[key]...),
	}, nil
}

func (r *fakeMessageRepo) MarkRead(ctx context.Context, channelID, userID string, lastSeq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readAt[channelID+"/"+userID] = lastSeq
	return nil
}

// fakeNotifications records created rows.
type fakeNotifications struct {
	mu      sync.Mutex
	created []domain.Notification
	err     error
}

func (n *fakeNotifications) Create(ctx context.Context, notif *domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.created = append(n.created, *notif)
	return nil
}
