package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/mocks"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// recorder is a SignalConnection that keeps every frame it is handed.
type recorder struct {
	mu     sync.Mutex
	events []wireEvent
	full   bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return core.ErrBackpressure
	}
	var ev wireEvent
	if err := json.Unmarshal(f, &ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() {}

// drain returns and forgets everything received so far.
func (r *recorder) drain() []wireEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type memStore struct {
	mu   sync.Mutex
	seq  uint64
	logs map[domain.RoomName][]domain.Message
}

func newMemStore() *memStore {
	return &memStore{logs: make(map[domain.RoomName][]domain.Message)}
}

func (s *memStore) Append(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = s.seq
	s.logs[msg.Room] = append(s.logs[msg.Room], *msg)
	return nil
}

func (s *memStore) RecentHistory(_ context.Context, room domain.RoomName, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[room]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	return slices.Clone(log), nil
}

type client struct {
	sid    core.SessionID
	rec    *recorder
	ctx    context.Context
	user   *domain.User
	cancel context.CancelFunc
}

func newOrchestrator(store core.MessageStore, opts Options) *Orchestrator {
	opts.Now = func() time.Time { return fixedNow }
	return New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, store, opts)
}

func connect(o *Orchestrator, username string) *client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		sid:    core.SessionID(uuid.NewString()),
		rec:    &recorder{},
		ctx:    ctx,
		cancel: cancel,
		user:   &domain.User{ID: domain.UserID(uuid.NewString()), Username: username},
	}
	guest := core.NewMemberSession(domain.NewMember(&domain.User{Username: "guest"}), c.rec)
	o.Registry.BindSignal(c.sid, guest, cancel)
	return c
}

func joinAll(t *testing.T, o *Orchestrator, room domain.RoomName, clients ...*client) {
	t.Helper()
	for _, c := range clients {
		require.NoError(t, o.Join(context.Background(), c.sid, room, c.user))
	}
	for _, c := range clients {
		c.rec.drain()
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestOrchestrator_JoinAnnouncesPresence(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")

	// Given alice is alone in the room
	req.NoError(o.Join(context.Background(), alice.sid, "r1", alice.user))
	evs := alice.rec.drain()
	req.Len(evs, 2)
	req.Equal(core.EvLoadHistory, evs[0].Type)
	req.JSONEq(`[]`, string(evs[0].Data))
	req.Equal(core.EvRoomUsers, evs[1].Type)
	req.Equal([]string{"alice"}, decode[[]string](t, evs[1].Data))

	// When bob joins
	req.NoError(o.Join(context.Background(), bob.sid, "r1", bob.user))

	// Then bob gets the backlog and the member list
	evs = bob.rec.drain()
	req.Len(evs, 2)
	history := decode[[]domain.Message](t, evs[0].Data)
	req.Len(history, 1)
	req.Equal("alice has joined the chat", history[0].Message)
	req.Equal(domain.SystemAuthor, history[0].Author)
	req.Equal([]string{"alice", "bob"}, decode[[]string](t, evs[1].Data))

	// And alice sees the announcement followed by the new member list
	evs = alice.rec.drain()
	req.Len(evs, 2)
	req.Equal(core.EvReceive, evs[0].Type)
	joined := decode[domain.Message](t, evs[0].Data)
	req.Equal("bob has joined the chat", joined.Message)
	req.Equal("9:5", joined.Time)
	req.Equal(core.EvRoomUsers, evs[1].Type)
	req.Equal([]string{"alice", "bob"}, o.MembersOf("r1"))
}

func TestOrchestrator_JoinUnboundSession(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	err := o.Join(context.Background(), "ghost", "r1", &domain.User{Username: "ghost"})
	req.ErrorIs(err, ErrUnknownSession)
}

func TestOrchestrator_SendMessage(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	o := newOrchestrator(store, Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice, bob)

	// When alice sends two messages, one without a time
	req.NoError(o.SendMessage(context.Background(), alice.sid, &domain.Message{
		Room: "r1", Author: "alice", Message: "hi", Time: "10:30", Type: domain.KindText,
	}))
	req.NoError(o.SendMessage(context.Background(), alice.sid, &domain.Message{
		Room: "r1", Author: "alice", Message: "again", Type: domain.KindSpoiler,
	}))

	// Then bob receives both in order and alice receives neither
	req.Empty(alice.rec.drain())
	evs := bob.rec.drain()
	req.Len(evs, 2)
	first := decode[domain.Message](t, evs[0].Data)
	second := decode[domain.Message](t, evs[1].Data)
	req.Equal("hi", first.Message)
	req.Equal("10:30", first.Time)
	req.Equal("again", second.Message)
	req.Equal("9:5", second.Time)
	req.Equal(domain.KindSpoiler, second.Type)

	// And the store holds them after the join announcements
	history, err := store.RecentHistory(context.Background(), "r1", 10)
	req.NoError(err)
	req.Len(history, 4)
	req.Equal("hi", history[2].Message)
	req.Equal("again", history[3].Message)
}

func TestOrchestrator_RoomGuards(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice)

	req.ErrorIs(o.SendMessage(context.Background(), bob.sid, &domain.Message{Room: "r1", Message: "x"}), ErrNotJoined)
	req.ErrorIs(o.Typing(alice.sid, "r2", "alice"), ErrRoomMismatch)
	req.ErrorIs(o.CallUser(bob.sid, "r1", "bob", domain.CallAudio, json.RawMessage(`{}`)), ErrNotJoined)
}

func TestOrchestrator_TypingDrawingClear(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice, bob)

	req.NoError(o.Typing(alice.sid, "r1", "alice"))
	req.NoError(o.Drawing(alice.sid, "r1", json.RawMessage(`{"x0":1,"y0":2,"x1":3,"y1":4,"color":"#000"}`)))
	req.NoError(o.Clear(alice.sid, ""))

	req.Empty(alice.rec.drain())
	evs := bob.rec.drain()
	req.Len(evs, 3)
	req.Equal(core.EvDisplayTyping, evs[0].Type)
	req.JSONEq(`"alice"`, string(evs[0].Data))
	req.Equal(core.EvDrawing, evs[1].Type)
	req.JSONEq(`{"x0":1,"y0":2,"x1":3,"y1":4,"color":"#000"}`, string(evs[1].Data))
	req.Equal(core.EvClear, evs[2].Type)
	req.Empty(evs[2].Data)
}

func TestOrchestrator_StoreFailuresAreNotFatal(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	boom := core.NewStoreError("append", errors.New("disk full"))

	store.EXPECT().RecentHistory(gomock.Any(), domain.RoomName("r1"), core.DefaultHistoryLimit).
		Return(nil, errors.New("db down")).AnyTimes()
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(boom).AnyTimes()

	o := newOrchestrator(store, Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")

	// Given history is unavailable, joining still succeeds with an empty backlog
	req.NoError(o.Join(context.Background(), alice.sid, "r1", alice.user))
	evs := alice.rec.drain()
	req.Equal(core.EvLoadHistory, evs[0].Type)
	req.JSONEq(`[]`, string(evs[0].Data))

	req.NoError(o.Join(context.Background(), bob.sid, "r1", bob.user))
	alice.rec.drain()
	bob.rec.drain()

	// When appends fail, fan-out still happens
	req.NoError(o.SendMessage(context.Background(), alice.sid, &domain.Message{Room: "r1", Author: "alice", Message: "hi"}))
	evs = bob.rec.drain()
	req.Len(evs, 1)
	req.Equal("hi", decode[domain.Message](t, evs[0].Data).Message)
}

func TestOrchestrator_CallFlow(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob, carol := connect(o, "alice"), connect(o, "bob"), connect(o, "carol")
	joinAll(t, o, "r1", alice, bob, carol)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)

	// When alice rings the room
	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallVideo, offer))
	req.Equal(domain.CallRinging, o.CallState("r1"))
	req.Empty(alice.rec.drain())
	for _, c := range []*client{bob, carol} {
		evs := c.rec.drain()
		req.Len(evs, 1)
		req.Equal(core.EvCallUser, evs[0].Type)
		in := decode[IncomingCall](t, evs[0].Data)
		req.Equal(alice.sid, in.From)
		req.Equal("alice", in.Name)
		req.Equal(domain.CallVideo, in.CallType)
		req.JSONEq(string(offer), string(in.Signal))
	}

	// Then a second caller is rejected silently
	req.ErrorIs(o.CallUser(carol.sid, "r1", "carol", domain.CallAudio, offer), domain.ErrCallInProgress)
	req.Empty(alice.rec.types())
	req.Empty(bob.rec.types())
	req.Empty(carol.rec.types())

	// When bob answers only alice hears about it
	req.NoError(o.AnswerCall(bob.sid, "r1", answer))
	req.Equal(domain.CallActive, o.CallState("r1"))
	evs := alice.rec.drain()
	req.Len(evs, 1)
	req.Equal(core.EvCallAccepted, evs[0].Type)
	req.JSONEq(string(answer), string(evs[0].Data))
	req.Empty(carol.rec.types())
	req.ErrorIs(o.AnswerCall(carol.sid, "r1", answer), domain.ErrNoPendingCall)

	// And candidates reach everyone else
	req.NoError(o.RelayICE(alice.sid, "r1", json.RawMessage(`{"candidate":"c1"}`)))
	req.Equal([]string{core.EvICECandidate}, bob.rec.types())
	req.Equal([]string{core.EvICECandidate}, carol.rec.types())
	bob.rec.drain()
	carol.rec.drain()

	// A bystander cannot hang up an active call
	req.ErrorIs(o.EndCall(carol.sid, "r1"), domain.ErrNotCallParty)

	req.NoError(o.EndCall(alice.sid, "r1"))
	req.Equal(domain.CallIdle, o.CallState("r1"))
	req.Equal([]string{core.EvCallEnded}, bob.rec.types())
	req.Equal([]string{core.EvCallEnded}, carol.rec.types())
	bob.rec.drain()

	// Candidates outside a call are dropped
	req.ErrorIs(o.RelayICE(alice.sid, "r1", json.RawMessage(`{}`)), domain.ErrNoCall)
	req.Empty(bob.rec.types())
}

func TestOrchestrator_CallerCancelsWhileRinging(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob, carol := connect(o, "alice"), connect(o, "bob"), connect(o, "carol")
	joinAll(t, o, "r1", alice, bob, carol)

	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))
	bob.rec.drain()
	carol.rec.drain()

	// Given a bystander tries to end the ringing call, nothing changes
	req.ErrorIs(o.EndCall(carol.sid, "r1"), domain.ErrNotCallParty)
	req.Equal(domain.CallRinging, o.CallState("r1"))
	req.Empty(alice.rec.types())
	req.Empty(bob.rec.types())

	// When the caller cancels, the room is told
	req.NoError(o.EndCall(alice.sid, "r1"))
	req.Equal(domain.CallIdle, o.CallState("r1"))
	req.Equal([]string{core.EvCallEnded}, bob.rec.types())
	req.Equal([]string{core.EvCallEnded}, carol.rec.types())
}

func TestOrchestrator_DisconnectMidCall(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob, carol := connect(o, "alice"), connect(o, "bob"), connect(o, "carol")
	joinAll(t, o, "r1", alice, bob, carol)

	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))
	req.NoError(o.AnswerCall(bob.sid, "r1", json.RawMessage(`{}`)))
	alice.rec.drain()
	carol.rec.drain()

	// When bob's connection drops
	o.Disconnect(bob.sid)

	// Then the call is torn down before the departure is announced
	req.Equal(domain.CallIdle, o.CallState("r1"))
	for _, c := range []*client{alice, carol} {
		evs := c.rec.drain()
		req.Len(evs, 3)
		req.Equal(core.EvCallEnded, evs[0].Type)
		req.Equal(core.EvReceive, evs[1].Type)
		req.Equal("bob has left the chat", decode[domain.Message](t, evs[1].Data).Message)
		req.Equal(core.EvRoomUsers, evs[2].Type)
		req.Equal([]string{"alice", "carol"}, decode[[]string](t, evs[2].Data))
	}
	_, ok := o.Registry.GetSession(bob.sid)
	req.False(ok)

	// And a fresh call can be placed
	req.NoError(o.CallUser(carol.sid, "r1", "carol", domain.CallAudio, json.RawMessage(`{}`)))
	req.Equal([]string{core.EvCallUser}, alice.rec.types())

	// Disconnect is idempotent
	o.Disconnect(bob.sid)
}

func TestOrchestrator_RoomChangeLeavesPreviousRoom(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice, bob)
	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))
	bob.rec.drain()

	// When alice moves to another room
	req.NoError(o.Join(context.Background(), alice.sid, "r2", alice.user))

	// Then r1 loses her and her call
	req.Equal(domain.CallIdle, o.CallState("r1"))
	req.Equal([]string{core.EvCallEnded, core.EvReceive, core.EvRoomUsers}, bob.rec.types())
	req.Equal([]string{"bob"}, o.MembersOf("r1"))
	req.Equal([]string{"alice"}, o.MembersOf("r2"))

	// Events naming the old room are refused
	req.ErrorIs(o.Typing(alice.sid, "r1", "alice"), ErrRoomMismatch)
}

func TestOrchestrator_EmptyRoomIsReleased(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice := connect(o, "alice")
	joinAll(t, o, "r1", alice)
	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))

	o.Leave(context.Background(), alice.sid)

	_, ok := o.Rooms.Get("r1")
	req.False(ok)
	req.Equal(domain.CallIdle, o.CallState("r1"))
	req.Empty(o.MembersOf("r1"))
}

func TestOrchestrator_RingTimeout(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{RingTimeout: 20 * time.Millisecond})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice, bob)

	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))

	req.Eventually(func() bool {
		return o.CallState("r1") == domain.CallIdle
	}, time.Second, 5*time.Millisecond)
	req.Equal([]string{core.EvCallUser, core.EvCallEnded}, bob.rec.types())
	req.Equal([]string{core.EvCallEnded}, alice.rec.types())
}

func TestOrchestrator_AnsweredCallOutlivesRingTimeout(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{RingTimeout: 10 * time.Millisecond})
	alice, bob := connect(o, "alice"), connect(o, "bob")
	joinAll(t, o, "r1", alice, bob)

	req.NoError(o.CallUser(alice.sid, "r1", "alice", domain.CallAudio, json.RawMessage(`{}`)))
	req.NoError(o.AnswerCall(bob.sid, "r1", json.RawMessage(`{}`)))

	time.Sleep(50 * time.Millisecond)
	req.Equal(domain.CallActive, o.CallState("r1"))
}

func TestOrchestrator_SlowMemberIsKicked(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	alice, slow := connect(o, "alice"), connect(o, "slow")
	joinAll(t, o, "r1", alice, slow)

	slow.rec.mu.Lock()
	slow.rec.full = true
	slow.rec.mu.Unlock()

	req.NoError(o.SendMessage(context.Background(), alice.sid, &domain.Message{Room: "r1", Message: "hi"}))
	req.ErrorIs(slow.ctx.Err(), context.Canceled)
	req.NoError(alice.ctx.Err())
}

// lastUsers is the most recent room_users list a client saw.
func lastUsers(t *testing.T, c *client) []string {
	t.Helper()
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	for i := len(c.rec.events) - 1; i >= 0; i-- {
		if c.rec.events[i].Type == core.EvRoomUsers {
			return decode[[]string](t, c.rec.events[i].Data)
		}
	}
	return nil
}

func TestOrchestrator_ConcurrentJoinLeaveKeepsMembershipConsistent(t *testing.T) {
	req := require.New(t)
	o := newOrchestrator(newMemStore(), Options{})
	ctx := context.Background()
	const stayers, churners, rounds = 6, 6, 25

	var stay, churn []*client
	for i := range stayers {
		stay = append(stay, connect(o, fmt.Sprintf("stay-%d", i)))
	}
	for i := range churners {
		churn = append(churn, connect(o, fmt.Sprintf("churn-%d", i)))
	}
	want := lo.Map(stay, func(c *client, _ int) string { return c.user.Username })

	// When stayers join r1 while churners keep entering and leaving it
	var wg sync.WaitGroup
	for _, c := range stay {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Join(ctx, c.sid, "r1", c.user))
		}()
	}
	for _, c := range churn {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				assert.NoError(t, o.Join(ctx, c.sid, "r1", c.user))
				o.Leave(ctx, c.sid)
			}
		}()
	}
	wg.Wait()

	// Then only the stayers are members, and each saw the final list last
	req.ElementsMatch(want, o.MembersOf("r1"))
	for _, c := range stay {
		req.ElementsMatch(want, lastUsers(t, c), c.user.Username)
	}
	for _, c := range churn {
		_, _, ok := o.Registry.RoomOf(c.sid)
		req.False(ok)
	}

	// When churners fill and empty r2 over and over, the room is released and recreated
	for _, c := range churn {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				assert.NoError(t, o.Join(ctx, c.sid, "r2", c.user))
				o.Leave(ctx, c.sid)
			}
		}()
	}
	wg.Wait()
	_, ok := o.Rooms.Get("r2")
	req.False(ok)
	req.Empty(o.MembersOf("r2"))

	// When two stayers are in a call and every stayer disconnects at once
	req.NoError(o.CallUser(stay[0].sid, "r1", "stay-0", domain.CallAudio, json.RawMessage(`{}`)))
	req.NoError(o.AnswerCall(stay[1].sid, "r1", json.RawMessage(`{}`)))
	for _, c := range stay {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Disconnect(c.sid)
		}()
	}
	wg.Wait()

	// Then r1 is gone with its call and the next room of that name starts idle
	_, ok = o.Rooms.Get("r1")
	req.False(ok)
	req.Equal(churners, o.Registry.Count())
	late := connect(o, "late")
	req.NoError(o.Join(ctx, late.sid, "r1", late.user))
	req.Equal(domain.CallIdle, o.CallState("r1"))
	req.Equal([]string{"late"}, o.MembersOf("r1"))
	req.NoError(o.CallUser(late.sid, "r1", "late", domain.CallAudio, json.RawMessage(`{}`)))
}
