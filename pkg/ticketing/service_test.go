package ticketing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/entities"
	"github.com/unity-vault/vaultbot/pkg/logging"
	"github.com/unity-vault/vaultbot/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

// fakeGuilds is an in-memory GuildDal. NextTicketNumber is guarded by a
// mutex, mirroring the atomic findAndModify the real DAL relies on.
type fakeGuilds struct {
	mu     sync.Mutex
	guilds map[string]*entities.Guild
}

func newFakeGuilds() *fakeGuilds {
	return &fakeGuilds{guilds: make(map[string]*entities.Guild)}
}

func (f *fakeGuilds) GetOrCreateGuild(_ context.Context, id string) (*entities.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[id]
	if !ok {
		g = &entities.Guild{ID: id}
		f.guilds[id] = g
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGuilds) SaveSettings(_ context.Context, guild *entities.Guild) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guild.ID]
	if !ok {
		g = &entities.Guild{ID: guild.ID}
		f.guilds[guild.ID] = g
	}
	g.LogChannelID = guild.LogChannelID
	g.TicketCategoryID = guild.TicketCategoryID
	g.SupportRoleIDs = guild.SupportRoleIDs
	g.OnboardingChannelID = guild.OnboardingChannelID
	return nil
}

func (f *fakeGuilds) NextTicketNumber(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[id]
	if !ok {
		g = &entities.Guild{ID: id}
		f.guilds[id] = g
	}
	g.TicketCounter++
	return g.TicketCounter, nil
}

func (f *fakeGuilds) counter(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.guilds[id]; ok {
		return g.TicketCounter
	}
	return 0
}

// fakeTickets is an in-memory TicketDal keyed by channel ID.
type fakeTickets struct {
	mu      sync.Mutex
	tickets map[string]*entities.Ticket
	saveErr error
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: make(map[string]*entities.Ticket)}
}

func (f *fakeTickets) SaveTicket(_ context.Context, t *entities.Ticket) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tickets[t.ChannelID] = &cp
	return nil
}

func (f *fakeTickets) GetTicketByChannel(_ context.Context, guildID, channelID string) (*entities.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[channelID]
	if !ok || t.GuildID != guildID {
		return nil, dataaccess.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) CountActiveForUser(_ context.Context, guildID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickets {
		if t.GuildID == guildID && t.UserID == userID && t.Status.Active() {
			n++
		}
	}
	return n, nil
}

// fakeRateStore is an in-memory RateLimitDal.
type fakeRateStore struct {
	mu      sync.Mutex
	entries map[string]*entities.RateLimitEntry
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{entries: make(map[string]*entities.RateLimitEntry)}
}

func (f *fakeRateStore) GetEntry(_ context.Context, key string) (*entities.RateLimitEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return nil, dataaccess.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRateStore) StartWindow(_ context.Context, key string, windowEnd time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = &entities.RateLimitEntry{Key: key, Count: 1, WindowEnd: windowEnd}
	return nil
}

func (f *fakeRateStore) Increment(_ context.Context, key string, limit int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || e.Count >= limit || !e.WindowEnd.After(now) {
		return false, nil
	}
	e.Count++
	return true, nil
}

// fakeChannels hands out sequential channel IDs.
type fakeChannels struct {
	mu        sync.Mutex
	created   []string
	deleted   []string
	createErr error
	deleteErr error
}

func (f *fakeChannels) CreateTicketChannel(_ context.Context, _ *entities.Guild, t *entities.Ticket) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("chan-%d", t.Number)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeChannels) DeleteChannel(_ context.Context, channelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return f.deleteErr
}

// fakeSink records audit events.
type fakeSink struct {
	mu     sync.Mutex
	events []LogEvent
	err    error
}

func (f *fakeSink) Send(_ context.Context, _ *entities.Guild, ev LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) byType(typ string) []LogEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []LogEvent
	for _, ev := range f.events {
		if ev.EventType() == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	guilds   *fakeGuilds
	tickets  *fakeTickets
	channels *fakeChannels
	sink     *fakeSink
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err)

	f := &fixture{
		guilds:   newFakeGuilds(),
		tickets:  newFakeTickets(),
		channels: &fakeChannels{},
		sink:     &fakeSink{},
	}
	limiter := ratelimit.NewChecker(l, newFakeRateStore())
	f.svc = NewService(l, f.guilds, f.tickets, limiter, f.channels, f.sink)
	return f
}

func openReq(userID string) OpenRequest {
	return OpenRequest{
		GuildID:     "g1",
		UserID:      userID,
		Username:    "user-" + userID,
		Type:        entities.TicketTypeSupport,
		Subject:     "S",
		Description: "0123456789",
	}
}

func TestOpenCreatesTicket(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	require.Equal(t, 1, tk.Number)
	require.Equal(t, entities.TicketStatusOpen, tk.Status)
	require.Equal(t, "chan-1", tk.ChannelID)
	require.Equal(t, 1, f.guilds.counter("g1"))

	created := f.sink.byType(EventTicketCreated)
	require.Len(t, created, 1)
	require.Equal(t, 1, created[0].(TicketCreated).Number)
}

func TestOpenRejectsShortDescription(t *testing.T) {
	f := newFixture(t)

	req := openReq("u1")
	req.Description = "123456789" // 9 chars, one short of the minimum

	_, err := f.svc.Open(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "description", verr.Field)

	// Rejected before any side effect: no counter, no channel, no event.
	require.Equal(t, 0, f.guilds.counter("g1"))
	require.Empty(t, f.channels.created)
	require.Empty(t, f.sink.events)
}

func TestOpenValidationBounds(t *testing.T) {
	f := newFixture(t)

	req := openReq("u1")
	req.Subject = ""
	_, err := f.svc.Open(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "subject", verr.Field)

	req = openReq("u1")
	req.Subject = strings.Repeat("a", MaxSubjectLength+1)
	_, err = f.svc.Open(context.Background(), req)
	require.ErrorAs(t, err, &verr)

	req = openReq("u1")
	req.Description = strings.Repeat("a", MaxDescriptionLength+1)
	_, err = f.svc.Open(context.Background(), req)
	require.ErrorAs(t, err, &verr)

	req = openReq("u1")
	req.Type = entities.TicketType("billing")
	_, err = f.svc.Open(context.Background(), req)
	require.ErrorAs(t, err, &verr)
}

func TestOpenTicketCap(t *testing.T) {
	f := newFixture(t)

	// The cap is 2: holding 1 active ticket allows exactly one more.
	_, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)
	_, err = f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), openReq("u1"))
	var capErr *TooManyOpenError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, 2, capErr.Count)
	require.Equal(t, 2, f.guilds.counter("g1"))
}

func TestOpenRateLimited(t *testing.T) {
	f := newFixture(t)

	// The ticket-create budget is 3 per window; close each ticket so the
	// open-ticket cap never interferes.
	for i := 0; i < 3; i++ {
		tk, err := f.svc.Open(context.Background(), openReq("u1"))
		require.NoError(t, err)
		require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
			GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
		}))
	}

	_, err := f.svc.Open(context.Background(), openReq("u1"))
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	require.Greater(t, rlErr.RetryAfter, time.Duration(0))
	require.Equal(t, 3, f.guilds.counter("g1"))
}

func TestOpenConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t)

	const n = 16
	var wg sync.WaitGroup
	numbers := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := f.svc.Open(context.Background(), openReq(fmt.Sprintf("u%d", i)))
			if err == nil {
				numbers <- tk.Number
			}
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	count := 0
	for num := range numbers {
		require.False(t, seen[num], "duplicate ticket number %d", num)
		seen[num] = true
		count++
	}
	require.Equal(t, n, count)
	require.Equal(t, n, f.guilds.counter("g1"))
}

func TestCloseFlow(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	// Step one validates the guard without mutating anything.
	got, err := f.svc.RequestClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, tk.Number, got.Number)
	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusOpen, stored.Status)

	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	}))

	stored, err = f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	require.Equal(t, "u1", stored.ClosedBy)

	require.Len(t, f.sink.byType(EventTicketClosed), 1)
	require.Equal(t, []string{tk.ChannelID}, f.channels.deleted)
}

func TestConfirmCloseRechecksGuard(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	// The opener passes step one...
	_, err = f.svc.RequestClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	})
	require.NoError(t, err)

	// ...but a different, non-staff actor confirming is rejected: the
	// confirm step runs the guard on its own.
	err = f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "intruder",
	})
	require.ErrorIs(t, err, ErrCloseDenied)

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusOpen, stored.Status)
	require.Empty(t, f.channels.deleted)
}

func TestCloseByStaff(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "mod1", ActorIsStaff: true,
	}))

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, "mod1", stored.ClosedBy)
}

func TestCloseRecordCommittedEvenWhenChannelDeleteFails(t *testing.T) {
	f := newFixture(t)
	f.channels.deleteErr = errors.New("channel already gone")

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	// Channel destruction is best-effort; the close itself succeeds.
	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	}))

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusClosed, stored.Status)
	require.Len(t, f.sink.byType(EventTicketClosed), 1)
}

func TestCloseUnknownChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: "nope", ActorID: "u1",
	})
	require.ErrorIs(t, err, ErrNotTicket)
}

func TestEscalate(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)

	// Non-staff cannot escalate.
	err = f.svc.Escalate(context.Background(), EscalateRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	})
	require.ErrorIs(t, err, ErrEscalateDenied)

	require.NoError(t, f.svc.Escalate(context.Background(), EscalateRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "mod1", ActorIsStaff: true,
	}))

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusEscalated, stored.Status)
	require.NotNil(t, stored.EscalatedAt)
	first := *stored.EscalatedAt

	events := f.sink.byType(EventTicketEscalated)
	require.Len(t, events, 1)
	require.Equal(t, "mod1", events[0].(TicketEscalated).EscalatedBy)

	// A second escalate is accepted and re-stamps the timestamp.
	now := first.Add(5 * time.Minute)
	f.svc.WithClock(func() time.Time { return now })
	require.NoError(t, f.svc.Escalate(context.Background(), EscalateRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "mod2", ActorIsStaff: true,
	}))

	stored, err = f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.True(t, stored.EscalatedAt.After(first))
	require.Len(t, f.sink.byType(EventTicketEscalated), 2)
}

func TestEscalateClosedTicketClearsCloseStamps(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	}))

	require.NoError(t, f.svc.Escalate(context.Background(), EscalateRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "mod1", ActorIsStaff: true,
	}))

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusEscalated, stored.Status)
	require.Nil(t, stored.ClosedAt)
	require.Empty(t, stored.ClosedBy)
}

func TestReopen(t *testing.T) {
	f := newFixture(t)

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	}))

	require.NoError(t, f.svc.Reopen(context.Background(), "g1", tk.ChannelID, "mod1"))

	stored, err := f.tickets.GetTicketByChannel(context.Background(), "g1", tk.ChannelID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusReopened, stored.Status)
	require.Nil(t, stored.ClosedAt)
	require.Empty(t, stored.ClosedBy)
	require.Len(t, f.sink.byType(EventTicketReopened), 1)
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("log channel unavailable")

	tk, err := f.svc.Open(context.Background(), openReq("u1"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmClose(context.Background(), CloseRequest{
		GuildID: "g1", ChannelID: tk.ChannelID, ActorID: "u1",
	}))
}
