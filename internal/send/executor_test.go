package send_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/draft"
	"github.com/nyashahama/smartsendr-backend/internal/gmail"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
	"github.com/nyashahama/smartsendr-backend/internal/send"
	"github.com/nyashahama/smartsendr-backend/internal/token"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubQuerier struct {
	db.Querier

	mu        sync.Mutex
	profile   db.Profile
	contacts  map[uuid.UUID]db.Contact
	emailUsed int32
	premium   bool
	marked    []uuid.UUID
	markErr   error
}

func (q *stubQuerier) GetProfile(_ context.Context, id uuid.UUID) (db.Profile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.profile
	p.ID = id
	p.EmailCount = q.emailUsed
	return p, nil
}

func (q *stubQuerier) GetActiveSubscriptionStatus(context.Context, uuid.UUID) (string, error) {
	if q.premium {
		return db.SubscriptionStatusActive, nil
	}
	return "", sql.ErrNoRows
}

func (q *stubQuerier) IncrementEmailCount(_ context.Context, arg db.IncrementEmailCountParams) (int32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emailUsed += arg.Count
	return q.emailUsed, nil
}

func (q *stubQuerier) GetContactsByIDs(_ context.Context, arg db.GetContactsByIDsParams) ([]db.Contact, error) {
	var out []db.Contact
	for _, id := range arg.IDs {
		if c, ok := q.contacts[id]; ok && c.UserID == arg.UserID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q *stubQuerier) MarkContactsSent(_ context.Context, arg db.MarkContactsSentParams) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.markErr != nil {
		return 0, q.markErr
	}
	q.marked = append(q.marked, arg.IDs...)
	return int64(len(arg.IDs)), nil
}

type stubTokens struct {
	err   error
	calls int
}

func (s *stubTokens) EnsureValidToken(context.Context, uuid.UUID) (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "access"}, nil
}

// stubSender fails the addresses listed in fail.
type stubSender struct {
	mu   sync.Mutex
	fail map[string]error
	sent []gmail.Message
}

func (s *stubSender) Send(_ context.Context, _ *oauth2.Token, m gmail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[m.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, m)
	return nil
}

type stubDrafter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *stubDrafter) GenerateDraft(_ context.Context, c draft.Contact, _ string) (draft.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return draft.Draft{}, &draft.GenerationError{ContactID: c.ID, Err: d.err}
	}
	return draft.Draft{Text: "Hi " + c.Name + ", would you have time for a brief chat?"}, nil
}

type stubNotifier struct {
	to          string
	sent, total int
}

func (n *stubNotifier) NotifyBatch(_ context.Context, to, _ string, sent, total int) error {
	n.to, n.sent, n.total = to, sent, total
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	userID   uuid.UUID
	ids      []uuid.UUID
	q        *stubQuerier
	tokens   *stubTokens
	sender   *stubSender
	drafter  *stubDrafter
	notifier *stubNotifier
	exec     *send.Executor
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		userID:   uuid.New(),
		tokens:   &stubTokens{},
		sender:   &stubSender{fail: map[string]error{}},
		drafter:  &stubDrafter{},
		notifier: &stubNotifier{},
	}
	f.q = &stubQuerier{
		contacts: map[uuid.UUID]db.Contact{},
		profile: db.Profile{
			Email:    sql.NullString{String: "owner@example.com", Valid: true},
			FullName: sql.NullString{String: "Olive Owner", Valid: true},
		},
	}
	for i := 0; i < n; i++ {
		c := db.Contact{
			ID:     uuid.New(),
			UserID: f.userID,
			Name:   "Contact",
			Email:  string(rune('a'+i)) + "@example.com",
		}
		f.q.contacts[c.ID] = c
		f.ids = append(f.ids, c.ID)
	}
	f.exec = send.NewExecutor(send.Options{
		Querier:     f.q,
		Quota:       quota.NewTracker(f.q, nil, discardLogger()),
		Tokens:      f.tokens,
		Sender:      f.sender,
		Drafter:     f.drafter,
		Notifier:    f.notifier,
		Concurrency: 2,
		Logger:      discardLogger(),
	})
	return f
}

// ─── PRECONDITIONS ────────────────────────────────────────────────────────────

func TestSendBatch_QuotaRejectsWholeBatch(t *testing.T) {
	f := newFixture(t, 3)
	f.q.emailUsed = 24

	_, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})

	var le *quota.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *quota.LimitError", err)
	}
	if le.Stats.EmailsUsed != 24 || le.Stats.EmailsRemaining != 1 {
		t.Errorf("stats = %+v", le.Stats)
	}
	if len(f.sender.sent) != 0 || f.drafter.calls != 0 {
		t.Errorf("work done after rejection: sent=%d drafts=%d", len(f.sender.sent), f.drafter.calls)
	}
	if f.tokens.calls != 0 {
		t.Error("token checked after quota rejection")
	}
	if f.q.emailUsed != 24 {
		t.Errorf("usage = %d, want unchanged 24", f.q.emailUsed)
	}
}

func TestSendBatch_CustomMessageBypassesQuota(t *testing.T) {
	f := newFixture(t, 3)
	f.q.emailUsed = 25

	out, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:        f.userID,
		ContactIDs:    f.ids,
		CustomMessage: "Hello from me",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 3 {
		t.Errorf("sent = %d, want 3", out.Sent)
	}
	if f.q.emailUsed != 25 {
		t.Errorf("usage = %d, want 25 (custom messages are not counted)", f.q.emailUsed)
	}
	if f.drafter.calls != 0 {
		t.Error("drafter called despite custom message")
	}
}

func TestSendBatch_TokenFailureSendsNothing(t *testing.T) {
	for _, tokErr := range []error{token.ErrNotConnected, token.ErrReauthRequired} {
		f := newFixture(t, 2)
		f.tokens.err = tokErr

		_, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})
		if !errors.Is(err, token.ErrReauthRequired) {
			t.Errorf("err = %v, want ErrReauthRequired", err)
		}
		if len(f.sender.sent) != 0 {
			t.Error("emails sent without a valid token")
		}
	}
}

func TestSendBatch_EmptyBatch(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID}); !errors.Is(err, send.ErrNoContacts) {
		t.Errorf("err = %v, want ErrNoContacts", err)
	}
}

// ─── PER-CONTACT ──────────────────────────────────────────────────────────────

func TestSendBatch_PartialFailureCountsOnlySuccesses(t *testing.T) {
	f := newFixture(t, 2)
	f.q.emailUsed = 10
	first := f.q.contacts[f.ids[0]]
	f.sender.fail[first.Email] = &googleapi.Error{Code: 401, Message: "Invalid Credentials"}

	out, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Sent != 1 || len(out.Results) != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Results[0].Success || out.Results[0].Error != gmail.MsgReconnect {
		t.Errorf("result[0] = %+v, want reconnect failure", out.Results[0])
	}
	if !out.Results[1].Success {
		t.Errorf("result[1] = %+v, want success", out.Results[1])
	}
	if f.q.emailUsed != 11 {
		t.Errorf("usage = %d, want 11", f.q.emailUsed)
	}
	if len(f.q.marked) != 1 || f.q.marked[0] != f.ids[1] {
		t.Errorf("marked = %v, want only the second contact", f.q.marked)
	}
	if f.notifier.to != "owner@example.com" || f.notifier.sent != 1 || f.notifier.total != 2 {
		t.Errorf("notifier = %+v", f.notifier)
	}
}

func TestSendBatch_MessagePrecedence(t *testing.T) {
	f := newFixture(t, 2)
	custom := "Shared message"
	individual := "Just for you"

	_, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:             f.userID,
		ContactIDs:         f.ids,
		CustomMessage:      custom,
		IndividualMessages: map[uuid.UUID]string{f.ids[0]: individual},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bodies := map[string]string{}
	for _, m := range f.sender.sent {
		bodies[m.To] = m.Body
		if m.SenderName != "Olive Owner" {
			t.Errorf("sender name = %q", m.SenderName)
		}
	}
	if got := bodies[f.q.contacts[f.ids[0]].Email]; got != individual {
		t.Errorf("first body = %q, want individual message", got)
	}
	if got := bodies[f.q.contacts[f.ids[1]].Email]; got != custom {
		t.Errorf("second body = %q, want custom message", got)
	}
}

func TestSendBatch_MixedBatchChecksDraftedContacts(t *testing.T) {
	f := newFixture(t, 3)
	f.q.emailUsed = 25

	_, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:             f.userID,
		ContactIDs:         f.ids,
		IndividualMessages: map[uuid.UUID]string{f.ids[0]: "hand written"},
	})
	var le *quota.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *quota.LimitError", err)
	}
	if len(f.sender.sent) != 0 || f.drafter.calls != 0 {
		t.Errorf("work done after rejection: sent=%d drafts=%d", len(f.sender.sent), f.drafter.calls)
	}
}

func TestSendBatch_MixedBatchCountsOnlyDrafts(t *testing.T) {
	f := newFixture(t, 3)
	f.q.emailUsed = 23

	out, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:     f.userID,
		ContactIDs: f.ids,
		IndividualMessages: map[uuid.UUID]string{
			f.ids[0]: "hand written",
			f.ids[1]: "   ",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 3 {
		t.Errorf("sent = %d, want 3", out.Sent)
	}
	if f.drafter.calls != 2 {
		t.Errorf("drafter calls = %d, want 2", f.drafter.calls)
	}
	if f.q.emailUsed != 25 {
		t.Errorf("usage = %d, want 25 (only the two drafts count)", f.q.emailUsed)
	}
}

func TestSendBatch_AllIndividualBypassesQuota(t *testing.T) {
	f := newFixture(t, 2)
	f.q.emailUsed = 25

	out, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:     f.userID,
		ContactIDs: f.ids,
		IndividualMessages: map[uuid.UUID]string{
			f.ids[0]: "one",
			f.ids[1]: "two",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 2 || f.drafter.calls != 0 || f.q.emailUsed != 25 {
		t.Errorf("sent=%d drafts=%d usage=%d", out.Sent, f.drafter.calls, f.q.emailUsed)
	}
}

func TestRequest_DraftCount(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	tests := []struct {
		name string
		req  send.Request
		want int
	}{
		{"all drafted", send.Request{}, 3},
		{"custom message", send.Request{CustomMessage: "hi"}, 0},
		{"blank custom", send.Request{CustomMessage: "  "}, 3},
		{"one individual", send.Request{IndividualMessages: map[uuid.UUID]string{a: "x"}}, 2},
		{"blank individual", send.Request{IndividualMessages: map[uuid.UUID]string{a: " "}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.DraftCount([]uuid.UUID{a, b, c}); got != tt.want {
				t.Errorf("DraftCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSendBatch_GenerationFailureIsPerContact(t *testing.T) {
	f := newFixture(t, 2)
	f.drafter.err = errors.New("model unavailable")

	out, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 0 {
		t.Errorf("sent = %d, want 0", out.Sent)
	}
	for _, r := range out.Results {
		if r.Success || r.Error != "Failed to generate message: model unavailable" {
			t.Errorf("result = %+v", r)
		}
	}
	if f.q.emailUsed != 0 {
		t.Errorf("usage = %d, want 0", f.q.emailUsed)
	}
}

func TestSendBatch_MissingAndDuplicateContacts(t *testing.T) {
	f := newFixture(t, 1)
	ghost := uuid.New()

	out, err := f.exec.SendBatch(context.Background(), send.Request{
		UserID:        f.userID,
		ContactIDs:    []uuid.UUID{f.ids[0], ghost, f.ids[0]},
		CustomMessage: "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Results[1].ContactID != ghost || out.Results[1].Error != "contact not found" {
		t.Errorf("result[1] = %+v", out.Results[1])
	}
	if len(f.sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(f.sender.sent))
	}
}

func TestSendBatch_PersistenceErrorKeepsResults(t *testing.T) {
	f := newFixture(t, 1)
	f.q.markErr = errors.New("db down")

	out, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 1 || !out.Results[0].Success {
		t.Errorf("outcome = %+v, want the send reported as successful", out)
	}
}

func TestSendBatch_PremiumIsNotCounted(t *testing.T) {
	f := newFixture(t, 2)
	f.q.premium = true
	f.q.emailUsed = 500

	out, err := f.exec.SendBatch(context.Background(), send.Request{UserID: f.userID, ContactIDs: f.ids})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sent != 2 || f.q.emailUsed != 500 {
		t.Errorf("sent = %d usage = %d", out.Sent, f.q.emailUsed)
	}
}

// ─── SENDER NAME ──────────────────────────────────────────────────────────────

func TestSenderName(t *testing.T) {
	cases := []struct {
		name string
		p    db.Profile
		want string
	}{
		{"full name", db.Profile{FullName: sql.NullString{String: "Ada L", Valid: true}}, "Ada L"},
		{"email local part", db.Profile{Email: sql.NullString{String: "ada@x.io", Valid: true}}, "ada"},
		{"blank name falls through", db.Profile{
			FullName: sql.NullString{String: "  ", Valid: true},
			Email:    sql.NullString{String: "ada@x.io", Valid: true},
		}, "ada"},
		{"nothing", db.Profile{}, send.DefaultSenderName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := send.SenderName(tc.p); got != tc.want {
				t.Errorf("SenderName = %q, want %q", got, tc.want)
			}
		})
	}
}
