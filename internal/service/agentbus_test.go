package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quothlabs/quoth/internal/domain"
	"github.com/quothlabs/quoth/internal/domain/agent"
	"github.com/quothlabs/quoth/internal/port/messagequeue"
)

func busAgents() *mockStore {
	byName := map[string]*agent.Agent{
		"scout":   {ID: "11111111-1111-1111-1111-111111111111", Name: "scout", Status: agent.StatusActive},
		"curator": {ID: "22222222-2222-2222-2222-222222222222", Name: "curator", Status: agent.StatusActive},
	}
	return &mockStore{
		getAgentByNameFn: func(_ context.Context, _ string, name string) (*agent.Agent, error) {
			if a, ok := byName[name]; ok {
				return a, nil
			}
			return nil, domain.ErrNotFound
		},
		getAgentFn: func(_ context.Context, _ string, id string) (*agent.Agent, error) {
			for _, a := range byName {
				if a.ID == id {
					return a, nil
				}
			}
			return nil, domain.ErrNotFound
		},
	}
}

func newBus(store *mockStore, queue messagequeue.Queue) *AgentBusService {
	bus := NewAgentBusService(store, queue, "bus-secret", testLogger())
	bus.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return bus
}

func TestEnvelopeSignatureDeterministic(t *testing.T) {
	bus := newBus(busAgents(), nil)

	var captured *agent.Message
	bus.store.(*mockStore).createMessageFn = func(_ context.Context, m *agent.Message) error {
		m.ID = "msg-1"
		captured = m
		return nil
	}

	_, err := bus.Send(context.Background(), "org-1", SendRequest{
		From: "scout", To: "curator", Payload: json.RawMessage(`{"message":"hi"}`),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// Recompute the envelope HMAC exactly: from||to||timestamp, then the
	// secret again, truncated to 16 hex chars.
	nowISO := "2026-08-24T12:00:00Z"
	mac := hmac.New(sha256.New, []byte("bus-secret"))
	mac.Write([]byte(captured.FromAgentID + captured.ToAgentID + nowISO))
	mac.Write([]byte("bus-secret"))
	want := hex.EncodeToString(mac.Sum(nil))[:16]

	if captured.Signature != want {
		t.Fatalf("signature = %s, want %s", captured.Signature, want)
	}
}

func TestSendDefaultsAndValidation(t *testing.T) {
	store := busAgents()
	bus := newBus(store, nil)

	var captured *agent.Message
	store.createMessageFn = func(_ context.Context, m *agent.Message) error {
		captured = m
		return nil
	}

	if _, err := bus.Send(context.Background(), "org-1", SendRequest{From: "scout", To: "curator"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if captured.Type != agent.TypeMessage || captured.Priority != agent.PriorityNormal {
		t.Fatalf("defaults = %s/%s, want message/normal", captured.Type, captured.Priority)
	}
	if captured.Status != agent.MessagePending {
		t.Fatalf("status = %s, want pending", captured.Status)
	}

	_, err := bus.Send(context.Background(), "org-1", SendRequest{From: "scout", To: "curator", Type: "gossip"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad type: err = %v, want validation", err)
	}
	_, err = bus.Send(context.Background(), "org-1", SendRequest{From: "scout", To: "ghost"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown recipient: err = %v, want not found", err)
	}
}

// captureQueue records published notifications.
type captureQueue struct {
	subjects []string
	payloads [][]byte
}

func (q *captureQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.subjects = append(q.subjects, subject)
	q.payloads = append(q.payloads, data)
	return nil
}

func (q *captureQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *captureQueue) Close() error { return nil }

func TestSendPublishesNotification(t *testing.T) {
	queue := &captureQueue{}
	bus := newBus(busAgents(), queue)

	if _, err := bus.Send(context.Background(), "org-1", SendRequest{From: "scout", To: "curator"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(queue.subjects) != 1 || queue.subjects[0] != messagequeue.SubjectAgentMessage {
		t.Fatalf("subjects = %v", queue.subjects)
	}
	var n messagequeue.MessageNotification
	if err := json.Unmarshal(queue.payloads[0], &n); err != nil {
		t.Fatalf("notification payload: %v", err)
	}
	if n.ToAgentID != "22222222-2222-2222-2222-222222222222" {
		t.Fatalf("notification to = %s", n.ToAgentID)
	}
}

func TestInboxMarkRead(t *testing.T) {
	store := busAgents()
	var markedIDs []string
	store.listInboxFn = func(context.Context, string, string, int, agent.MessageStatus) ([]agent.InboxMessage, error) {
		return []agent.InboxMessage{
			{Message: agent.Message{ID: "m1", Status: agent.MessagePending}},
			{Message: agent.Message{ID: "m2", Status: agent.MessageRead}},
			{Message: agent.Message{ID: "m3", Status: agent.MessageDelivered}},
		}, nil
	}
	store.markMessagesReadFn = func(_ context.Context, _ string, ids []string, _ time.Time) error {
		markedIDs = ids
		return nil
	}
	bus := newBus(store, nil)

	messages, err := bus.Inbox(context.Background(), "org-1", "scout", 0, "", true)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(markedIDs) != 2 {
		t.Fatalf("marked = %v, want m1 and m3 only", markedIDs)
	}
	for _, m := range messages {
		if m.Status != agent.MessageRead {
			t.Fatalf("message %s status = %s, want read after mark", m.ID, m.Status)
		}
	}
}

func TestInboxDefaultLimit(t *testing.T) {
	store := busAgents()
	gotLimit := 0
	store.listInboxFn = func(_ context.Context, _, _ string, limit int, _ agent.MessageStatus) ([]agent.InboxMessage, error) {
		gotLimit = limit
		return nil, nil
	}
	bus := newBus(store, nil)

	if _, err := bus.Inbox(context.Background(), "org-1", "scout", 0, "", false); err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if gotLimit != 10 {
		t.Fatalf("limit = %d, want default 10", gotLimit)
	}
}

func TestTaskLifecycleStamping(t *testing.T) {
	store := busAgents()
	task := &agent.Task{ID: "task-1", Status: agent.TaskPending, Priority: 3}
	store.getTaskFn = func(context.Context, string, string) (*agent.Task, error) {
		return task, nil
	}
	store.updateTaskFn = func(_ context.Context, t *agent.Task) error {
		task = t
		return nil
	}
	bus := newBus(store, nil)

	inProgress := agent.TaskInProgress
	updated, err := bus.UpdateTask(context.Background(), "org-1", "task-1", agent.TaskUpdate{Status: &inProgress})
	if err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if updated.StartedAt == nil {
		t.Fatal("in_progress should stamp started_at")
	}
	if updated.CompletedAt != nil {
		t.Fatal("in_progress must not stamp completed_at")
	}
	started := *updated.StartedAt

	done := agent.TaskDone
	result := "all documents verified"
	updated, err = bus.UpdateTask(context.Background(), "org-1", "task-1", agent.TaskUpdate{Status: &done, Result: &result})
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("terminal state should stamp completed_at")
	}
	if !updated.StartedAt.Equal(started) {
		t.Fatal("started_at must be stamped once")
	}
	if updated.Result != result {
		t.Fatalf("result = %q", updated.Result)
	}
}

func TestTaskIllegalTransition(t *testing.T) {
	store := busAgents()
	store.getTaskFn = func(context.Context, string, string) (*agent.Task, error) {
		return &agent.Task{ID: "task-1", Status: agent.TaskDone}, nil
	}
	bus := newBus(store, nil)

	inProgress := agent.TaskInProgress
	_, err := bus.UpdateTask(context.Background(), "org-1", "task-1", agent.TaskUpdate{Status: &inProgress})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want conflict for done -> in_progress", err)
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	store := busAgents()
	var captured *agent.Task
	store.createTaskFn = func(_ context.Context, t *agent.Task) error {
		captured = t
		return nil
	}
	bus := newBus(store, nil)

	_, err := bus.CreateTask(context.Background(), "org-1", CreateTaskRequest{
		AssignedTo: "curator", CreatedBy: "user-1", Title: "Re-verify auth docs",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if captured.Priority != 3 {
		t.Fatalf("priority = %d, want default 3", captured.Priority)
	}
	if captured.Status != agent.TaskPending {
		t.Fatalf("status = %s, want pending", captured.Status)
	}

	_, err = bus.CreateTask(context.Background(), "org-1", CreateTaskRequest{AssignedTo: "curator"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty title: err = %v, want validation", err)
	}
}

func TestRegisterConflictMessage(t *testing.T) {
	store := busAgents()
	store.createAgentFn = func(context.Context, *agent.Agent) error {
		return domain.ErrConflict
	}
	bus := newBus(store, nil)

	_, err := bus.Register(context.Background(), "org-1", agent.RegisterRequest{Name: "scout", Instance: "host-1"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestResolveByUUIDAndName(t *testing.T) {
	bus := newBus(busAgents(), nil)

	byID, err := bus.Resolve(context.Background(), "org-1", "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	byName, err := bus.Resolve(context.Background(), "org-1", "scout")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if byID.ID != byName.ID {
		t.Fatal("uuid and name resolution should find the same agent")
	}

	if _, err := bus.Resolve(context.Background(), "org-1", "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
