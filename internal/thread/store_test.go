package thread

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return time.UnixMilli(1_000) }
	return s
}

func TestCreateGetDelete(t *testing.T) {
	s := NewStore()
	th := s.Create("")
	if th.ID == "" {
		t.Fatal("expected thread id")
	}

	got, err := s.Get(th.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != th.ID {
		t.Errorf("ID = %q, want %q", got.ID, th.ID)
	}

	if err := s.Delete(th.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get(th.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(th.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	s := fixedStore()
	th := s.Create("t")

	a, _ := s.AppendUser(th.ID, "a")
	b, _ := s.AppendUser(th.ID, "b")
	if b.Timestamp <= a.Timestamp {
		t.Errorf("timestamps %d then %d, want strictly increasing", a.Timestamp, b.Timestamp)
	}
}

func TestAppendUserDerivesTitle(t *testing.T) {
	s := NewStore()
	th := s.Create("")
	long := strings.Repeat("word ", 30)
	if _, err := s.AppendUser(th.ID, long); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(th.ID)
	if !strings.HasSuffix(got.Title, "...") {
		t.Errorf("Title = %q, want truncated title", got.Title)
	}

	_, _ = s.AppendUser(th.ID, "second prompt")
	again, _ := s.Get(th.ID)
	if again.Title != got.Title {
		t.Errorf("Title changed to %q after second prompt", again.Title)
	}
}

func TestSetSystemPrompt(t *testing.T) {
	s := NewStore()
	th := s.Create("t")
	_, _ = s.AppendUser(th.ID, "hi")

	if err := s.SetSystemPrompt(th.ID, "be brief"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSystemPrompt(th.ID, "be verbose"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := s.History(th.ID)
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "be verbose" {
		t.Errorf("msgs[0] = %+v, want replaced system prompt", msgs[0])
	}

	if err := s.SetSystemPrompt(th.ID, ""); err != nil {
		t.Fatal(err)
	}
	msgs, _ = s.History(th.ID)
	if len(msgs) != 2 {
		t.Errorf("empty prompt changed the thread: %+v", msgs)
	}
}

func TestInsertPlaceholdersAndReplace(t *testing.T) {
	s := NewStore()
	th := s.Create("t")
	_, _ = s.AppendUser(th.ID, "q")

	keys, err := s.InsertPlaceholders(th.ID, -1, []string{"gpt", "claude"}, "...")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("keys = %+v, want two distinct keys", keys)
	}

	ok, err := s.Replace(th.ID, keys[1], nil, func(m *Message) {
		m.Content = "answer"
		m.Pending = false
		m.BackendID = "tampered"
	})
	if err != nil || !ok {
		t.Fatalf("Replace = %v, %v", ok, err)
	}

	msg, err := s.Message(th.ID, keys[1])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "answer" || msg.Pending || msg.BackendID != "claude" {
		t.Errorf("message = %+v", msg)
	}
}

func TestReplaceGuardAndMissingKey(t *testing.T) {
	s := NewStore()
	th := s.Create("t")
	keys, _ := s.InsertPlaceholders(th.ID, -1, []string{"gpt"}, "...")

	ok, err := s.Replace(th.ID, keys[0], func() bool { return false }, func(m *Message) {
		m.Content = "stale"
	})
	if err != nil || ok {
		t.Errorf("guarded Replace = %v, %v; want false, nil", ok, err)
	}
	msg, _ := s.Message(th.ID, keys[0])
	if msg.Content != "..." {
		t.Errorf("guarded write leaked: %q", msg.Content)
	}

	ok, err = s.Replace(th.ID, Key{Timestamp: 1, BackendID: "nope"}, nil, func(m *Message) {})
	if err != nil || ok {
		t.Errorf("missing key Replace = %v, %v; want false, nil", ok, err)
	}

	if _, err := s.Replace("missing", keys[0], nil, func(m *Message) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown thread error = %v, want ErrNotFound", err)
	}
}

func TestEditUserTurn(t *testing.T) {
	s := NewStore()
	th := s.Create("t")
	_, _ = s.AppendUser(th.ID, "A")
	k1, _ := s.InsertPlaceholders(th.ID, -1, []string{"gpt", "claude"}, "...")
	_, _ = s.AppendUser(th.ID, "C")
	_, _ = s.InsertPlaceholders(th.ID, -1, []string{"gpt"}, "...")

	history, at, err := s.EditUserTurn(th.ID, 0, "B")
	if err != nil {
		t.Fatal(err)
	}
	if at != 1 {
		t.Errorf("insert position = %d, want 1", at)
	}
	if len(history) != 1 || history[0].Content != "B" {
		t.Errorf("history = %+v, want [user B]", history)
	}

	msgs, _ := s.History(th.ID)
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (%+v)", len(msgs), msgs)
	}
	if msgs[0].Content != "B" || msgs[1].Content != "C" || msgs[2].BackendID != "gpt" {
		t.Errorf("messages = %+v", msgs)
	}
	if _, err := s.Message(th.ID, k1[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("old answer still present: %v", err)
	}

	if _, _, err := s.EditUserTurn(th.ID, 5, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("out of range error = %v, want ErrNotFound", err)
	}
}

func TestOnChange(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	var seen []Message
	s.OnChange(func(threadID string, msg Message) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg)
	})

	th := s.Create("t")
	_, _ = s.AppendUser(th.ID, "q")
	keys, _ := s.InsertPlaceholders(th.ID, -1, []string{"a", "b"}, "...")
	_, _ = s.Replace(th.ID, keys[0], nil, func(m *Message) { m.Content = "x" })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Fatalf("OnChange calls = %d, want 4", len(seen))
	}
	if seen[3].Content != "x" {
		t.Errorf("last change = %+v", seen[3])
	}
}

func TestConcurrentReplace(t *testing.T) {
	s := NewStore()
	th := s.Create("t")
	backends := []string{"a", "b", "c", "d"}
	keys, _ := s.InsertPlaceholders(th.ID, -1, backends, "")

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k Key) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				_, _ = s.Replace(th.ID, k, nil, func(m *Message) { m.Content += backends[i] })
			}
		}(i, k)
	}
	wg.Wait()

	for i, k := range keys {
		msg, _ := s.Message(th.ID, k)
		if msg.Content != strings.Repeat(backends[i], 100) {
			t.Errorf("backend %s content length = %d, want 100", backends[i], len(msg.Content))
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  multi\nline   prompt ", "multi line prompt"},
		{strings.Repeat("é", 60), strings.Repeat("é", 48) + "..."},
	}
	for _, tt := range tests {
		if got := DeriveTitle(tt.in); got != tt.want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
