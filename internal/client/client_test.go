package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/infra/cache"
	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/throttle"
)

type fakeCall struct {
	method  string
	payload any
	token   string
}

// fakeTransport records calls and delegates to a scripted handler.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []fakeCall
	handler func(call int, method string, payload any) (*domain.Response, error)
}

func (f *fakeTransport) Call(ctx context.Context, method string, payload any, token string) (*domain.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{method: method, payload: payload, token: token})
	n := len(f.calls)
	f.mu.Unlock()
	return f.handler(n, method, payload)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTokens struct{}

func (fakeTokens) Refresh(ctx context.Context, refreshToken string) (*domain.CredentialSet, error) {
	return nil, classify.ReauthRequired()
}

func testConfig() Config {
	return Config{
		MaxAttempts: 2,
		RetryDelay:  10 * time.Millisecond,
		Throttle: throttle.Config{
			BurstLimit:    1000,
			DecayInterval: 10 * time.Millisecond,
			EnableQueue:   true,
			MaxQueueSize:  100,
			QueueTimeout:  time.Second,
		},
	}
}

func okResponse(call int, method string, payload any) (*domain.Response, error) {
	return &domain.Response{Status: 200, Result: []byte(`{"ID": "1"}`)}, nil
}

func newTestClient(t *testing.T, tr *fakeTransport, rc cache.ResponseCache) *Client {
	t.Helper()
	c := New(tr, fakeTokens{}, rc, nil, testConfig())
	t.Cleanup(c.Close)

	err := c.SetCredentials(domain.CredentialSet{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresIn:    3600,
		Domain:       "example.bitrix24.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCall(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := newTestClient(t, tr, nil)

	resp, err := c.Call(context.Background(), "crm.lead.list", map[string]any{"select": []string{"ID"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200", resp.Status)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.calls) != 1 {
		t.Fatalf("transport calls = %d, want 1", len(tr.calls))
	}
	if tr.calls[0].method != "crm.lead.list" || tr.calls[0].token != "tok" {
		t.Errorf("call = %+v", tr.calls[0])
	}
}

func TestCall_NoCredentials(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := New(tr, fakeTokens{}, nil, nil, testConfig())
	t.Cleanup(c.Close)

	_, err := c.Call(context.Background(), "crm.lead.list", nil)
	if classify.CodeOf(err) != classify.CodeNoCredentials {
		t.Errorf("error code = %s, want %s", classify.CodeOf(err), classify.CodeNoCredentials)
	}
	if tr.callCount() != 0 {
		t.Errorf("transport should not be reached without credentials")
	}
}

func TestCall_RetriesTransientFailure(t *testing.T) {
	tr := &fakeTransport{handler: func(call int, method string, payload any) (*domain.Response, error) {
		if call == 1 {
			return nil, &classify.Error{Code: classify.CodeTransport, Message: "connection reset", Retryable: true}
		}
		return okResponse(call, method, payload)
	}}
	c := newTestClient(t, tr, nil)

	resp, err := c.Call(context.Background(), "crm.lead.list", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 || tr.callCount() != 2 {
		t.Errorf("status = %d, calls = %d; want 200 after one retry", resp.Status, tr.callCount())
	}
}

func TestCall_AfterClose(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := newTestClient(t, tr, nil)
	c.Close()

	_, err := c.Call(context.Background(), "crm.lead.list", nil)
	if classify.CodeOf(err) != classify.CodeDestroyed {
		t.Errorf("error code = %s, want %s", classify.CodeOf(err), classify.CodeDestroyed)
	}
}

func TestCallCached(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := newTestClient(t, tr, cache.NewMemory())

	payload := map[string]any{"filter": map[string]string{"STATUS": "NEW"}}
	for i := 0; i < 3; i++ {
		resp, err := c.CallCached(context.Background(), "crm.lead.list", payload, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Status != 200 {
			t.Errorf("status = %d, want 200", resp.Status)
		}
	}

	if got := tr.callCount(); got != 1 {
		t.Errorf("transport calls = %d, want 1 with warm cache", got)
	}

	// A different payload is a different key.
	if _, err := c.CallCached(context.Background(), "crm.lead.list", nil, time.Minute); err != nil {
		t.Fatal(err)
	}
	if got := tr.callCount(); got != 2 {
		t.Errorf("transport calls = %d, want 2 after distinct payload", got)
	}
}

func TestCallCached_ErrorsNotCached(t *testing.T) {
	tr := &fakeTransport{handler: func(call int, method string, payload any) (*domain.Response, error) {
		if call == 1 {
			return nil, classify.Validation("bad filter")
		}
		return okResponse(call, method, payload)
	}}
	c := newTestClient(t, tr, cache.NewMemory())

	if _, err := c.CallCached(context.Background(), "crm.lead.list", nil, time.Minute); err == nil {
		t.Fatal("expected the first call to fail")
	}
	resp, err := c.CallCached(context.Background(), "crm.lead.list", nil, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 || tr.callCount() != 2 {
		t.Errorf("failure should not have been cached; calls = %d", tr.callCount())
	}
}

func TestCallBatch_Chunking(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := newTestClient(t, tr, nil)

	commands := make([]Command, 120)
	for i := range commands {
		commands[i] = Command{Method: "crm.lead.get", Params: map[string]any{"id": i}}
	}

	chunks, err := c.CallBatch(context.Background(), commands, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if len(chunks[0].Commands) != 50 || len(chunks[2].Commands) != 20 {
		t.Errorf("chunk sizes = %d/%d/%d", len(chunks[0].Commands), len(chunks[1].Commands), len(chunks[2].Commands))
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.calls) != 3 {
		t.Fatalf("transport calls = %d, want 3", len(tr.calls))
	}
	for _, call := range tr.calls {
		if call.method != "batch" {
			t.Errorf("method = %s, want batch", call.method)
		}
	}
	payload := tr.calls[1].payload.(map[string]any)
	cmd := payload["cmd"].(map[string]string)
	if len(cmd) != 50 {
		t.Errorf("second chunk carries %d commands, want 50", len(cmd))
	}
	if _, ok := cmd["c50"]; !ok {
		t.Error("second chunk should start at command c50")
	}
}

func TestCallBatch_Empty(t *testing.T) {
	tr := &fakeTransport{handler: okResponse}
	c := newTestClient(t, tr, nil)

	chunks, err := c.CallBatch(context.Background(), nil, false)
	if err != nil || chunks != nil {
		t.Errorf("chunks = %v, err = %v; want nil, nil", chunks, err)
	}
}

func TestEncodeCommand(t *testing.T) {
	got := encodeCommand(Command{Method: "crm.lead.get", Params: map[string]any{"id": 7}})
	if got != "crm.lead.get?id=7" {
		t.Errorf("encoded = %q", got)
	}
	if got := encodeCommand(Command{Method: "profile"}); got != "profile" {
		t.Errorf("encoded = %q", got)
	}
}
