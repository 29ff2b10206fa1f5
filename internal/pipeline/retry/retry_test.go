package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/events"
)

func retryableErr() *classify.Error {
	return &classify.Error{Code: "CONNECTION_RESET", Retryable: true}
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	o := NewOrchestrator(nil)
	calls := 0
	result, err := o.Execute(context.Background(), "crm.lead.list", func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}, 3, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result != "ok" || calls != 1 {
		t.Errorf("result = %v, calls = %d; want ok and 1", result, calls)
	}
}

func TestExecute_NonRetryableSingleAttempt(t *testing.T) {
	o := NewOrchestrator(nil)
	calls := 0
	_, err := o.Execute(context.Background(), "crm.lead.add", func(ctx context.Context) (any, error) {
		calls++
		return nil, classify.Validation("bad fields")
	}, 3, 5*time.Millisecond)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if classify.CodeOf(err) != classify.CodeValidation {
		t.Errorf("error code = %s, want %s", classify.CodeOf(err), classify.CodeValidation)
	}
}

func TestExecute_RetryableUntilExhausted(t *testing.T) {
	o := NewOrchestrator(nil)
	calls := 0
	_, err := o.Execute(context.Background(), "crm.lead.list", func(ctx context.Context) (any, error) {
		calls++
		return nil, retryableErr()
	}, 2, time.Millisecond)

	if calls != 3 {
		t.Errorf("calls = %d, want 1 initial + 2 retries", calls)
	}
	if classify.CodeOf(err) != "CONNECTION_RESET" {
		t.Errorf("exhaustion should surface the last classified error, got %v", err)
	}
}

func TestExecute_RetryableRecovers(t *testing.T) {
	o := NewOrchestrator(nil)
	calls := 0
	result, err := o.Execute(context.Background(), "crm.lead.list", func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, retryableErr()
		}
		return 42, nil
	}, 3, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if result != 42 || calls != 3 {
		t.Errorf("result = %v, calls = %d; want 42 and 3", result, calls)
	}
}

func TestExecute_AuthEscalationRetriesImmediately(t *testing.T) {
	var escalations int
	hooks := &events.Hooks{
		OnAuthRequired: func(err error) { escalations++ },
	}
	o := NewOrchestrator(hooks)

	calls := 0
	start := time.Now()
	result, err := o.Execute(context.Background(), "crm.lead.list", func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, &classify.Error{Code: classify.CodeExpiredToken, AuthRequired: true}
		}
		return "ok", nil
	}, 3, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if result != "ok" || calls != 2 {
		t.Errorf("result = %v, calls = %d; want ok and 2", result, calls)
	}
	if escalations != 1 {
		t.Errorf("auth hook fired %d times, want 1", escalations)
	}
	// No pacing delay on the auth path, the fallback delay is a full second.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("auth retry waited %v, want immediate", elapsed)
	}
}

func TestExecute_UncanonicalErrorNotRetried(t *testing.T) {
	o := NewOrchestrator(nil)
	calls := 0
	_, err := o.Execute(context.Background(), "crm.lead.list", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("something odd")
	}, 3, time.Millisecond)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if classify.CodeOf(err) != classify.CodeTransport {
		t.Errorf("error code = %s, want %s", classify.CodeOf(err), classify.CodeTransport)
	}
}

func TestExecute_ContextCancelledDuringDelay(t *testing.T) {
	o := NewOrchestrator(nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := o.Execute(ctx, "crm.lead.list", func(ctx context.Context) (any, error) {
			calls++
			return nil, retryableErr()
		}, 5, time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
