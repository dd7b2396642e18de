package singleflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	g := New()
	var calls int32

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 10)
	sharedCount := int32(0)

	wg.Add(1)
	go func() {
		defer wg.Done()
		payload, err, _ := g.Do(context.Background(), "key", func() ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return []byte("owner result"), nil
		})
		if err != nil {
			t.Errorf("owner: %v", err)
		}
		results[0] = string(payload)
	}()

	<-started
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, err, shared := g.Do(context.Background(), "key", func() ([]byte, error) {
				atomic.AddInt32(&calls, 1)
				return []byte("duplicate result"), nil
			})
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
			}
			if shared {
				atomic.AddInt32(&sharedCount, 1)
			}
			results[i] = string(payload)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn invoked %d times, want 1", got)
	}
	for i, r := range results {
		if r != "owner result" {
			t.Errorf("caller %d got %q", i, r)
		}
	}
	if sharedCount != 9 {
		t.Errorf("shared reported by %d callers, want 9", sharedCount)
	}
}

func TestDoPropagatesError(t *testing.T) {
	g := New()
	wantErr := errors.New("upstream down")

	_, err, shared := g.Do(context.Background(), "key", func() ([]byte, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if shared {
		t.Error("sole caller reported shared")
	}
}

func TestDoWaiterCancellation(t *testing.T) {
	g := New()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go g.Do(context.Background(), "key", func() ([]byte, error) {
		close(started)
		<-release
		return []byte("late"), nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err, _ := g.Do(ctx, "key", func() ([]byte, error) { return nil, nil })
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not unblock")
	}
}

func TestForget(t *testing.T) {
	g := New()
	var calls int32

	fn := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("x"), nil
	}

	g.Do(context.Background(), "key", fn)
	g.Forget("key")
	g.Do(context.Background(), "key", fn)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fn invoked %d times after Forget, want 2", got)
	}
}
