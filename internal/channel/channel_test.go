package channel

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	ch := New(1)

	if err := ch.Send(ctx, 42); err != nil {
		t.Fatalf("Send: %v", err)
	}
	v, ok, err := ch.Receive(ctx)
	if err != nil || !ok || v != 42 {
		t.Fatalf("Receive = %v, %v, %v", v, ok, err)
	}
}

func TestMultiValueFIFO(t *testing.T) {
	ctx := context.Background()
	ch := New(0)

	for _, v := range []int{10, 20, 30} {
		if err := ch.Send(ctx, v); err != nil {
			t.Fatalf("Send(%d): %v", v, err)
		}
	}
	ch.Close()

	sum := 0
	var got []int
	for {
		v, ok, err := ch.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if !ok {
			break
		}
		sum += v.(int)
		got = append(got, v.(int))
	}
	if sum != 60 {
		t.Fatalf("sum = %d, want 60", sum)
	}
	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("received %v, want [10 20 30] in send order", got)
	}
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	ctx := context.Background()
	ch := New(0)

	var wg sync.WaitGroup
	wg.Add(1)
	var got any
	go func() {
		defer wg.Done()
		v, ok, err := ch.Receive(ctx)
		if err != nil || !ok {
			t.Errorf("Receive: %v, %v, %v", v, ok, err)
			return
		}
		got = v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := ch.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	wg.Wait()
	if got != "hello" {
		t.Fatalf("got = %v, want hello", got)
	}
}

func TestSendOnClosedFails(t *testing.T) {
	ch := New(0)
	ch.Close()
	if err := ch.Send(context.Background(), 1); err == nil {
		t.Fatal("Send on a closed channel should fail")
	}
}

func TestSendBlocksAtCapacity(t *testing.T) {
	ch := New(1)
	if err := ch.Send(context.Background(), 1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ch.Send(ctx, 2); err == nil {
		t.Fatal("Send should block and fail once ctx is cancelled while the channel is full")
	}
}

func TestReceiveOnClosedEmptyReturnsNotOK(t *testing.T) {
	ch := New(0)
	ch.Close()
	_, ok, err := ch.Receive(context.Background())
	if err != nil || ok {
		t.Fatalf("Receive on closed/empty = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}
