package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/metrics"
	"github.com/giygas/medicaments-search/protocol"
	"github.com/giygas/medicaments-search/worker"
)

// fakeTransport records requests and lets the test answer them by hand
type fakeTransport struct {
	requests   chan protocol.Request
	responses  chan protocol.Response
	terminated chan struct{}
	stopOnce   sync.Once
	postErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		requests:   make(chan protocol.Request, 128),
		responses:  make(chan protocol.Response, 128),
		terminated: make(chan struct{}),
	}
}

func (f *fakeTransport) Post(req protocol.Request) error {
	if f.postErr != nil {
		return f.postErr
	}
	select {
	case <-f.terminated:
		return protocol.NewError(protocol.KindHostUnavailable, "terminated", nil)
	case f.requests <- req:
		return nil
	}
}

func (f *fakeTransport) Responses() <-chan protocol.Response {
	return f.responses
}

func (f *fakeTransport) Terminate() {
	f.stopOnce.Do(func() {
		close(f.terminated)
		close(f.responses)
	})
}

func (f *fakeTransport) next(t *testing.T) protocol.Request {
	t.Helper()
	select {
	case req := <-f.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("No request posted")
		return protocol.Request{}
	}
}

func testRecords() []entities.Medication {
	return []entities.Medication{
		{
			ID:                "1",
			Name:              "Doliprane 1000mg",
			GenericName:       "Paracétamol",
			Dosage:            "1000mg",
			Form:              "Comprimé",
			PPV:               19.5,
			ReimbursementRate: map[string]float64{"cnops": 70, "cnss": 70},
			SafetyLevel:       entities.SafetySafe,
		},
		{
			ID:                "2",
			Name:              "Amoxicilline 500mg",
			GenericName:       "Amoxicilline",
			Dosage:            "500mg",
			Form:              "Gélule",
			PPV:               42,
			ReimbursementRate: map[string]float64{"cnops": 80, "cnss": 0},
			SafetyLevel:       entities.SafetyWarning,
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientEndToEnd(t *testing.T) {
	client := Dial(worker.NewHost())
	defer client.Close()
	ctx := context.Background()

	result, err := client.Init(ctx, testRecords())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !result.Success || result.Count != 2 {
		t.Errorf("Expected {success:true count:2}, got %+v", result)
	}

	results, err := client.Search(ctx, "doli", entities.SearchFilters{InsuranceType: "cnops"}, 8)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Doliprane 1000mg" {
		t.Errorf("Expected only Doliprane 1000mg, got %+v", results)
	}

	results, err = client.Search(ctx, "xyz123", entities.SearchFilters{}, 8)
	if err != nil || results == nil || len(results) != 0 {
		t.Errorf("Expected an empty non-nil list, got %v (%v)", results, err)
	}

	rec, err := client.GetByID(ctx, "2")
	if err != nil || rec == nil || rec.Name != "Amoxicilline 500mg" {
		t.Errorf("Expected Amoxicilline 500mg, got %+v (%v)", rec, err)
	}

	rec, err = client.GetByID(ctx, "missing")
	if err != nil || rec != nil {
		t.Errorf("Expected nil for an unknown id, got %+v (%v)", rec, err)
	}

	stats, err := client.GetStats(ctx)
	if err != nil || stats.Total != 2 || stats.AvgPrice != 30.75 {
		t.Errorf("Unexpected stats %+v (%v)", stats, err)
	}

	if client.Pending() != 0 {
		t.Errorf("Expected no pending calls, got %d", client.Pending())
	}
}

func TestErrorKindsReachTheCaller(t *testing.T) {
	client := Dial(worker.NewHost())
	defer client.Close()

	_, err := client.Search(context.Background(), "doli", entities.SearchFilters{}, 8)
	if !errors.Is(err, protocol.ErrNotInitialized) {
		t.Fatalf("Expected ENGINE_NOT_INITIALIZED, got %v", err)
	}
	if !protocol.IsTransient(err) {
		t.Error("Expected not-initialized to be transient")
	}

	_, err = client.Init(context.Background(), nil)
	if !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Errorf("Expected MALFORMED_PAYLOAD for an empty INIT, got %v", err)
	}
}

func TestCorrelationIntegrityOutOfOrder(t *testing.T) {
	const n = 50
	transport := newFakeTransport()
	client := Dial(transport)
	defer client.Close()

	// Answer every request in reverse arrival order, echoing the query as the id
	go func() {
		reqs := make([]protocol.Request, 0, n)
		for len(reqs) < n {
			reqs = append(reqs, <-transport.requests)
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			var p protocol.SearchPayload
			_ = json.Unmarshal(reqs[i].Payload, &p)
			resp, _ := protocol.Succeed(reqs[i], []entities.Medication{{ID: p.Query}})
			transport.responses <- resp
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("query-%d", i)
			results, err := client.Search(context.Background(), query, entities.SearchFilters{}, 8)
			if err != nil {
				errs <- err
				return
			}
			if len(results) != 1 || results[0].ID != query {
				errs <- fmt.Errorf("caller %d got %+v", i, results)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if client.Pending() != 0 {
		t.Errorf("Expected no pending calls, got %d", client.Pending())
	}
}

func TestCorrelationIntegrityWithHost(t *testing.T) {
	client := Dial(worker.NewHost())
	defer client.Close()
	ctx := context.Background()

	if _, err := client.Init(ctx, testRecords()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			results, err := client.Search(ctx, "amoxi", entities.SearchFilters{}, 8)
			if err != nil || len(results) != 1 || results[0].ID != "2" {
				t.Errorf("Expected Amoxicilline, got %+v (%v)", results, err)
			}
		}()
		go func() {
			defer wg.Done()
			stats, err := client.GetStats(ctx)
			if err != nil || stats.Total != 2 {
				t.Errorf("Expected stats for 2 records, got %+v (%v)", stats, err)
			}
		}()
	}
	wg.Wait()
}

func TestTimeoutRemovesPendingCall(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport, WithTimeout(50*time.Millisecond))
	defer ch.Close()

	timeouts := metrics.RPCTotals.WithLabelValues(string(protocol.GetStats), metrics.OutcomeTimeout)
	timeoutsBefore := testutil.ToFloat64(timeouts)

	start := time.Now()
	err := ch.Send(context.Background(), protocol.GetStats, nil, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("Expected TIMEOUT, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("Expected to wait for the timeout, returned after %s", elapsed)
	}
	if ch.Pending() != 0 {
		t.Errorf("Expected the timed out call to be removed, %d pending", ch.Pending())
	}
	if got := testutil.ToFloat64(timeouts) - timeoutsBefore; got != 1 {
		t.Errorf("Expected 1 timeout counted, got %v", got)
	}

	// A late response is discarded as stale
	req := transport.next(t)
	staleBefore := testutil.ToFloat64(metrics.RPCStaleResponses)
	resp, _ := protocol.Succeed(req, entities.Stats{})
	transport.responses <- resp

	waitFor(t, func() bool {
		return testutil.ToFloat64(metrics.RPCStaleResponses)-staleBefore == 1
	})
}

func TestUnknownCorrelationIDIsDiscarded(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport)
	defer ch.Close()

	call := ch.Go(protocol.GetStats, nil)
	req := transport.next(t)

	transport.responses <- protocol.Response{Type: "GET_STATS_SUCCESS", CorrelationID: "from-a-previous-host", Payload: json.RawMessage(`{}`)}
	resp, _ := protocol.Succeed(req, entities.Stats{Total: 7})
	transport.responses <- resp

	done := <-call.Done
	if done.Error != nil {
		t.Fatalf("Expected success, got %v", done.Error)
	}
	var stats entities.Stats
	if err := json.Unmarshal(done.Payload, &stats); err != nil || stats.Total != 7 {
		t.Errorf("Expected the matching response, got %s", done.Payload)
	}
}

func TestContextCancellation(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, protocol.GetStats, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	if ch.Pending() != 0 {
		t.Errorf("Expected the cancelled call to be removed, %d pending", ch.Pending())
	}
}

func TestCloseRejectsPendingCalls(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport)

	calls := []*Call{ch.Go(protocol.GetStats, nil), ch.Go(protocol.Search, protocol.SearchPayload{Query: "doli"})}
	if ch.Pending() != 2 {
		t.Fatalf("Expected 2 pending calls, got %d", ch.Pending())
	}

	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}

	for _, call := range calls {
		select {
		case done := <-call.Done:
			if !errors.Is(done.Error, protocol.ErrHostUnavailable) {
				t.Errorf("Expected HOST_UNAVAILABLE, got %v", done.Error)
			}
		case <-time.After(time.Second):
			t.Fatal("Pending call was not rejected on close")
		}
	}

	err := ch.Send(context.Background(), protocol.GetStats, nil, nil)
	if !errors.Is(err, protocol.ErrHostUnavailable) {
		t.Errorf("Expected HOST_UNAVAILABLE after close, got %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got %v", err)
	}
}

func TestHostStopRejectsPendingCalls(t *testing.T) {
	transport := newFakeTransport()
	ch := NewChannel(transport)
	defer ch.Close()

	call := ch.Go(protocol.GetStats, nil)
	transport.next(t)
	transport.Terminate()

	done := <-call.Done
	if !errors.Is(done.Error, protocol.ErrHostUnavailable) {
		t.Errorf("Expected HOST_UNAVAILABLE, got %v", done.Error)
	}
}

func TestPostFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.postErr = errors.New("queue broken")
	ch := NewChannel(transport)
	defer ch.Close()

	err := ch.Send(context.Background(), protocol.GetStats, nil, nil)
	if !errors.Is(err, protocol.ErrHostUnavailable) {
		t.Errorf("Expected HOST_UNAVAILABLE, got %v", err)
	}
	if ch.Pending() != 0 {
		t.Errorf("Expected no pending calls, got %d", ch.Pending())
	}
}

func TestCorrelationIDsStayUnique(t *testing.T) {
	ids := []string{"a", "a", "b"}
	var mu sync.Mutex
	gen := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	transport := newFakeTransport()
	ch := NewChannel(transport, WithIDGenerator(gen))
	defer ch.Close()

	first := ch.Go(protocol.GetStats, nil)
	second := ch.Go(protocol.GetStats, nil)

	if first.CorrelationID != "a" || second.CorrelationID != "b" {
		t.Errorf("Expected ids a and b, got %s and %s", first.CorrelationID, second.CorrelationID)
	}
}

func TestDefaultCorrelationIDFormat(t *testing.T) {
	a, b := newCorrelationID(), newCorrelationID()
	if a == b {
		t.Error("Expected distinct correlation ids")
	}
	if len(a) < 38 {
		t.Errorf("Expected <nanos>-<uuid>, got %s", a)
	}
}

func TestUnencodablePayload(t *testing.T) {
	ch := NewChannel(newFakeTransport())
	defer ch.Close()

	err := ch.Send(context.Background(), protocol.Search, func() {}, nil)
	if !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Errorf("Expected MALFORMED_PAYLOAD, got %v", err)
	}
}

func TestSendReturnsWhenHostQueueIsFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	host := worker.NewHost(worker.WithBuffer(1), worker.WithCommandHook(func(req protocol.Request) bool {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return true
	}))
	ch := NewChannel(host, WithTimeout(50*time.Millisecond))
	defer ch.Close()
	defer close(release)

	// one command stuck in the host, one waiting in its queue
	ch.Go(protocol.GetStats, nil)
	<-entered
	ch.Go(protocol.GetStats, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(ctx, protocol.GetStats, nil, nil)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrHostUnavailable) {
			t.Errorf("Expected HOST_UNAVAILABLE, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send still blocked on a full host queue")
	}
}
