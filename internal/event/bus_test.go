package event_test

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HerbHall/ipscope/internal/event"
	"github.com/HerbHall/ipscope/internal/inventory"
	"github.com/HerbHall/ipscope/internal/probe"
	"github.com/HerbHall/ipscope/internal/recon"
	"github.com/HerbHall/ipscope/internal/services"
	"github.com/HerbHall/ipscope/internal/sweep"
	"github.com/HerbHall/ipscope/internal/testutil"
	"github.com/HerbHall/ipscope/pkg/models"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

func deviceCreated(ip string) plugin.Event {
	d := testutil.NewDevice(testutil.WithIP(ip))
	return plugin.Event{
		Topic:     inventory.TopicDeviceCreated,
		Source:    "inventory",
		Timestamp: testutil.Epoch,
		Payload:   &d,
	}
}

func TestPublish_DeliversToTopicSubscribers(t *testing.T) {
	bus := event.NewBus(testutil.Logger(t))
	var got []string

	bus.Subscribe(inventory.TopicDeviceCreated, func(_ context.Context, e plugin.Event) {
		got = append(got, e.Payload.(*models.Device).IPAddress)
	})
	bus.Subscribe(inventory.TopicDeviceDeleted, func(context.Context, plugin.Event) {
		t.Error("device.deleted subscriber received a device.created event")
	})

	for _, ip := range []string{"192.168.1.10", "192.168.1.11"} {
		if err := bus.Publish(context.Background(), deviceCreated(ip)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	// Publish is synchronous: both deliveries happened in order.
	if want := []string{"192.168.1.10", "192.168.1.11"}; !slices.Equal(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
}

func TestSubscribeAll_SeesEveryModule(t *testing.T) {
	bus := event.NewBus(testutil.Logger(t))
	var topics []string
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		topics = append(topics, e.Source+":"+e.Topic)
	})

	ctx := context.Background()
	_ = bus.Publish(ctx, deviceCreated("10.0.0.7"))
	_ = bus.Publish(ctx, plugin.Event{Topic: recon.TopicScanStarted, Source: "recon"})

	want := []string{"inventory:" + inventory.TopicDeviceCreated, "recon:" + recon.TopicScanStarted}
	if !slices.Equal(topics, want) {
		t.Errorf("wildcard saw %v, want %v", topics, want)
	}
}

func TestUnsubscribe_StopsDeliveryOnlyForThatHandler(t *testing.T) {
	bus := event.NewBus(testutil.Logger(t))
	var topicCalls, allCalls, keptCalls int32

	unsubTopic := bus.Subscribe(recon.TopicScanCompleted, func(context.Context, plugin.Event) {
		atomic.AddInt32(&topicCalls, 1)
	})
	unsubAll := bus.SubscribeAll(func(context.Context, plugin.Event) {
		atomic.AddInt32(&allCalls, 1)
	})
	bus.Subscribe(recon.TopicScanCompleted, func(context.Context, plugin.Event) {
		atomic.AddInt32(&keptCalls, 1)
	})

	completed := plugin.Event{Topic: recon.TopicScanCompleted, Payload: recon.ScanCompletedEvent{ScanID: "s1"}}
	_ = bus.Publish(context.Background(), completed)
	unsubTopic()
	unsubAll()
	unsubTopic() // second call is a no-op
	_ = bus.Publish(context.Background(), completed)

	if topicCalls != 1 || allCalls != 1 {
		t.Errorf("after unsubscribe: topic=%d all=%d, want 1 and 1", topicCalls, allCalls)
	}
	if keptCalls != 2 {
		t.Errorf("remaining subscriber called %d times, want 2", keptCalls)
	}
}

func TestHandlerPanic_OtherSubscribersStillRun(t *testing.T) {
	bus := event.NewBus(testutil.Logger(t))
	var added int32

	bus.Subscribe(recon.TopicDeviceAdded, func(context.Context, plugin.Event) {
		panic("broken subscriber")
	})
	bus.Subscribe(recon.TopicDeviceAdded, func(_ context.Context, e plugin.Event) {
		if e.Payload.(recon.DeviceAddedEvent).IP == "192.168.1.77" {
			atomic.AddInt32(&added, 1)
		}
	})

	err := bus.Publish(context.Background(), plugin.Event{
		Topic:   recon.TopicDeviceAdded,
		Payload: recon.DeviceAddedEvent{DeviceID: "d1", IP: "192.168.1.77", Name: "camera"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if added != 1 {
		t.Errorf("healthy subscriber called %d times, want 1", added)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := event.NewBus(nil)
	if err := bus.Publish(context.Background(), deviceCreated("10.0.0.1")); err != nil {
		t.Fatalf("Publish() with no subscribers error = %v", err)
	}
	bus.PublishAsync(context.Background(), deviceCreated("10.0.0.2"))
}

// liveHosts answers as reachable for a fixed set of addresses.
type liveHosts map[string]bool

func (liveHosts) Method() string { return "table" }

func (l liveHosts) Probe(_ context.Context, addr string, _ time.Duration) probe.Outcome {
	if l[addr] {
		lat := 1.0
		return probe.Outcome{Address: addr, Reachable: true, LatencyMs: &lat}
	}
	return probe.Outcome{Address: addr, Error: probe.ErrorTimeout}
}

// A scan publishes asynchronously; subscribers on the real bus receive the
// started, discovered and completed events of that scan.
func TestScanEventsReachSubscribers(t *testing.T) {
	db := testutil.NewInventoryStore(t)
	subnets := services.NewSQLiteSubnetRepository(db.DB())
	devices := services.NewSQLiteDeviceRepository(db.DB())
	ctx := context.Background()

	sn := testutil.NewSubnet(testutil.WithCIDR("10.20.0.0/29"))
	if err := subnets.Create(ctx, &sn); err != nil {
		t.Fatalf("create subnet: %v", err)
	}
	router := testutil.NewDevice(testutil.InSubnet(sn.ID), testutil.WithIP("10.20.0.1"), testutil.WithName("router"))
	if err := devices.Create(ctx, &router); err != nil {
		t.Fatalf("create device: %v", err)
	}

	bus := event.NewBus(testutil.Logger(t))
	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		discovered []string
		completed  recon.ScanCompletedEvent
		started    int
	)
	// started + two new hosts + completed.
	wg.Add(4)
	bus.Subscribe(recon.TopicScanStarted, func(context.Context, plugin.Event) {
		defer wg.Done()
		mu.Lock()
		started++
		mu.Unlock()
	})
	bus.Subscribe(recon.TopicDeviceDiscovered, func(_ context.Context, e plugin.Event) {
		defer wg.Done()
		mu.Lock()
		discovered = append(discovered, e.Payload.(recon.DeviceDiscoveredEvent).IP)
		mu.Unlock()
	})
	bus.Subscribe(recon.TopicScanCompleted, func(_ context.Context, e plugin.Event) {
		defer wg.Done()
		mu.Lock()
		completed = e.Payload.(recon.ScanCompletedEvent)
		mu.Unlock()
	})

	prober := liveHosts{"10.20.0.1": true, "10.20.0.3": true, "10.20.0.6": true}
	rec := recon.NewReconciler(
		recon.NewStoreInventory(subnets, devices),
		sweep.New(prober, nil, nil),
		recon.DefaultConfig(),
		bus,
		testutil.Logger(t),
	)
	report, err := rec.ScanSubnet(ctx, sn.ID, sn.CIDR, 4, time.Second)
	if err != nil {
		t.Fatalf("ScanSubnet: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan events")
	}

	mu.Lock()
	defer mu.Unlock()
	slices.Sort(discovered)
	if want := []string{"10.20.0.3", "10.20.0.6"}; !slices.Equal(discovered, want) {
		t.Errorf("discovered = %v, want %v", discovered, want)
	}
	if started != 1 || completed.ScanID != report.ScanID || completed.Online != 3 || completed.New != 2 {
		t.Errorf("started=%d completed=%+v, want one start and the report's counts", started, completed)
	}
}
