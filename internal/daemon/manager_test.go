package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestManagerShutdownRunsHooksInReverseRegistrationOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := NewManager()

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownHook {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	mgr.RegisterShutdownHook("http-listener", record("http-listener"))
	mgr.RegisterShutdownHook("rtsp-runtime", record("rtsp-runtime"))
	mgr.RegisterShutdownHook("channels", record("channels"))
	mgr.RegisterShutdownHook("calendar-scheduler", record("calendar-scheduler"))

	require.NoError(t, mgr.Shutdown(context.Background()))
	require.Equal(t, []string{"calendar-scheduler", "channels", "rtsp-runtime", "http-listener"}, order)
}

func TestManagerShutdownRunsEveryHookEvenIfOneFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := NewManager()

	var ran []string
	mgr.RegisterShutdownHook("first", func(ctx context.Context) error {
		ran = append(ran, "first")
		return nil
	})
	mgr.RegisterShutdownHook("second", func(ctx context.Context) error {
		ran = append(ran, "second")
		return errors.New("boom")
	})
	mgr.RegisterShutdownHook("third", func(ctx context.Context) error {
		ran = append(ran, "third")
		return nil
	})

	err := mgr.Shutdown(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"third", "second", "first"}, ran)
}

func TestManagerShutdownBoundsEachHookByTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := NewManager()

	mgr.RegisterShutdownHook("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := mgr.Shutdown(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), hookTimeout+2*time.Second)
}

func TestManagerShutdownWithNoHooksIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := NewManager()
	require.NoError(t, mgr.Shutdown(context.Background()))
}
