package parking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	testclock "k8s.io/utils/clock/testing"

	"parking-engine/internal/telemetry"
)

// 06:00 keeps tests clear of the default peak windows.
var baseTime = time.Date(2025, time.November, 13, 6, 0, 0, 0, time.UTC)

func newTestLot(t *testing.T, opts ...Option) (*ParkingLot, *testclock.FakeClock) {
	t.Helper()

	clk := testclock.NewFakeClock(baseTime)
	lot, err := NewParkingLot(DefaultRules(), append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return lot, clk
}

type testTelemetry struct {
	provider *telemetry.Provider
	spans    *tracetest.InMemoryExporter
	reader   *sdkmetric.ManualReader
}

func newTestTelemetry(t *testing.T) *testTelemetry {
	t.Helper()

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	provider := telemetry.New(tp, mp, "parking-test")
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	return &testTelemetry{provider: provider, spans: spans, reader: reader}
}

func newInstrumentedLot(t *testing.T, lot *ParkingLot) (*InstrumentedParkingLot, *testTelemetry) {
	t.Helper()

	tel := newTestTelemetry(t)
	ipl, err := NewInstrumentedParkingLot(lot, tel.provider)
	require.NoError(t, err)
	return ipl, tel
}

func fixedTickets(tickets ...string) func() string {
	i := 0
	return func() string {
		ticket := tickets[i%len(tickets)]
		i++
		return ticket
	}
}
