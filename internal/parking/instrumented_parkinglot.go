package parking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parking-engine/internal/logging"
	"parking-engine/internal/telemetry"
)

type InstrumentedParkingLot struct {
	*ParkingLot
	telemetry *telemetry.Provider

	// Metrics
	allocationOperations metric.Int64Counter
	exitOperations       metric.Int64Counter
	occupancyGauge       metric.Int64UpDownCounter
	feesCollected        metric.Float64Counter
	operationDuration    metric.Float64Histogram
	totalSlotsGauge      metric.Int64UpDownCounter
}

func NewInstrumentedParkingLot(lot *ParkingLot, telemetry *telemetry.Provider) (*InstrumentedParkingLot, error) {
	meter := telemetry.Meter

	allocationOperations, err := meter.Int64Counter("allocation_operations_total",
		metric.WithDescription("Total number of slot allocation attempts"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	exitOperations, err := meter.Int64Counter("exit_operations_total",
		metric.WithDescription("Total number of exit operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64UpDownCounter("parking_lot_occupancy",
		metric.WithDescription("Current number of occupied parking slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	feesCollected, err := meter.Float64Counter("parking_fees_collected",
		metric.WithDescription("Total fees charged on exit, including re-entry fees"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of parking lot operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	totalSlotsGauge, err := meter.Int64UpDownCounter("parking_lot_total_slots",
		metric.WithDescription("Total number of parking slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	ipl := &InstrumentedParkingLot{
		ParkingLot:           lot,
		telemetry:            telemetry,
		allocationOperations: allocationOperations,
		exitOperations:       exitOperations,
		occupancyGauge:       occupancyGauge,
		feesCollected:        feesCollected,
		operationDuration:    operationDuration,
		totalSlotsGauge:      totalSlotsGauge,
	}

	totalSlotsGauge.Add(context.Background(), int64(lot.Capacity()))

	return ipl, nil
}

func (ipl *InstrumentedParkingLot) Tracer() trace.Tracer {
	return ipl.telemetry.Tracer
}

// outcome classifies an engine error for metric labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case IsInvariantViolation(err):
		return "invariant_violation"
	}
	if _, ok := IsDenied(err); ok {
		return "denied"
	}
	return "error"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	// Expected outcomes are not span failures.
	if IsInvariantViolation(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}

func (ipl *InstrumentedParkingLot) Allocate(ctx context.Context, req Request) (Allocation, error) {
	ctx, span := ipl.Tracer().Start(ctx, "parking_lot.allocate",
		trace.WithAttributes(
			attribute.String("vehicle.license_plate", req.Plate),
			attribute.String("vehicle.size", req.Size.String()),
			attribute.String("vehicle.tier", req.Tier.String()),
			attribute.Bool("vehicle.ev", req.IsEV),
		))
	defer span.End()

	start := time.Now()

	span.AddEvent("finding_available_slot")

	allocation, err := ipl.ParkingLot.Allocate(req)

	duration := time.Since(start).Seconds()

	status := outcome(err)
	labels := []attribute.KeyValue{
		attribute.String("operation", "allocate"),
		attribute.String("vehicle_size", req.Size.String()),
		attribute.String("customer_tier", req.Tier.String()),
		attribute.String("status", status),
	}

	if err != nil {
		recordSpanError(span, err)
		if reason, ok := IsDenied(err); ok {
			span.AddEvent("entry_denied", trace.WithAttributes(attribute.String("reason", reason)))
			logging.Info(ctx).Str("plate", req.Plate).Str("reason", reason).Msg("entry denied")
		}
		if IsInvariantViolation(err) {
			logging.Error(ctx).Err(err).Str("plate", req.Plate).Msg("allocation aborted")
		}
	} else {
		labels = append(labels, attribute.String("section", allocation.Section.String()))
		span.SetAttributes(
			attribute.String("allocated_slot_id", allocation.SlotID),
			attribute.String("ticket", allocation.Ticket),
		)
		span.AddEvent("slot_allocated", trace.WithAttributes(
			attribute.String("slot_id", allocation.SlotID),
			attribute.Int("level", allocation.Level),
		))
		ipl.occupancyGauge.Add(ctx, 1)
	}

	ipl.allocationOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ipl.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return allocation, err
}

func (ipl *InstrumentedParkingLot) ProcessExit(ctx context.Context, ticket string) (ExitResult, error) {
	ctx, span := ipl.Tracer().Start(ctx, "parking_lot.process_exit",
		trace.WithAttributes(
			attribute.String("ticket", ticket),
		))
	defer span.End()

	start := time.Now()

	span.AddEvent("releasing_slot")

	result, err := ipl.ParkingLot.ProcessExit(ticket)

	duration := time.Since(start).Seconds()

	labels := []attribute.KeyValue{
		attribute.String("operation", "process_exit"),
		attribute.String("status", outcome(err)),
	}

	if err != nil {
		recordSpanError(span, err)
	} else {
		labels = append(labels,
			attribute.String("vehicle_size", result.Size.String()),
			attribute.String("customer_tier", result.Tier.String()),
			attribute.Bool("overstay", result.Overstay),
		)
		span.SetAttributes(
			attribute.String("vehicle.license_plate", result.Plate),
			attribute.String("slot_id", result.SlotID),
			attribute.Float64("fee.base", result.BaseFee),
			attribute.Float64("fee.re_entry", result.ReEntryFee),
			attribute.Float64("fee.total", result.TotalFee),
		)
		span.AddEvent("slot_released")
		if result.Overstay {
			logging.Warn(ctx).
				Str("plate", result.Plate).
				Int("warnings", result.Warnings).
				Bool("suspended", result.Suspended).
				Msg("overstay warning issued")
		}
		ipl.occupancyGauge.Add(ctx, -1)
		ipl.feesCollected.Add(ctx, result.TotalFee, metric.WithAttributes(
			attribute.String("customer_tier", result.Tier.String()),
		))
	}

	ipl.exitOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ipl.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return result, err
}

func (ipl *InstrumentedParkingLot) ValidateEntry(ctx context.Context, req Request) error {
	_, span := ipl.Tracer().Start(ctx, "parking_lot.validate_entry",
		trace.WithAttributes(
			attribute.String("vehicle.license_plate", req.Plate),
			attribute.String("vehicle.size", req.Size.String()),
			attribute.String("vehicle.tier", req.Tier.String()),
		))
	defer span.End()

	err := ipl.ParkingLot.ValidateEntry(req)
	if err != nil {
		recordSpanError(span, err)
	} else {
		span.AddEvent("entry_allowed")
	}
	return err
}

func (ipl *InstrumentedParkingLot) Status(ctx context.Context) Status {
	ctx, span := ipl.Tracer().Start(ctx, "parking_lot.get_status")
	defer span.End()

	start := time.Now()

	span.AddEvent("retrieving_status")

	status := ipl.ParkingLot.Status()

	duration := time.Since(start).Seconds()

	span.SetAttributes(
		attribute.Int("occupied_slots_count", status.Occupied),
		attribute.Int("expired_slots_count", status.Expired),
		attribute.Int("total_capacity", status.TotalSlots),
	)

	labels := []attribute.KeyValue{
		attribute.String("operation", "get_status"),
		attribute.String("status", "success"),
	}

	ipl.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return status
}

func (ipl *InstrumentedParkingLot) FindByTicket(ctx context.Context, ticket string) (SlotInfo, error) {
	_, span := ipl.Tracer().Start(ctx, "parking_lot.find_by_ticket",
		trace.WithAttributes(
			attribute.String("ticket", ticket),
		))
	defer span.End()

	span.AddEvent("searching_by_ticket")

	info, err := ipl.ParkingLot.FindByTicket(ticket)
	if err != nil {
		span.AddEvent("ticket_not_found")
	} else {
		span.SetAttributes(attribute.String("found_slot_id", info.ID))
		span.AddEvent("ticket_found", trace.WithAttributes(
			attribute.String("slot_id", info.ID),
		))
	}

	return info, err
}

func (ipl *InstrumentedParkingLot) ExpiredSlots(ctx context.Context) []SlotInfo {
	_, span := ipl.Tracer().Start(ctx, "parking_lot.expired_slots")
	defer span.End()

	expired := ipl.ParkingLot.ExpiredSlots()
	span.SetAttributes(attribute.Int("expired_slots_count", len(expired)))
	return expired
}

func (ipl *InstrumentedParkingLot) Pass(ctx context.Context, plate string) PassStatus {
	_, span := ipl.Tracer().Start(ctx, "parking_lot.pass_lookup",
		trace.WithAttributes(
			attribute.String("vehicle.license_plate", plate),
		))
	defer span.End()

	status := ipl.ParkingLot.Pass(plate)
	span.SetAttributes(attribute.String("pass.state", string(status.State)))
	return status
}
