package parking

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const shellTimeFormat = "2006-01-02 15:04"

// Shell is a line-oriented operator console over an instrumented lot.
type Shell struct {
	lot     *InstrumentedParkingLot
	scanner *bufio.Scanner
	out     io.Writer
}

func NewShell(lot *InstrumentedParkingLot, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		lot:     lot,
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

func (s *Shell) Run(ctx context.Context) {
	tracer := s.lot.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for ctx.Err() == nil {
		if !s.scanner.Scan() {
			break
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		// Create a new span for each command
		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))

		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) processCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	command := parts[0]
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("command.name", command))

	switch command {
	case "park":
		s.handlePark(ctx, parts)
	case "exit", "leave":
		s.handleExit(ctx, parts)
	case "status":
		s.handleStatus(ctx)
	case "ticket":
		s.handleTicket(ctx, parts)
	case "expired":
		s.handleExpired(ctx)
	case "pass":
		s.handlePass(ctx, parts)
	default:
		trace.SpanFromContext(ctx).AddEvent("unknown_command", trace.WithAttributes(
			attribute.String("unknown_command", command),
		))
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *Shell) handlePark(ctx context.Context, parts []string) {
	if len(parts) < 4 || len(parts) > 5 {
		s.printf("Usage: park <small|medium|large> <standard|member> <license_plate> [ev]\n")
		return
	}

	size, err := ParseSize(parts[1])
	if err != nil {
		s.printf("Invalid vehicle size: %s\n", parts[1])
		return
	}
	tier, err := ParseTier(parts[2])
	if err != nil {
		s.printf("Invalid customer type: %s\n", parts[2])
		return
	}
	isEV := len(parts) == 5 && strings.EqualFold(parts[4], "ev")
	if len(parts) == 5 && !isEV {
		s.printf("Unknown flag: %s\n", parts[4])
		return
	}

	allocation, err := s.lot.Allocate(ctx, Request{Size: size, Tier: tier, Plate: parts[3], IsEV: isEV})
	if err != nil {
		s.printError(err)
		return
	}

	s.printf("Allocated slot %s (level %d, %s section), ticket %s\n",
		allocation.SlotID, allocation.Level, allocation.Section, allocation.Ticket)
	if allocation.PassExpiry != nil {
		s.printf("Membership pass active until %s\n", allocation.PassExpiry.Format(shellTimeFormat))
	}
}

func (s *Shell) handleExit(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: exit <ticket>\n")
		return
	}

	result, err := s.lot.ProcessExit(ctx, strings.ToUpper(parts[1]))
	if err != nil {
		s.printError(err)
		return
	}

	s.printf("Slot %s is free\n", result.SlotID)
	s.printf("Duration: %.2f hours\n", result.DurationHours)
	s.printf("Base fee: %.2f\n", result.BaseFee)
	if result.ReEntryFee > 0 {
		s.printf("Re-entry fee: %.2f\n", result.ReEntryFee)
	}
	s.printf("Total: %.2f\n", result.TotalFee)
	if result.Overstay {
		s.printf("Overstay warning issued (%d total)\n", result.Warnings)
	}
	if result.Suspended {
		s.printf("License plate %s is suspended from future entry\n", result.Plate)
	}
}

func (s *Shell) handleStatus(ctx context.Context) {
	status := s.lot.Status(ctx)

	s.printf("Total: %d\tOccupied: %d\tAvailable: %d\tExpired: %d\n",
		status.TotalSlots, status.Occupied, status.Available, status.Expired)
	s.printf("Size\tStandard\tMember\tEV\n")
	for _, size := range Sizes {
		counts := status.Availability[size]
		s.printf("%s\t%d\t\t%d\t%d\n", size, counts[SectionStandard], counts[SectionMember], counts[SectionEV])
	}

	occupied := s.lot.OccupiedSlots()
	if len(occupied) == 0 {
		return
	}
	s.printf("Slot\tTicket\t\tLicense Plate\tSince\n")
	for _, slot := range occupied {
		s.printf("%s\t%s\t%s\t%s\n", slot.ID, slot.Ticket, slot.Plate, slot.AllocatedAt.Format(shellTimeFormat))
	}
}

func (s *Shell) handleTicket(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: ticket <ticket>\n")
		return
	}

	info, err := s.lot.FindByTicket(ctx, strings.ToUpper(parts[1]))
	if err != nil {
		s.printf("Not found\n")
		return
	}

	s.printf("%s (level %d, %s section) - %s since %s\n",
		info.ID, info.Level, info.Section, info.Plate, info.AllocatedAt.Format(shellTimeFormat))
}

func (s *Shell) handleExpired(ctx context.Context) {
	expired := s.lot.ExpiredSlots(ctx)
	if len(expired) == 0 {
		s.printf("No expired slots\n")
		return
	}

	now := s.lot.Now()
	for _, slot := range expired {
		s.printf("%s\t%s\t%s\tparked %s\n", slot.ID, slot.Ticket, slot.Plate,
			now.Sub(*slot.AllocatedAt).Truncate(time.Minute))
	}
}

func (s *Shell) handlePass(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: pass <license_plate>\n")
		return
	}

	pass := s.lot.Pass(ctx, parts[1])
	if pass.Expiry == nil {
		s.printf("No membership pass for %s\n", pass.Plate)
		return
	}
	s.printf("Membership pass for %s: %s (expires %s)\n", pass.Plate, pass.State, pass.Expiry.Format(shellTimeFormat))
}

func (s *Shell) printError(err error) {
	if reason, ok := IsDenied(err); ok {
		s.printf("Entry denied: %s\n", reason)
		return
	}
	switch {
	case errors.Is(err, ErrNotAvailable):
		s.printf("Sorry, no suitable slot available\n")
	case errors.Is(err, ErrNotFound):
		s.printf("Ticket not found\n")
	default:
		s.printf("Error: %s\n", err.Error())
	}
}
