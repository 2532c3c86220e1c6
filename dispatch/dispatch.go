// dispatch.go - Zeitbegrenzte Aufrufe auf einem begrenzten Worker-Pool
//
// Dieses Modul enthaelt:
// - Executor: Worker-Pool mit fester Slot-Anzahl und austauschbarer Uhr
// - Future: Handle auf einen laufenden Aufruf mit AwaitWithDeadline
// - Submit/Call: Startet einen Aufruf (und wartet optional mit Deadline)
// - ErrTransportTimeout: Deadline ueberschritten, Ergebnis wird verworfen
//
// Ein Worker, dessen Deadline abgelaufen ist, wird nicht beendet. Sein
// Kontext wird abgebrochen und ein spaeteres Ergebnis geht verloren.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTransportTimeout wird zurueckgegeben, wenn ein Aufruf seine Deadline ueberschreitet
var ErrTransportTimeout = errors.New("dispatch: transport timeout")

// Clock liefert Zeit und Timer, in Tests durch eine steuerbare Uhr ersetzt
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock ist die Systemuhr
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Executor fuehrt Aufrufe auf hoechstens N gleichzeitigen Workern aus
type Executor struct {
	slots   *semaphore.Weighted
	workers int
	clock   Clock
}

// NewExecutor erzeugt einen Pool mit workers Slots (mindestens 1).
// Ist clock nil, wird RealClock verwendet.
func NewExecutor(workers int, clock Clock) *Executor {
	workers = max(workers, 1)
	if clock == nil {
		clock = RealClock{}
	}
	return &Executor{
		slots:   semaphore.NewWeighted(int64(workers)),
		workers: workers,
		clock:   clock,
	}
}

// Workers gibt die Pool-Groesse zurueck
func (e *Executor) Workers() int {
	return e.workers
}

// Clock gibt die Uhr des Executors zurueck
func (e *Executor) Clock() Clock {
	return e.clock
}

// Future ist das Handle auf einen einzelnen Aufruf
type Future[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	clock  Clock
	done   chan struct{}

	// nur nach close(done) lesen
	value T
	err   error
}

// Submit startet fn auf einem Worker des Pools. Das Warten auf einen freien
// Slot geschieht bereits im Hintergrund und zaehlt gegen die Deadline von
// AwaitWithDeadline.
func Submit[T any](ctx context.Context, ex *Executor, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{
		ctx:    ctx,
		cancel: cancel,
		clock:  ex.clock,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(f.done)

		if err := ex.slots.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("worker slot: %w", err)
			return
		}
		defer ex.slots.Release(1)

		defer func() {
			if r := recover(); r != nil {
				slog.Error("dispatch worker panicked", "panic", r)
				f.err = fmt.Errorf("worker panic: %v", r)
			}
		}()

		f.value, f.err = fn(ctx)
	}()

	return f
}

// AwaitWithDeadline wartet hoechstens d auf das Ergebnis. Laeuft die Deadline
// vorher ab, wird der Worker aufgegeben und ErrTransportTimeout zurueckgegeben.
// d <= 0 wartet ohne Deadline.
func (f *Future[T]) AwaitWithDeadline(d time.Duration) (T, error) {
	var timeout <-chan time.Time
	if d > 0 {
		timeout = f.clock.After(d)
	}

	select {
	case <-f.done:
		f.cancel()
		return f.value, f.err
	case <-timeout:
		f.cancel()
		var zero T
		return zero, fmt.Errorf("%w after %v", ErrTransportTimeout, d)
	case <-f.ctx.Done():
		// Aufrufer hat abgebrochen, ein fertiges Ergebnis hat trotzdem Vorrang
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		var zero T
		return zero, f.ctx.Err()
	}
}

// Done ist geschlossen, sobald der Worker zurueckgekehrt ist
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Call ist Submit gefolgt von AwaitWithDeadline
func Call[T any](ctx context.Context, ex *Executor, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, ex, fn).AwaitWithDeadline(d)
}
