package resilience_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/BizraInfo/go-resilience"
)

var _ = Describe("CircuitBreaker", func() {
	var (
		ctx    context.Context
		clock  *fakeClock
		logger *slog.Logger
		boom   error
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = newFakeClock()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Quiet during tests
		}))
		boom = errors.New("downstream error")
	})

	newBreaker := func(name string, opts ...resilience.CircuitBreakerOption) *resilience.CircuitBreaker[string] {
		base := []resilience.CircuitBreakerOption{
			resilience.WithThreshold(3),
			resilience.WithResetTimeout(100 * time.Millisecond),
			resilience.WithCircuitBreakerClock(clock),
			resilience.WithCircuitBreakerLogger(logger),
		}
		return resilience.NewCircuitBreaker[string](name, append(base, opts...)...)
	}

	failingOp := func(ctx context.Context) (string, error) {
		return "", boom
	}
	succeedingOp := func(ctx context.Context) (string, error) {
		return "ok", nil
	}

	Describe("closed state", func() {
		It("starts closed with zero counters", func() {
			cb := newBreaker("fresh")

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(0))
			Expect(snapshot.LastFailureTime.IsZero()).To(BeTrue())
		})

		It("passes results through and stays closed", func() {
			cb := newBreaker("healthy")

			v, err := cb.Execute(ctx, succeedingOp)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("ok"))
			Expect(cb.GetState().State).To(Equal(resilience.StateClosed))
		})

		It("counts consecutive failures and records the failure time", func() {
			cb := newBreaker("counting")

			_, err := cb.Execute(ctx, failingOp)
			Expect(err).To(MatchError(boom))
			_, _ = cb.Execute(ctx, failingOp)

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(2))
			Expect(snapshot.LastFailureTime).To(Equal(clock.Now()))
		})

		It("resets the failure count to zero on any success", func() {
			cb := newBreaker("recovering")

			_, _ = cb.Execute(ctx, failingOp)
			_, _ = cb.Execute(ctx, failingOp)
			_, _ = cb.Execute(ctx, succeedingOp)

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(0))
		})
	})

	Describe("opening", func() {
		It("opens after exactly threshold consecutive failures", func() {
			cb := newBreaker("tripping")

			_, _ = cb.Execute(ctx, failingOp)
			_, _ = cb.Execute(ctx, failingOp)
			Expect(cb.GetState().State).To(Equal(resilience.StateClosed))

			_, _ = cb.Execute(ctx, failingOp)
			Expect(cb.GetState().State).To(Equal(resilience.StateOpen))
			Expect(cb.GetState().FailureCount).To(Equal(3))
		})

		It("rejects immediately without invoking the operation while open", func() {
			cb := newBreaker("guarding")
			counter := &countingOp{body: failingOp}

			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, counter.op)
			}
			Expect(counter.calls()).To(Equal(3))

			_, err := cb.Execute(ctx, counter.op)
			Expect(err).To(HaveOccurred())
			Expect(resilience.IsCircuitOpen(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("Circuit breaker guarding is open"))

			// The counter stays flat.
			Expect(counter.calls()).To(Equal(3))
		})

		It("keeps rejecting until the reset timeout has elapsed", func() {
			cb := newBreaker("waiting")

			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, failingOp)
			}

			clock.Advance(99 * time.Millisecond)
			_, err := cb.Execute(ctx, succeedingOp)
			Expect(resilience.IsCircuitOpen(err)).To(BeTrue())
		})
	})

	Describe("half-open probing", func() {
		trip := func(cb *resilience.CircuitBreaker[string]) {
			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, failingOp)
			}
			Expect(cb.GetState().State).To(Equal(resilience.StateOpen))
		}

		It("closes again when the probe succeeds", func() {
			cb := newBreaker("probe-ok")
			trip(cb)

			clock.Advance(100 * time.Millisecond)
			v, err := cb.Execute(ctx, succeedingOp)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("ok"))

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(0))
		})

		It("reopens and refreshes the failure time when the probe fails", func() {
			cb := newBreaker("probe-fail")
			trip(cb)
			tripTime := cb.GetState().LastFailureTime

			clock.Advance(100 * time.Millisecond)
			_, err := cb.Execute(ctx, failingOp)
			Expect(err).To(MatchError(boom))

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateOpen))
			Expect(snapshot.LastFailureTime).To(Equal(tripTime.Add(100 * time.Millisecond)))

			// The refreshed failure time restarts the open period.
			clock.Advance(99 * time.Millisecond)
			_, err = cb.Execute(ctx, succeedingOp)
			Expect(resilience.IsCircuitOpen(err)).To(BeTrue())
		})

		It("lets exactly one probe through", func() {
			cb := newBreaker("single-probe")
			trip(cb)

			clock.Advance(100 * time.Millisecond)

			gate := make(chan struct{})
			probeDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(probeDone)
				v, err := cb.Execute(ctx, func(ctx context.Context) (string, error) {
					<-gate
					return "recovered", nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal("recovered"))
			}()

			// Wait until the probe is in flight, then try a second call.
			Eventually(func() resilience.CircuitBreakerState {
				return cb.GetState().State
			}).Should(Equal(resilience.StateHalfOpen))

			counter := &countingOp{body: succeedingOp}
			_, err := cb.Execute(ctx, counter.op)
			Expect(resilience.IsCircuitOpen(err)).To(BeTrue())
			Expect(errors.Is(err, resilience.ErrProbeInFlight)).To(BeTrue())
			Expect(counter.calls()).To(Equal(0))

			close(gate)
			Eventually(probeDone).Should(BeClosed())
			Expect(cb.GetState().State).To(Equal(resilience.StateClosed))
		})
	})

	Describe("per-call timeout guard", func() {
		It("counts a timed-out call as a failure", func() {
			cb := newBreaker("slowpoke", resilience.WithTimeout(50*time.Millisecond))

			done := make(chan struct{})
			var err error
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, err = cb.Execute(ctx, func(ctx context.Context) (string, error) {
					select {} // never settles
				})
			}()

			Eventually(clock.pending).Should(Equal(1))
			clock.Advance(50 * time.Millisecond)
			Eventually(done).Should(BeClosed())

			Expect(resilience.IsTimeout(err)).To(BeTrue())
			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(1))
		})

		It("opens on repeated timeouts like any other failure", func() {
			cb := newBreaker("deadline-trip", resilience.WithTimeout(50*time.Millisecond))

			for i := 0; i < 3; i++ {
				done := make(chan struct{})
				go func() {
					defer GinkgoRecover()
					defer close(done)
					_, _ = cb.Execute(ctx, func(ctx context.Context) (string, error) {
						select {}
					})
				}()
				Eventually(clock.pending).Should(BeNumerically(">=", 1))
				clock.Advance(50 * time.Millisecond)
				Eventually(done).Should(BeClosed())
			}

			Expect(cb.GetState().State).To(Equal(resilience.StateOpen))
		})
	})

	Describe("Reset", func() {
		It("unconditionally returns to a pristine closed state", func() {
			cb := newBreaker("operator-reset")
			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, failingOp)
			}
			Expect(cb.GetState().State).To(Equal(resilience.StateOpen))

			cb.Reset()

			snapshot := cb.GetState()
			Expect(snapshot.State).To(Equal(resilience.StateClosed))
			Expect(snapshot.FailureCount).To(Equal(0))
			Expect(snapshot.LastFailureTime.IsZero()).To(BeTrue())

			// Calls flow again immediately.
			v, err := cb.Execute(ctx, succeedingOp)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("ok"))
		})
	})

	Describe("state change notifications", func() {
		It("reports every transition with from and to states", func() {
			type change struct {
				name     string
				from, to resilience.CircuitBreakerState
			}
			var mu sync.Mutex
			var changes []change

			cb := newBreaker("observed",
				resilience.WithStateChangeHandler(func(name string, from, to resilience.CircuitBreakerState) {
					mu.Lock()
					changes = append(changes, change{name: name, from: from, to: to})
					mu.Unlock()
				}),
			)

			for i := 0; i < 3; i++ {
				_, _ = cb.Execute(ctx, failingOp)
			}
			clock.Advance(100 * time.Millisecond)
			_, _ = cb.Execute(ctx, succeedingOp)

			mu.Lock()
			defer mu.Unlock()
			Expect(changes).To(Equal([]change{
				{name: "observed", from: resilience.StateClosed, to: resilience.StateOpen},
				{name: "observed", from: resilience.StateOpen, to: resilience.StateHalfOpen},
				{name: "observed", from: resilience.StateHalfOpen, to: resilience.StateClosed},
			}))
		})
	})
})

var _ = Describe("CircuitBreakerRegistry", func() {
	var (
		ctx      context.Context
		clock    *fakeClock
		registry *resilience.CircuitBreakerRegistry[string]
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = newFakeClock()
		registry = resilience.NewCircuitBreakerRegistry[string](
			resilience.WithThreshold(2),
			resilience.WithCircuitBreakerClock(clock),
			resilience.WithCircuitBreakerLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))),
		)
	})

	It("creates a breaker on first use and reuses it afterwards", func() {
		first := registry.Get("payments")
		second := registry.Get("payments")
		Expect(first).To(BeIdenticalTo(second))
	})

	It("keeps state per name", func() {
		failing := func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		}

		payments := registry.Get("payments")
		search := registry.Get("search")

		_, _ = payments.Execute(ctx, failing)
		_, _ = payments.Execute(ctx, failing)

		Expect(payments.GetState().State).To(Equal(resilience.StateOpen))
		Expect(search.GetState().State).To(Equal(resilience.StateClosed))
	})

	It("lists the names it has created", func() {
		registry.Get("a")
		registry.Get("b")
		Expect(registry.Names()).To(ConsistOf("a", "b"))
	})

	It("resets every breaker at once", func() {
		failing := func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		}
		for _, name := range []string{"a", "b"} {
			cb := registry.Get(name)
			_, _ = cb.Execute(ctx, failing)
			_, _ = cb.Execute(ctx, failing)
			Expect(cb.GetState().State).To(Equal(resilience.StateOpen))
		}

		registry.ResetAll()

		for _, name := range []string{"a", "b"} {
			Expect(registry.Get(name).GetState().State).To(Equal(resilience.StateClosed))
		}
	})

	It("isolates breakers of the same name across registries", func() {
		failing := func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		}
		other := resilience.NewCircuitBreakerRegistry[string](
			resilience.WithThreshold(2),
			resilience.WithCircuitBreakerClock(clock),
		)

		cb := registry.Get("shared-name")
		_, _ = cb.Execute(ctx, failing)
		_, _ = cb.Execute(ctx, failing)
		Expect(cb.GetState().State).To(Equal(resilience.StateOpen))

		Expect(other.Get("shared-name").GetState().State).To(Equal(resilience.StateClosed))
	})
})
