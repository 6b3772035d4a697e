package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"oversight.dev/internal/action"
	"oversight.dev/internal/client"
	"oversight.dev/internal/obs"
	"oversight.dev/internal/sim"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "Gateway base URL")
		workers  = flag.Int("workers", 4, "Concurrent agent count")
		duration = flag.Duration("duration", 2*time.Minute, "Duration of the simulation")
		seed     = flag.Int64("seed", 0, "Generator seed (0 picks one from the clock)")
		token    = flag.String("token", os.Getenv("OVERSIGHT_TOKEN"), "Operator token used with -resolve")
		resolve  = flag.Bool("resolve", false, "Approve or deny each awaiting action at random, as an operator would")
	)
	flag.Parse()
	log := obs.InitLogger(obs.LogConfig{Level: "info", Format: "console", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := client.New(*baseURL, client.WithToken(*token))
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}
	generator := sim.NewGenerator(*seed)

	log.Info().Str("base", *baseURL).Int("workers", *workers).Dur("duration", *duration).Msg("agent_sim_start")

	var (
		counter     sim.Counter
		failures    int64
		rateLimited int64
		resolved    int64
	)

	var wg sync.WaitGroup
	deadline := time.Now().Add(*duration)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) && ctx.Err() == nil {
				ev, err := c.Evaluate(ctx, generator.NextAction())
				if err != nil {
					atomic.AddInt64(&failures, 1)
					var apiErr *client.APIError
					if errors.As(err, &apiErr) && apiErr.Status == 429 {
						atomic.AddInt64(&rateLimited, 1)
						time.Sleep(250 * time.Millisecond)
						continue
					}
					if ctx.Err() == nil {
						log.Warn().Err(err).Int("worker", id).Msg("evaluate_failed")
						time.Sleep(200 * time.Millisecond)
					}
					continue
				}
				counter.Add(ev.Decision, ev.RiskScore)

				if *resolve && ev.Decision == action.DecisionAwait {
					if rnd.Intn(2) == 0 {
						_, err = c.Approve(ctx, ev.ID, "agentsim")
					} else {
						_, err = c.Deny(ctx, ev.ID, "agentsim")
					}
					if err != nil {
						log.Warn().Err(err).Str("id", ev.ID).Msg("resolve_failed")
					} else {
						atomic.AddInt64(&resolved, 1)
					}
				}
				time.Sleep(time.Duration(50+rnd.Intn(120)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	snap := counter.Snapshot()
	log.Info().
		Int("evaluated", snap.Total).
		Float64("mean_score", snap.MeanScore).
		Int("pass", snap.Decisions[action.DecisionPass]).
		Int("flag", snap.Decisions[action.DecisionFlag]).
		Int("await", snap.Decisions[action.DecisionAwait]).
		Int("block", snap.Decisions[action.DecisionBlock]).
		Int64("resolved", resolved).
		Int64("failed", failures).
		Int64("rate_limited", rateLimited).
		Msg("agent_sim_complete")

	summaryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if text, err := c.Summary(summaryCtx, 0); err == nil {
		os.Stdout.WriteString(text + "\n")
	}
}
