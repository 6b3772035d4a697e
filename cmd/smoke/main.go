package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"oversight.dev/internal/action"
	"oversight.dev/internal/approval"
	"oversight.dev/internal/client"
	"oversight.dev/internal/obs"
)

type check struct {
	name     string
	in       action.Descriptor
	decision action.Decision
	score    int
}

var checks = []check{
	{
		name:     "financial email",
		in:       action.Descriptor{Name: "send_email", Description: "send invoice to client", Reversible: action.Bool(false), Domain: "finance"},
		decision: action.DecisionBlock,
		score:    10,
	},
	{
		name:     "harmless read",
		in:       action.Descriptor{Name: "read_file", Description: "read today's notes", Reversible: action.Bool(true), Domain: "other"},
		decision: action.DecisionPass,
		score:    1,
	},
	{
		name:     "disk format override",
		in:       action.Descriptor{Name: "disk_cleanup", Description: "format the drive to free space", Domain: "filesystem"},
		decision: action.DecisionBlock,
		score:    3,
	},
	{
		name:     "irreversible delete",
		in:       action.Descriptor{Name: "delete_file", Description: "delete old report", Reversible: action.Bool(false), Domain: "filesystem"},
		decision: action.DecisionAwait,
		score:    8,
	},
}

func main() {
	log := obs.InitLogger(obs.LogConfig{Level: "info", Format: "console", Output: os.Stderr})

	base := os.Getenv("OVERSIGHT_SERVER")
	if base == "" {
		base = "http://localhost:8080"
	}
	c, err := client.New(base, client.WithToken(os.Getenv("OVERSIGHT_TOKEN")))
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var awaiting string
	for _, ch := range checks {
		ev, err := c.Evaluate(ctx, ch.in)
		if err != nil {
			log.Fatal().Err(err).Str("check", ch.name).Msg("evaluate")
		}
		if ev.Decision != ch.decision || ev.RiskScore != ch.score {
			log.Fatal().Str("check", ch.name).
				Str("decision", string(ev.Decision)).Int("score", ev.RiskScore).
				Str("want_decision", string(ch.decision)).Int("want_score", ch.score).
				Msg("unexpected evaluation")
		}
		if ev.Decision == action.DecisionAwait {
			awaiting = ev.ID
		}
	}

	res, err := c.Approve(ctx, awaiting, "smoke")
	if err != nil {
		log.Fatal().Err(err).Str("id", awaiting).Msg("approve")
	}
	if res.Status != approval.StatusApproved || res.AlreadyResolved {
		log.Fatal().Str("status", string(res.Status)).Bool("already", res.AlreadyResolved).Msg("unexpected approval result")
	}
	again, err := c.Deny(ctx, awaiting, "smoke")
	if err != nil {
		log.Fatal().Err(err).Msg("deny")
	}
	if !again.AlreadyResolved || again.Status != approval.StatusApproved {
		log.Fatal().Msg("second resolution changed a resolved request")
	}

	fmt.Printf("✅ gateway smoke test passed: %d checks, approval %s\n", len(checks), awaiting)
}
