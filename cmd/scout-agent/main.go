// ABOUTME: Example research agent on the plaza protocol client.
// ABOUTME: Rule-based policy: claim tasks whose requirements look like research.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/agoralabs/plaza/internal/client"
	"github.com/agoralabs/plaza/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "Plaza WebSocket URL")
	name := flag.String("name", "Scout", "Agent display name")
	wallet := flag.String("wallet", "scout-demo-wallet", "Payment address")
	flag.Parse()

	if err := run(*url, *name, *wallet); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(url, name, wallet string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	scout := &scoutPolicy{logger: logger}
	c := client.New(client.Config{
		Name:        name,
		Description: "Research and information gathering specialist. Excels at web research, data collection, and competitive analysis.",
		Capabilities: []string{
			"research", "web_search", "data_collection", "summarization",
		},
		Specializations: []string{
			"market_research", "competitive_analysis", "fact_checking",
		},
		Wallet:     wallet,
		Reputation: protocol.Reputation{SuccessRate: 100},
		PlazaURL:   url,
	}, scout, logger)
	scout.client = c

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	logger.Info("scout is in the plaza", "agent_id", c.ID())
	<-ctx.Done()
	return nil
}

// researchKeywords mark a task requirement as a match for this agent.
var researchKeywords = []string{"research", "analysis", "data", "search", "find"}

// scoutPolicy is the decision layer: everything the protocol client does not
// decide lives here.
type scoutPolicy struct {
	client.BaseHooks

	client *client.Client
	logger *slog.Logger

	mu   sync.Mutex
	busy bool
}

func (s *scoutPolicy) OnNewTask(task protocol.Task) {
	s.logger.Info("new task", "title", task.Title, "bounty", task.BountyAmount)

	if !isResearchTask(task) {
		return
	}
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy {
		return
	}

	conf := 0.8
	if err := s.client.SayInPlaza(
		fmt.Sprintf("I see task %q - this matches my research capabilities. Anyone else interested?", task.Title),
		&conf,
	); err != nil {
		s.logger.Warn("plaza message failed", "error", err)
	}

	// Give other agents a moment to object, then claim if still idle.
	go func() {
		time.Sleep(2 * time.Second)
		s.mu.Lock()
		busy := s.busy
		s.mu.Unlock()
		if busy {
			return
		}
		if err := s.client.ClaimTask(task.ID); err != nil {
			s.logger.Warn("claim failed", "task_id", task.ID, "error", err)
		}
	}()
}

func (s *scoutPolicy) OnTaskClaimed(info protocol.TaskClaimedPayload) {
	if info.AgentID != s.client.ID() {
		s.logger.Info("task claimed by another agent", "task_id", info.TaskID, "by", info.AgentName)
		return
	}

	s.mu.Lock()
	s.busy = true
	s.mu.Unlock()
	s.client.SetCurrentTask(&protocol.Task{ID: info.TaskID})

	s.logger.Info("claim won, starting research", "task_id", info.TaskID)
	conf := 0.9
	if err := s.client.SayInPlaza("I've claimed this task. Beginning research phase...", &conf); err != nil {
		s.logger.Warn("plaza message failed", "error", err)
	}
	if err := s.client.UpdateProgress(info.TaskID, protocol.TaskInProgress, 0, ""); err != nil {
		s.logger.Warn("progress update failed", "error", err)
	}
}

func (s *scoutPolicy) OnPlazaMessage(msg protocol.PlazaMessagePayload) {
	if msg.From != s.client.ID() {
		s.logger.Info("plaza", "from", msg.From, "content", msg.Content)
	}
}

func (s *scoutPolicy) OnDirectMessage(msg protocol.DirectMessagePayload) {
	s.logger.Info("direct message", "from", msg.From, "content", msg.Content)
}

func (s *scoutPolicy) OnCoordinationOpportunity(opp protocol.CoordinationOpportunityPayload) {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy || !capabilityMatch(opp.RequiredCapabilities) {
		return
	}
	conf := 0.85
	if err := s.client.SayInPlaza(
		fmt.Sprintf("I can assist with %q - my research capabilities match.", opp.Subtask),
		&conf,
	); err != nil {
		s.logger.Warn("plaza message failed", "error", err)
	}
}

func (s *scoutPolicy) OnWorkProgress(progress protocol.WorkProgressPayload) {
	s.logger.Info("work progress",
		"task_id", progress.TaskID,
		"status", progress.Status,
		"progress", progress.Progress,
	)
}

func isResearchTask(task protocol.Task) bool {
	for _, req := range task.Requirements {
		lower := strings.ToLower(req)
		for _, kw := range researchKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func capabilityMatch(required []string) bool {
	mine := map[string]bool{
		"research": true, "web_search": true, "data_collection": true, "summarization": true,
	}
	for _, cap := range required {
		if mine[cap] {
			return true
		}
	}
	return false
}
