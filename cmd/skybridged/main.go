// Command skybridged is the Skybridge daemon: it loads configuration,
// wires every collaborator together, starts one orchestrator per
// discovered workspace, and serves the HTTP surface until signalled to
// stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/h4mn/skybridge/agentfacade"
	"github.com/h4mn/skybridge/config"
	"github.com/h4mn/skybridge/httpapi"
	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/metricsstore"
	"github.com/h4mn/skybridge/notification"
	"github.com/h4mn/skybridge/orchestrator"
	"github.com/h4mn/skybridge/signature"
	"github.com/h4mn/skybridge/snapshot"
	"github.com/h4mn/skybridge/webhookintake"
	"github.com/h4mn/skybridge/workspace"
	"github.com/h4mn/skybridge/worktree"
)

// shutdownGrace bounds how long in-flight work is given to wind down after
// a SIGINT/SIGTERM, per spec.md §5.
const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "skybridged:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := logger.LevelFromString(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.NewConsoleLogger(printerFor(cfg.LogFormat, os.Stdout), os.Exit)
	log.SetLevel(level)

	prompt, err := agentfacade.LoadSystemPrompt(cfg.SystemPromptPath)
	if err != nil {
		return fmt.Errorf("loading system prompt: %w", err)
	}

	metrics := metricsstore.New("skybridge")

	workspaces, err := buildWorkspaceRegistry(log, cfg, metrics)
	if err != nil {
		return fmt.Errorf("building workspace registry: %w", err)
	}
	defer workspaces.Close()

	worktrees := worktree.New(log, cfg.RepoPath, cfg.WorktreesBasePath)
	snapshots := snapshot.New(log, 30*time.Second)
	facade := agentfacade.New(log, agentfacade.Config{
		AgentBinary: cfg.AgentBinary,
		AgentArgs:   cfg.AgentArgs,
		AgentKind:   cfg.AgentKind,
		Prompt:      prompt,
	})
	verifier := signature.New(cfg.WebhookSecrets)
	intake := webhookintake.New(log, verifier, "resolve-issue")

	sink := notification.New(log, notification.NewLogChannel(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var orchestrators sync.WaitGroup
	for _, ws := range workspaces.All() {
		sink.Subscribe(ws.Bus)

		orch := orchestrator.New(log, ws, orchestrator.Config{
			Worktree: worktrees,
			Snapshot: snapshots,
			Facade:   facade,
			Autonomy: orchestrator.Development,
			BuildContext: func(job jobqueue.WebhookJob, worktreePath, branchName string) agentfacade.SpawnContext {
				return buildSpawnContext(job, worktreePath, branchName)
			},
		})
		orchestrators.Add(1)
		go func() {
			defer orchestrators.Done()
			orch.Run(ctx)
		}()

		log.Notice("skybridged: orchestrator running for workspace %s", ws.ID)
	}

	server := httpapi.New(cfg.HTTPAddr, httpapi.Config{
		Log:          log,
		Workspaces:   workspaces,
		Intake:       intake,
		Worktrees:    worktrees,
		Metrics:      metrics,
		DeletePasswd: cfg.WebUIDeletePassword,
		CORSOrigins:  cfg.CORSOrigins,
	})
	server.Start()

	<-ctx.Done()
	log.Notice("skybridged: shutdown signal received, draining up to %s", shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("skybridged: http server shutdown: %v", err)
	}

	drained := make(chan struct{})
	go func() {
		orchestrators.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("skybridged: orchestrators still running after %s", shutdownGrace)
	}

	return nil
}

// printerFor selects the log line printer per SKYBRIDGE_LOG_FORMAT: "json"
// for machine-parseable log aggregation, "text" (the default) for a
// terminal. config.Load already rejects any other value.
func printerFor(format string, w io.Writer) logger.Printer {
	if format == "json" {
		return logger.NewJSONPrinter(w)
	}
	return logger.NewTextPrinter(w)
}

// buildWorkspaceRegistry constructs the workspace.Registry from cfg's base
// paths, discovering every workspace present under WorkspacesBasePath.
func buildWorkspaceRegistry(log logger.Logger, cfg *config.Config, metrics *metricsstore.Registry) (*workspace.Registry, error) {
	return workspace.NewRegistry(log, workspace.Dependencies{
		QueueBasePath:           cfg.QueueBasePath,
		WorkspacesBasePath:      cfg.WorkspacesBasePath,
		LogsBasePath:            cfg.LogsBasePath,
		ProcessingRecoveryGrace: cfg.ProcessingRecoveryGrace,
		Metrics:                 metrics,
	})
}

// buildSpawnContext derives an agentfacade.SpawnContext from a job's parsed
// webhook payload. Issue/PR metadata lives under "issue" or "pull_request"
// in the normalized payload, mirroring the lookup orchestrator's
// externalIDFromParsed already does for deriving the external id.
func buildSpawnContext(job jobqueue.WebhookJob, worktreePath, branchName string) agentfacade.SpawnContext {
	var m map[string]any
	_ = json.Unmarshal(job.Event.Parsed, &m)

	var issueNumber, issueTitle, repoName string
	for _, key := range []string{"issue", "pull_request"} {
		sub, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		if n, ok := sub["number"].(float64); ok {
			issueNumber = fmt.Sprintf("%.0f", n)
		}
		if t, ok := sub["title"].(string); ok {
			issueTitle = t
		}
		break
	}
	if repo, ok := m["repository"].(map[string]any); ok {
		if name, ok := repo["full_name"].(string); ok {
			repoName = name
		} else if name, ok := repo["name"].(string); ok {
			repoName = name
		}
	}

	return agentfacade.SpawnContext{
		WorktreePath:  worktreePath,
		IssueNumber:   issueNumber,
		IssueTitle:    issueTitle,
		RepoName:      repoName,
		BranchName:    branchName,
		Skill:         job.Skill,
		CorrelationID: job.Event.CorrelationID,
	}
}
