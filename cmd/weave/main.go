// cmd/weave/main.go
//
// Entry point for the weave binary. Running `weave` from a project directory
// initializes the .weave/ folder, reloads the document graph and any
// interrupted session, starts the decision bridge, and opens the TUI.
//
// Usage:
//
//	weave              resume the persisted session (or start a blank one)
//	weave <goal...>    start a new session with the given goal
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/weave/internal/bridge"
	"github.com/kingrea/weave/internal/config"
	"github.com/kingrea/weave/internal/content"
	"github.com/kingrea/weave/internal/graph"
	"github.com/kingrea/weave/internal/logbook"
	"github.com/kingrea/weave/internal/logging"
	"github.com/kingrea/weave/internal/proposal"
	"github.com/kingrea/weave/internal/relation"
	"github.com/kingrea/weave/internal/session"
	"github.com/kingrea/weave/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "weave: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	if err := config.InitWeaveDir(cwd); err != nil {
		return fmt.Errorf("initialize .weave directory: %w", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cwd)
	if err != nil {
		return err
	}
	defer logger.Close()

	book, err := logbook.New(cfg.LogbookPath())
	if err != nil {
		return err
	}

	store, err := graph.Load(cfg.GraphDir())
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	bodies := content.NewFSStore(cfg.ContentDir())

	aliases, err := relation.LoadAliases(cfg.RelationAliasPath())
	if err != nil {
		return fmt.Errorf("load relation aliases: %w", err)
	}
	matcher := relation.NewFuzzyMatcher(relation.WithAliases(aliases))

	gate := bridge.NewDecisionGate()
	engine, err := session.New(store, bodies, gate,
		session.NewRepository(cfg.StatePath()),
		session.WithLogbook(book),
		session.WithMatcher(matcher),
	)
	if err != nil {
		return err
	}

	goal := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if err := openSession(engine, goal); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := bridge.SettingsFromConfig(cfg)
	server := bridge.NewServer(settings, gate,
		bridge.WithDriver(sessionDriver{engine: engine}),
		bridge.WithLogger(logger),
	)
	if err := server.Start(ctx); err != nil {
		if !errors.Is(err, bridge.ErrServerDisabled) {
			return err
		}
		logger.Printf("bridge disabled, decisions come from the terminal only")
	} else {
		defer func() { _ = server.Shutdown(nil) }()
	}

	program := tea.NewProgram(
		tui.NewApp(engine, gate, book),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	// Persist the graph so the next run reloads the same documents and edges.
	if err := store.Save(cfg.GraphDir()); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// sessionDriver exposes the engine operations the bridge may invoke.
type sessionDriver struct {
	engine *session.Engine
}

func (d sessionDriver) Triage(complexity string) error {
	_, err := d.engine.Triage(session.Complexity(complexity))
	return err
}

func (d sessionDriver) Observe(text string) error {
	_, err := d.engine.Observe(text)
	return err
}

func (d sessionDriver) BuildPlan(requests []proposal.BuildRequest) error {
	_, err := d.engine.BuildPlan(requests)
	return err
}

func (d sessionDriver) Abort(reason string) error {
	_, err := d.engine.Abort(reason)
	return err
}

// openSession resumes the persisted session when one is still in flight,
// otherwise starts a fresh one with the given goal.
func openSession(engine *session.Engine, goal string) error {
	state, err := engine.Resume()
	switch {
	case errors.Is(err, session.ErrStateNotFound):
		// No prior session, start below.
	case err != nil:
		return err
	case !state.Phase.Terminal():
		if goal != "" && goal != state.Goal {
			return fmt.Errorf("session %s is still in %s phase, close or abort it before starting %q",
				state.SessionID, state.Phase, goal)
		}
		return nil
	}
	if goal == "" {
		goal = "revision session"
	}
	_, err = engine.Start(goal)
	return err
}
