package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/rpg-bot/internal/executor"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
)

// PlaygroundURL is the page a shared gist opens in.
const PlaygroundURL = "https://play.rust-lang.org/"

// Replacements applied to the text shown for a refused share.
const (
	compileFailureLine = "could not compile `playground`"
	shareRefusedLine   = "Source code cannot be shared"
)

// Outcome is what a run or share produced for the chat.
type Outcome struct {
	// Text is the output or the playground URL, ready to display.
	Text string
	// CompileFailed is set when the snippet did not build. Nothing is stored
	// for such snippets and no keyboard is attached.
	CompileFailed bool
}

// ExecutionService sends snippets to the executor and charges attempts.
type ExecutionService struct {
	exec   executor.Executor
	users  *UserService
	logger *slog.Logger
}

func NewExecutionService(exec executor.Executor, users *UserService, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		exec:   exec,
		users:  users,
		logger: logger,
	}
}

// Run compiles and runs source. Output is stderr followed by stdout, with
// the playground's absolute paths shortened.
func (s *ExecutionService) Run(ctx context.Context, user *model.User, source string, opts Options) (*Outcome, error) {
	res, err := s.execute(ctx, user, "run", source, opts)
	if err != nil {
		return nil, err
	}

	text := strings.ReplaceAll(res.Stderr, "/playground", "playground") + "\n" + res.Stdout
	return &Outcome{Text: text, CompileFailed: res.CompileFailed()}, nil
}

// Share builds source first and, when it compiles, publishes it as a gist
// and returns the playground URL opening it.
func (s *ExecutionService) Share(ctx context.Context, user *model.User, source string, opts Options) (*Outcome, error) {
	res, err := s.execute(ctx, user, "share", source, opts)
	if err != nil {
		return nil, err
	}

	if res.CompileFailed() {
		text := strings.ReplaceAll(res.Stderr, compileFailureLine, shareRefusedLine)
		text = strings.ReplaceAll(text, "/playground", "playground")
		return &Outcome{Text: text, CompileFailed: true}, nil
	}

	id, err := s.exec.Share(ctx, source)
	if err != nil {
		s.logger.Error("failed to create gist", slog.String("error", err.Error()))
		return nil, fmt.Errorf("sharing: %w", err)
	}
	return &Outcome{Text: ShareURL(opts, id)}, nil
}

// ShareURL is the playground link for gist id with the given options.
func ShareURL(opts Options, id string) string {
	return fmt.Sprintf("%s?version=%s&mode=%s&edition=%s&gist=%s", PlaygroundURL,
		url.QueryEscape(opts.Version),
		url.QueryEscape(opts.Mode),
		url.QueryEscape(opts.Edition),
		url.QueryEscape(id),
	)
}

// execute makes the remote call. Every call made costs the user one
// attempt, whether or not the snippet compiled and whether or not the
// executor answered; only the charge failing is logged, not returned.
func (s *ExecutionService) execute(ctx context.Context, user *model.User, operation, source string, opts Options) (*executor.Result, error) {
	res, execErr := s.exec.Execute(ctx, executor.Request{
		Code:    source,
		Channel: opts.Version,
		Mode:    opts.Mode,
		Edition: opts.Edition,
	})

	if err := s.users.ChargeAttempt(ctx, user); err != nil {
		s.logger.Error("failed to charge attempt",
			slog.String("telegram_id", user.TelegramID),
			slog.String("error", err.Error()),
		)
	}

	if execErr != nil {
		metrics.Executions.WithLabelValues(operation, "error").Inc()
		s.logger.Warn("remote execution failed",
			slog.String("operation", operation),
			slog.String("error", execErr.Error()),
		)
		return nil, fmt.Errorf("executing snippet: %w", execErr)
	}

	outcome := "ok"
	if res.CompileFailed() {
		outcome = "compile_error"
	}
	metrics.Executions.WithLabelValues(operation, outcome).Inc()
	metrics.ExecutionDuration.WithLabelValues(operation).Observe(res.Duration.Seconds())

	s.logger.Info("snippet executed",
		slog.String("operation", operation),
		slog.String("telegram_id", user.TelegramID),
		slog.String("outcome", outcome),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}
