package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/worker"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cbtctl",
		Short:         "Operator tooling for the ExStem CBT service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(issueTokenCmd(), scoreCmd(), sweepCmd())
	return root
}

// ─── issue-token ──────────────────────────────────────────────────────

func issueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a session token for a student, teacher or admin",
		RunE:  runIssueToken,
	}
	f := cmd.Flags()
	f.Int("id", 0, "Principal id (required)")
	f.String("role", string(model.RoleStudent), "Role (student, teacher, admin)")
	f.Int("homebase", 0, "Homebase id of the principal")
	f.Duration("expiry", 0, "Token lifetime (defaults to JWT_EXPIRY)")
	f.Bool("prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runIssueToken(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	f := cmd.Flags()

	id, _ := f.GetInt("id")
	roleName, _ := f.GetString("role")
	homebase, _ := f.GetInt("homebase")
	expiry, _ := f.GetDuration("expiry")
	prompt, _ := f.GetBool("prompt-secret")

	role := model.Role(strings.ToLower(roleName))
	switch role {
	case model.RoleStudent, model.RoleTeacher, model.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", roleName)
	}
	if id < 1 {
		return fmt.Errorf("id must be positive")
	}

	secret := cfg.JWTSecret
	if prompt {
		fmt.Fprint(os.Stderr, "Signing secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
		if secret == "" {
			return fmt.Errorf("secret is required")
		}
	}
	if expiry <= 0 {
		expiry = cfg.JWTExpiry
	}

	token, err := service.NewAuthService(secret, expiry).IssueToken(model.Principal{
		ID:         id,
		Role:       role,
		HomebaseID: homebase,
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// ─── score ────────────────────────────────────────────────────────────

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Recompute and print the scores of an exam as JSON",
		RunE:  runScore,
	}
	cmd.Flags().String("exam", "", "Exam id (required)")
	_ = cmd.MarkFlagRequired("exam")
	return cmd
}

func runScore(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("exam")
	examID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid exam id: %w", err)
	}

	return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
		exam, err := s.papers.Exam(ctx, examID)
		if err != nil {
			return err
		}
		scores, err := s.scoring.ScoreExam(ctx, exam)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scores)
	})
}

// ─── sweep ────────────────────────────────────────────────────────────

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close working sessions whose duration has run out",
		RunE:  runSweep,
	}
	cmd.Flags().Duration("grace", 0, "Extra time past the exam duration (defaults to EXPIRY_GRACE)")
	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	grace, _ := cmd.Flags().GetDuration("grace")

	return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
		if grace <= 0 {
			grace = s.cfg.ExpiryGrace
		}
		n := worker.NewExpirySweeper(s.sessions, time.Minute, grace, s.log).Sweep(ctx)
		fmt.Printf("Closed %d session(s)\n", n)
		return nil
	})
}

// ─── shared wiring ────────────────────────────────────────────────────

type services struct {
	cfg      *config.Config
	log      zerolog.Logger
	papers   *service.PaperService
	scoring  *service.ScoringService
	sessions *service.ExamSessionService
}

// withServices connects to PostgreSQL and builds the services the commands
// need. Redis is not required: the paper cache and event publisher are off.
func withServices(parent context.Context, fn func(ctx context.Context, s *services) error) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := config.Load()
	// Logs go to stderr so stdout stays machine-readable.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(parseLevel(cfg.LogLevel)).
		With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	attendanceRepo := repository.NewAttendanceRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	papers := service.NewPaperService(repository.NewExamRepository(pool), repository.NewQuestionRepository(pool), nil, log)

	return fn(ctx, &services{
		cfg:     cfg,
		log:     log,
		papers:  papers,
		scoring: service.NewScoringService(papers, attendanceRepo, answerRepo, log),
		sessions: service.NewExamSessionService(papers, repository.NewStudentRepository(pool),
			attendanceRepo, answerRepo, nil, nil, log),
	})
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
