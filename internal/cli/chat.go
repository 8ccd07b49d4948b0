package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cbt-coach/internal/conversation"
	"cbt-coach/internal/platform/database"
)

var (
	chatDBPath    string
	chatSessionID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the coach in the terminal",
	Long: `chat runs a conversation on stdin/stdout against a local sqlite file
(cbt-coach.db unless --db is given). Pass --driver/--database-url to use
another store. Type /end to close the session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		root := cmd.Root().PersistentFlags()
		if !root.Changed("driver") && !root.Changed("database-url") {
			cfg.DatabaseDriver = database.DriverSQLite
			cfg.DatabaseURL = chatDBPath
		}
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
			return err
		}

		a, err := newApp(db)
		if err != nil {
			return err
		}
		defer a.service.Wait()

		out := cmd.OutOrStdout()
		var id uuid.UUID
		if chatSessionID != "" {
			if id, err = uuid.Parse(chatSessionID); err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
			sess, err := a.service.GetSession(ctx, id)
			if err != nil {
				return err
			}
			if n := len(sess.History); n > 0 {
				fmt.Fprintf(out, "coach> %s\n", sess.History[n-1].Content)
			}
		} else {
			res, err := a.service.StartSession(ctx, uuid.Nil)
			if err != nil {
				return err
			}
			id = res.Session.ID
			fmt.Fprintf(out, "session %s\n\ncoach> %s\n", id, res.Reply)
		}

		in := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "\nyou> ")
			if !in.Scan() {
				break
			}
			text := strings.TrimSpace(in.Text())
			if text == "" {
				continue
			}

			var res *conversation.TurnResult
			if text == "/end" {
				res, err = a.service.EndSession(ctx, id)
			} else {
				res, err = a.service.SendMessage(ctx, id, text)
			}
			var perr *conversation.PersistenceError
			if errors.As(err, &perr) {
				// One more attempt; the turn itself is not re-run.
				if rerr := a.service.RetryPersist(ctx, perr); rerr != nil {
					return rerr
				}
				res, err = perr.Result, nil
			}
			if res == nil {
				return err
			}
			if err != nil {
				logger.WarnContext(ctx, "turn completed with error", "error", err)
			}

			fmt.Fprintf(out, "\ncoach> %s\n", res.Reply)
			if res.ShouldEndSession {
				fmt.Fprintf(out, "\n[session %s, status %s]\n", id, res.Session.Status)
				return nil
			}
		}
		if err := in.Err(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatDBPath, "db", "cbt-coach.db", "sqlite database file")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session")
}
