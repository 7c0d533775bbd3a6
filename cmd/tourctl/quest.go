package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/playperu/campustour/internal/database"
	"github.com/playperu/campustour/internal/kv"
	"github.com/playperu/campustour/internal/migrations"
	"github.com/playperu/campustour/internal/quest"
)

// progressTTL bounds how long an idle visitor's quest state stays in Redis.
const progressTTL = 90 * 24 * time.Hour

func (c *cli) questCmd() *cobra.Command {
	var (
		visitor string
		reset   bool
	)
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Play the quest in the terminal",
		Long: "Asks the quest questions in order and scores the attempt at the end.\n" +
			"Progress is saved after every answer, so an interrupted quest resumes.\n" +
			"Answer with an option number or its text; type \"reset\" to abandon the attempt.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := c.openKV(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			bank := c.gateway().LoadQuestBank(ctx)
			e, err := quest.New(ctx, bank, kv.Prefixed{Store: store, Prefix: visitor + ":"}, c.logger, c.cfg.Tuning.Quest())
			if err != nil {
				return err
			}
			defer e.Close()

			if reset {
				if err := e.Reset(ctx); err != nil {
					return err
				}
			}
			return playQuest(ctx, e, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&visitor, "visitor", "local", "name progress and history are stored under")
	cmd.Flags().BoolVar(&reset, "restart", false, "abandon any saved attempt first")
	return cmd
}

// openKV returns Redis storage when REDIS_URL is set, else the SQLite
// database at DB_PATH.
func (c *cli) openKV(ctx context.Context) (kv.Store, func(), error) {
	if c.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(c.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("pinging redis: %w", err)
		}
		return kv.NewRedis(client, "campustour:", progressTTL), func() { client.Close() }, nil
	}

	db, err := database.Open(ctx, c.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	if err := migrations.Run(ctx, db, c.logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return kv.NewSQLite(db), func() { db.Close() }, nil
}

func playQuest(ctx context.Context, e *quest.Engine, in io.Reader, out io.Writer) error {
	if st := e.Status(); st.Phase == quest.InProgress {
		fmt.Fprintf(out, "Resuming at question %d (%s elapsed)\n", st.Index+1, quest.FormatElapsed(st.Elapsed))
	} else if err := e.Start(ctx); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	for {
		st := e.Status()
		if st.Phase != quest.InProgress {
			break
		}
		q := st.Current
		fmt.Fprintf(out, "\n%s  [%s]\n%s\n", q.Key, quest.FormatElapsed(st.Elapsed), q.Question.Question)
		if q.Acknowledge() {
			fmt.Fprint(out, "(enter to continue) ")
		} else {
			for i, o := range q.Options {
				fmt.Fprintf(out, "  %d) %s\n", i+1, o)
			}
			fmt.Fprint(out, "> ")
		}

		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			fmt.Fprintln(out, "\nProgress saved.")
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "reset" {
			if err := e.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Quest abandoned.")
			return nil
		}

		var err error
		if q.Acknowledge() {
			err = e.Acknowledge(ctx)
		} else {
			err = e.Submit(ctx, pickOption(q.Options, line))
		}
		if err != nil {
			return err
		}
	}

	res, _ := e.Result()
	fmt.Fprintf(out, "\nQuest complete: %d/%d correct in %s\n", res.Correct, res.Total, quest.FormatElapsed(res.Time))
	fmt.Fprintln(out, "Recent attempts:")
	for _, h := range e.History() {
		fmt.Fprintf(out, "  %s  %d/%d  %s\n", h.Date.Local().Format(time.DateTime), h.Correct, h.Total, quest.FormatElapsed(h.Time))
	}
	return nil
}

// pickOption maps "2" to the second option; anything else is the answer as
// typed.
func pickOption(options []string, line string) string {
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return line
}
