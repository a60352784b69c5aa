package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/matheus3301/wpprelay/internal/chats"
	"github.com/matheus3301/wpprelay/internal/lock"
	"github.com/matheus3301/wpprelay/internal/paths"
	"github.com/matheus3301/wpprelay/internal/store"
	intsync "github.com/matheus3301/wpprelay/internal/sync"
	"github.com/matheus3301/wpprelay/internal/wa"
	"github.com/spf13/cobra"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replay a payload directory into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			if dir == "" {
				dir = e.cfg.PayloadsDir
			}
			records, err := wa.NewCorpus(dir, e.logger).Records()
			if err != nil {
				return err
			}
			engine := intsync.NewEngine(e.store, nil, nil, e.logger)
			res, err := engine.Apply(cmd.Context(), records)
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, duplicates %d, statuses matched %d, unmatched %d\n",
				len(res.Inserted), res.Duplicates, res.Matched, res.Unmatched)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Payload directory (default from config).")
	return cmd
}

func newMessagesCmd(g *globalFlags) *cobra.Command {
	var (
		name    string
		asJSON  bool
		contact string
	)
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List stored messages by author name or contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			msgs, err := e.store.Find(cmd.Context(), store.Filter{ContactName: name, ContactID: contact})
			if err != nil {
				return err
			}
			chats.SortThread(msgs)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCONTACT\tNAME\tSTATUS\tTEXT")
			for _, m := range msgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ProviderID, m.ContactID, m.ContactName, m.Status, m.Text.Body)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Only messages with this author name.")
	cmd.Flags().StringVar(&contact, "wa-id", "", "Only messages in this conversation.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON.")
	return cmd
}

func newMarkReadCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "mark-read",
		Short: "Mark the latest message by an author as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			e, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			msgs, err := e.store.Find(cmd.Context(), store.Filter{ContactName: name})
			if err != nil {
				return err
			}
			latest, ok := latestMessage(msgs)
			if !ok {
				return fmt.Errorf("no messages from %q", name)
			}
			matched, err := e.store.UpdateOne(cmd.Context(),
				store.Filter{ProviderID: latest.ProviderID}, store.Patch{Status: store.StatusRead})
			if err != nil {
				return err
			}
			if !matched {
				return fmt.Errorf("message %s disappeared", latest.ProviderID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %s as read\n", latest.ProviderID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Author name.")
	return cmd
}

// latestMessage returns the message with the greatest timestamp. Ties keep
// the earlier entry.
func latestMessage(msgs []store.Message) (store.Message, bool) {
	if len(msgs) == 0 {
		return store.Message{}, false
	}
	best := msgs[0]
	for _, m := range msgs[1:] {
		if m.Timestamp > best.Timestamp {
			best = m
		}
	}
	return best, true
}

func newPingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the store and whether a daemon holds the instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "instance: %s\n", e.instance)
			fmt.Fprintf(out, "store:    %s ", e.cfg.Store.Driver)
			if err := e.store.Ping(cmd.Context()); err != nil {
				fmt.Fprintf(out, "(unreachable: %v)\n", err)
			} else {
				fmt.Fprintln(out, "(connected)")
			}

			pid, held, err := lock.Holder(paths.Dir(e.instance))
			switch {
			case err != nil:
				fmt.Fprintf(out, "daemon:   unknown (%v)\n", err)
			case held:
				fmt.Fprintf(out, "daemon:   running (pid %d)\n", pid)
			default:
				fmt.Fprintln(out, "daemon:   not running")
			}
			return nil
		},
	}
}
