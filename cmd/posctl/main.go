package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/pkg/clients/posapi"
)

const usage = `usage: posctl [flags] <command> [args]

commands:
  bills                        list bills, newest first
  show <bill-id>               show one bill with its history
  status <bill-id>             show both print channels and whether the bill can change
  job <bill-id> <channel>      show the latest print job of one channel
  print <bill-id> <channel>    print on client or kitchen (requires -yes)
  edit-note <bill-id> <note>   replace the note of a bill

flags:
`

func main() {
	fs := flag.NewFlagSet("posctl", flag.ExitOnError)
	baseURL := fs.String("api", envOr("POS_API_URL", "http://localhost:8080"), "POS API base URL")
	actor := fs.String("actor", os.Getenv("POS_ACTOR"), "acting user sent as X-Actor")
	yes := fs.Bool("yes", false, "confirm a print")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	client := posapi.NewClient(posapi.Config{BaseURL: *baseURL, Actor: *actor, Timeout: *timeout})
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, args, *yes); err != nil {
		fmt.Fprintln(os.Stderr, "posctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *posapi.Client, args []string, confirm bool) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "bills":
		bills, err := client.ListBills(ctx)
		if err != nil {
			return err
		}
		for _, b := range bills {
			fmt.Printf("%s  %s  table %-6s %10d  %s\n", b.ID, b.Code, b.TableNumber, b.Total, b.CreatedAt.Format(time.RFC3339))
		}
		return nil

	case "show":
		if len(rest) != 1 {
			return fmt.Errorf("show takes a bill id")
		}
		bill, err := client.GetBill(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(bill)

	case "status":
		if len(rest) != 1 {
			return fmt.Errorf("status takes a bill id")
		}
		gate, err := client.Gate(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("client:  %s\nkitchen: %s\ncan edit or print: %t\n", gate.Client.Label, gate.Kitchen.Label, gate.CanMutate)
		return nil

	case "job":
		if len(rest) != 2 {
			return fmt.Errorf("job takes a bill id and a channel")
		}
		channel, err := models.ParseChannel(rest[1])
		if err != nil {
			return err
		}
		state, err := client.PrintStatus(ctx, rest[0], channel)
		if err != nil {
			return err
		}
		if state.JobID == "" {
			fmt.Printf("%s: %s\n", channel, state.Label)
			return nil
		}
		fmt.Printf("%s: %s (job %s, updated %s)\n", channel, state.Label, state.JobID, state.UpdatedAt.Format(time.RFC3339))
		return nil

	case "print":
		if len(rest) != 2 {
			return fmt.Errorf("print takes a bill id and a channel")
		}
		channel, err := models.ParseChannel(rest[1])
		if err != nil {
			return err
		}
		job, err := client.Print(ctx, rest[0], channel, confirm)
		if err != nil {
			return err
		}
		fmt.Printf("job %s submitted on %s (%s)\n", job.ID, channel, job.Status)
		return nil

	case "edit-note":
		if len(rest) != 2 {
			return fmt.Errorf("edit-note takes a bill id and the new note")
		}
		bill, err := client.GetBill(ctx, rest[0])
		if err != nil {
			return err
		}
		updated, err := client.EditBill(ctx, bill.ID, posapi.EditRequest{
			TableNumber: bill.TableNumber,
			Note:        rest[1],
			Foods:       bill.Foods,
		})
		if err != nil {
			return err
		}
		fmt.Printf("bill %s updated, %d revision(s)\n", updated.Code, updated.Revision())
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
