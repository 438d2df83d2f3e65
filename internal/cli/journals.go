// journals.go implements the "stillpoint journals" history commands.
package cli

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stillpoint/stillpoint/internal/api"
	"github.com/stillpoint/stillpoint/internal/coach"
	"github.com/stillpoint/stillpoint/internal/config"
)

var journalsCmd = &cobra.Command{
	Use:   "journals",
	Short: "List persisted session journals",
	RunE:  runJournalsList,
}

var journalsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one journal with its guidance timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalsShow,
}

func init() {
	journalsCmd.AddCommand(journalsShowCmd)
}

func newServiceClient() (*api.Client, error) {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}
	return api.NewClient(cfg.BaseURL, cfg.ParsedRequestTimeout()), nil
}

func runJournalsList(cmd *cobra.Command, args []string) error {
	client, err := newServiceClient()
	if err != nil {
		return err
	}

	journals, err := client.ListJournals(cmd.Context())
	if err != nil {
		return err
	}
	if len(journals) == 0 {
		fmt.Println("No journals yet. Record a session with: stillpoint record")
		return nil
	}

	for _, entry := range journals {
		fmt.Printf("%s  %s  %s\n",
			entry.SessionID,
			entry.GeneratedAt.Local().Format("2006-01-02 15:04"),
			firstLine(entry.Entry))
	}
	return nil
}

func runJournalsShow(cmd *cobra.Command, args []string) error {
	client, err := newServiceClient()
	if err != nil {
		return err
	}

	detail, err := client.GetJournal(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (%s)\n\n", detail.SessionID, detail.GeneratedAt.Local().Format("2006-01-02 15:04"))
	fmt.Println(detail.Entry)
	if len(detail.Tips) > 0 {
		fmt.Println()
		fmt.Println("Tips:")
		for i, tip := range detail.Tips {
			fmt.Printf("  %d. %s\n", i+1, tip)
		}
	}
	if len(detail.Events) > 0 {
		fmt.Println()
		fmt.Println("Timeline:")
		for _, ev := range detail.Events {
			printTimelineEvent(ev)
		}
	}
	return nil
}

func printTimelineEvent(ev coach.GuidanceEvent) {
	label := "coach"
	if ev.Kind == coach.KindResponse {
		label = "  you"
	}
	fmt.Printf("  %s  %s: %s\n", ev.CreatedAt.Local().Format(time.Kitchen), label, ev.Text)
}

func firstLine(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if len(line) > 72 {
		line = line[:69] + "..."
	}
	return line
}
