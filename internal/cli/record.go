// record.go implements the "stillpoint record" command running one full
// session end to end.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"

	"github.com/stillpoint/stillpoint/internal/api"
	"github.com/stillpoint/stillpoint/internal/audio"
	"github.com/stillpoint/stillpoint/internal/coach"
	"github.com/stillpoint/stillpoint/internal/config"
	"github.com/stillpoint/stillpoint/internal/journal"
	"github.com/stillpoint/stillpoint/internal/session"
	"github.com/stillpoint/stillpoint/internal/stream"
	"github.com/stillpoint/stillpoint/internal/timer"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run one guided recording session",
	Long: `Start a session, stream microphone audio to the service, print
guidance events as they arrive, and show the journal summary when the
session completes. The session ends automatically when its time is up;
press Enter to finish early.`,
	RunE: runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	client := api.NewClient(cfg.BaseURL, cfg.ParsedRequestTimeout())

	cache, err := journal.OpenCache(cfg.CachePath())
	if err != nil {
		return fmt.Errorf("open summary cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize audio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	var src audio.Source
	sampleRate := cfg.MicSampleRate
	for _, rate := range cfg.SampleRateCandidates() {
		mic, micErr := audio.NewMic(rate, rate/10)
		if micErr != nil {
			log.Printf("warning: microphone open failed at %d Hz: %v", rate, micErr)
			continue
		}
		src = mic
		sampleRate = rate
		break
	}
	if src == nil {
		return errors.New("no usable microphone")
	}

	pipeline := audio.NewPipeline(src, sampleRate, cfg.ParsedChunkInterval())
	consumer := stream.NewConsumer(client.EventsURL)
	countdown := timer.New(cfg.ParsedFrameInterval())
	hub := session.NewHub()

	orch := session.NewOrchestrator(client, pipeline, consumer, countdown, cache, hub, cfg.ParsedSessionDuration())
	orch.Rehydrate()

	changes := hub.Subscribe()
	defer hub.Unsubscribe(changes)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Begin(ctx); err != nil {
		return err
	}
	fmt.Printf("Session %s started (%s). Press Enter to finish early.\n", orch.SessionID(), cfg.ParsedSessionDuration())

	go func() {
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		_ = orch.Complete(context.Background())
	}()
	go func() {
		<-ctx.Done()
		_ = orch.Complete(context.Background())
	}()

	for {
		select {
		case change := <-changes:
			renderChange(change, countdown)
		case <-orch.Done():
			drainChanges(changes, countdown)
			return printOutcome(orch)
		}
	}
}

func renderChange(change session.Change, countdown *timer.Countdown) {
	switch change.Kind {
	case session.ChangeEvent:
		if change.Event != nil {
			renderEvent(*change.Event, countdown.Remaining())
		}
	case session.ChangePhase:
		if change.Phase == session.PhaseCompleted {
			fmt.Println("\nSession complete, generating your journal...")
		}
	case session.ChangeError:
		fmt.Fprintf(os.Stderr, "error: %s\n", change.Message)
	}
}

func renderEvent(ev coach.GuidanceEvent, remaining time.Duration) {
	label := "coach"
	if ev.Kind == coach.KindResponse {
		label = "  you"
	}
	fmt.Printf("[%s remaining] %s: %s\n", remaining.Round(time.Second), label, ev.Text)
}

// drainChanges flushes changes already queued when the session finished so
// late events and the summary notification still render.
func drainChanges(changes chan session.Change, countdown *timer.Countdown) {
	for {
		select {
		case change := <-changes:
			renderChange(change, countdown)
		default:
			return
		}
	}
}

func printOutcome(orch *session.Orchestrator) error {
	if msg := orch.LastError(); msg != "" {
		return errors.New(msg)
	}

	summary, ok := orch.DisplaySummary()
	if !ok {
		return errors.New("session finished without a summary")
	}

	fmt.Println()
	fmt.Println(summary.Entry)
	if len(summary.Tips) > 0 {
		fmt.Println()
		fmt.Println("Tips:")
		for i, tip := range summary.Tips {
			fmt.Printf("  %d. %s\n", i+1, tip)
		}
	}
	return nil
}
