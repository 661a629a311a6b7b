// Package main provides the melodeck entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/app/library"
	"github.com/melodeck/melodeck/internal/app/notify"
	"github.com/melodeck/melodeck/internal/app/player"
	"github.com/melodeck/melodeck/internal/app/queue"
	"github.com/melodeck/melodeck/internal/app/recommend"
	"github.com/melodeck/melodeck/internal/app/reporter"
	"github.com/melodeck/melodeck/internal/domain/track"
	"github.com/melodeck/melodeck/internal/infra/config"
	"github.com/melodeck/melodeck/internal/infra/logger"
	"github.com/melodeck/melodeck/internal/infra/spotify"
	"github.com/melodeck/melodeck/internal/infra/state"
)

var (
	app        = kingpin.New("melodeck", "melodeck playback queue engine")
	configPath = app.Flag("config", "Path to config file").Default("config/melodeck.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the player console (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger from command-line flags first so config loading
	// is already logged
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Config file log settings apply unless overridden on the command line
	if !*verbose && *logfile == "" {
		if err := logger.Init(logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}); err != nil {
			zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Create Spotify client (catalog + transport + played reporting)
	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
		Device:       cfg.Player.Device,
	})
	if err != nil {
		return fmt.Errorf("failed to create Spotify client: %w", err)
	}

	notifier := notify.NewManager()

	controller := player.NewController(player.Config{
		Queue: queue.Config{
			MaxLength:      cfg.Queue.MaxLength,
			TrimKeepBefore: cfg.Queue.TrimKeepBefore,
		},
		Reporter: reporter.Config{
			ReportDelay:       time.Duration(cfg.Reporting.ReportDelayMs) * time.Millisecond,
			PlayedNotifyDelay: time.Duration(cfg.Reporting.PlayedNotifyDelayMs) * time.Millisecond,
		},
		Volume: cfg.Player.Volume,
		Repeat: player.ParseRepeatMode(cfg.Player.Repeat),
	}, spotifyClient, spotifyClient, notifier)

	// Restore the previous session snapshot if present
	store := state.NewStore(cfg.State.Path)
	snap, ok, err := store.Load()
	if err != nil {
		zlog.Warn().Msgf("Failed to load state snapshot, starting fresh: %v", err)
	} else if ok {
		controller.Restore(snap)
		zlog.Info().Msgf("Restored session: tracks=%d current=%d", len(snap.UserTracks), snap.CurrentIndex)
	}

	// Recommendation feed
	if cfg.Recommendations.Enabled {
		chain, err := recommend.NewChainFromConfig(&cfg.Recommendations, spotifyClient)
		if err != nil {
			return fmt.Errorf("failed to create recommendation providers: %w", err)
		}
		feed := recommend.NewFeed(controller, chain, notifier, cfg.Recommendations)
		feed.Start(ctx)
		defer feed.Stop()
	}

	lib := library.NewService(spotifyClient, controller)

	// Console event subscriber
	subID := notifier.Subscribe(notify.StreamFunc(func(n notify.Notification) error {
		printNotification(n)
		return nil
	}))
	defer notifier.Unsubscribe(subID)

	// Read console commands until quit or EOF
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		console(ctx, controller, lib, spotifyClient, store)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-doneCh:
		zlog.Info().Msg("Console closed, shutting down...")
	}

	// Persist the session before stopping the transport
	if err := store.Save(controller.Snapshot()); err != nil {
		zlog.Error().Msgf("Failed to save state snapshot: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if controller.State() == player.StatePlaying {
		if err := controller.Pause(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to stop playback: %v", err)
		}
	}

	zlog.Info().Msg("Player stopped")
	return nil
}

// console runs the interactive command loop.
func console(ctx context.Context, c *player.Controller, lib *library.Service, catalog *spotify.Client, store *state.Store) {
	fmt.Println("melodeck console (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := execute(ctx, cmd, args, c, lib, catalog, store); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func execute(ctx context.Context, cmd string, args []string, c *player.Controller, lib *library.Service, catalog *spotify.Client, store *state.Store) error {
	switch cmd {
	case "play":
		if len(args) == 0 {
			return c.Play(ctx)
		}
		tracks, err := resolveTracks(ctx, catalog, args)
		if err != nil {
			return err
		}
		return c.PlayTracks(ctx, tracks)

	case "pause":
		return c.Pause(ctx)

	case "next":
		return c.Next(ctx)

	case "prev":
		return c.Previous(ctx)

	case "skip":
		index, err := parseIndex(args)
		if err != nil {
			return err
		}
		return c.SkipTo(ctx, index)

	case "add":
		tracks, err := resolveTracks(ctx, catalog, args)
		if err != nil {
			return err
		}
		c.AddToQueue(tracks, queue.AppendEnd)
		return nil

	case "playnext":
		tracks, err := resolveTracks(ctx, catalog, args)
		if err != nil {
			return err
		}
		c.PlayNext(tracks)
		return nil

	case "remove":
		index, err := parseIndex(args)
		if err != nil {
			return err
		}
		c.RemoveFromQueue(index)
		return nil

	case "move":
		if len(args) != 2 {
			return fmt.Errorf("usage: move <from> <to>")
		}
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		if !c.ReorderQueue(from, to) {
			return fmt.Errorf("cannot move entry %d to %d", from, to)
		}
		return nil

	case "clear":
		c.ClearQueue(ctx)
		return nil

	case "shuffle":
		if c.ToggleShuffle() {
			fmt.Println("Shuffle: on")
		} else {
			fmt.Println("Shuffle: off")
		}
		return nil

	case "shuffleall":
		return lib.ShuffleAllSongs(ctx)

	case "genre":
		if len(args) == 0 {
			return fmt.Errorf("usage: genre <name>")
		}
		return lib.ShuffleGenre(ctx, strings.Join(args, " "))

	case "artist":
		if len(args) != 1 {
			return fmt.Errorf("usage: artist <artist-id>")
		}
		return lib.ShuffleArtist(ctx, args[0])

	case "album":
		if len(args) != 1 {
			return fmt.Errorf("usage: album <album-id>")
		}
		return lib.PlayAlbum(ctx, args[0])

	case "repeat":
		if len(args) != 1 {
			return fmt.Errorf("usage: repeat <off|all|one>")
		}
		c.SetRepeat(player.ParseRepeatMode(args[0]))
		return nil

	case "volume":
		v, err := parseIndex(args)
		if err != nil {
			return err
		}
		return c.SetVolume(ctx, v)

	case "seek":
		sec, err := parseIndex(args)
		if err != nil {
			return err
		}
		return c.Seek(ctx, time.Duration(sec)*time.Second)

	case "queue", "list":
		printQueue(c)
		return nil

	case "status":
		printStatus(c)
		return nil

	case "refresh":
		id := c.CurrentTrackID()
		if id == "" {
			return fmt.Errorf("no current track to refresh")
		}
		t, err := catalog.FetchTrack(ctx, id)
		if err != nil {
			return err
		}
		if c.RefreshCurrentTrack(*t) {
			fmt.Printf("Refreshed: %s - %s\n", t.MainArtist(), t.Name)
		}
		return nil

	case "rescan":
		lib.InvalidateCache()
		fmt.Println("Library cache cleared, next shuffle refetches")
		return nil

	case "newsession":
		c.ResetSession()
		fmt.Printf("New session: %s\n", c.SessionID())
		return nil

	case "save":
		return store.Save(c.Snapshot())

	case "help":
		printHelp()
		return nil

	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
}

// resolveTracks fetches full track metadata for each ID, URI, or URL.
func resolveTracks(ctx context.Context, catalog *spotify.Client, ids []string) ([]track.Track, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one track id is required")
	}
	tracks := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		t, err := catalog.FetchTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *t)
	}
	return tracks, nil
}

func parseIndex(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one numeric argument")
	}
	return strconv.Atoi(args[0])
}

func printQueue(c *player.Controller) {
	entries := c.Entries()
	if len(entries) == 0 {
		fmt.Println("Queue is empty")
		return
	}
	current := c.CurrentIndex()
	for i, e := range entries {
		marker := "  "
		if i == current {
			marker = "> "
		}
		tag := ""
		if e.Source == track.SourceRecommendation {
			tag = " [recommended]"
		}
		fmt.Printf("%s%3d  %s - %s%s\n", marker, i, e.Track.MainArtist(), e.Track.Name, tag)
	}
}

func printStatus(c *player.Controller) {
	fmt.Printf("State: %s  Repeat: %s  Shuffle: %v  Volume: %d\n",
		c.State(), c.Repeat(), c.Shuffled(), c.Volume())
	if t := c.CurrentTrack(); t != nil {
		fmt.Printf("Current: %s - %s (%s)\n", t.Track.MainArtist(), t.Track.Name, t.Track.Duration.Round(time.Second))
	}
}

func printNotification(n notify.Notification) {
	switch n.Type {
	case notify.TypeTrackStarted:
		if n.Track != nil {
			fmt.Printf("\n♪ Now playing: %s - %s\n> ", n.Track.MainArtist(), n.Track.Name)
		}
	case notify.TypeTrackPlayed:
		if n.Track != nil {
			fmt.Printf("\n✓ Played: %s - %s\n> ", n.Track.MainArtist(), n.Track.Name)
		}
	case notify.TypePlaybackError:
		fmt.Printf("\n✗ Playback error: %s\n> ", n.Message)
	}
}

func printHelp() {
	fmt.Println(`Commands:
  play [id...]       Resume, or replace the queue with the given tracks
  pause              Pause playback
  next / prev        Skip forward / back
  skip <index>       Jump to a queue position
  add <id...>        Append tracks to the queue
  playnext <id...>   Insert tracks right after the current one
  remove <index>     Remove a queue entry
  move <from> <to>   Reorder a queue entry
  clear              Clear the queue and stop
  shuffle            Toggle shuffle
  shuffleall         Shuffle the whole library
  genre <name>       Shuffle a genre
  artist <id>        Shuffle an artist's top tracks
  album <id>         Replace the queue with an album, in order
  repeat <mode>      Set repeat mode (off, all, one)
  volume <0-100>     Set volume
  seek <seconds>     Seek within the current track
  queue              Show the queue
  status             Show playback state
  refresh            Refetch metadata for the current track
  rescan             Drop the cached library listing
  newsession         Start a fresh session (clears played reports)
  save               Save the session snapshot now
  quit               Save and exit`)
}
