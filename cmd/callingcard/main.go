/*
Command callingcard is a terminal Calling Card client.

It signs in with a name and email address, joins a vicinity on the Nearby discovery
service, and lets the user broadcast their card, discover nearby cards and save them.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"callingcard/internal/app/callingcard"
	"callingcard/internal/app/session"
	"callingcard/internal/app/storage"
	"callingcard/internal/app/user"
	"callingcard/internal/configs"
	"callingcard/internal/pkg/logx"
	"callingcard/internal/pkg/randx"
)

const usage = `Commands:
  pub on|off     broadcast your card
  sub on|off     look for nearby cards
  list           show saved and nearby cards
  pick n1|s1     save a nearby card or delete a saved one
  signout        sign out and quit
  quit           quit`

func main() {
	_ = godotenv.Load()

	cfg, err := configs.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Calling Card server URL")
	flag.StringVar(&cfg.Vicinity, "vicinity", cfg.Vicinity, `vicinity code to join, or "new" for a random one`)
	flag.StringVar(&cfg.Name, "name", cfg.Name, "your name")
	flag.StringVar(&cfg.Email, "email", cfg.Email, "your email address")
	flag.StringVar(&cfg.PhotoURL, "photo", cfg.PhotoURL, "URL of your profile photo")
	photoFile := flag.String("upload-photo", "", "image file to upload as your profile photo")
	verbose := flag.Bool("v", false, "debug logging")
	flag.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "lifetime of publications and subscriptions")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logx.InitWithOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, level)

	if err := run(cfg, *photoFile, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *configs.ClientConfig, photoFile string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Vicinity == "new" {
		code, err := randx.VicinityCode()
		if err != nil {
			return err
		}
		cfg.Vicinity = code
	}
	if !randx.IsValidVicinity(cfg.Vicinity) {
		return fmt.Errorf("invalid vicinity code %q", cfg.Vicinity)
	}

	prompts := newPrompter(out)
	view := newTerminalView(out, prompts)
	loop := callingcard.NewLoop()
	go loop.Run(ctx)
	defer loop.Stop()

	api := session.NewAPI(cfg.ServerURL, nil)

	card, signInErr := signIn(ctx, api, cfg, photoFile)

	auth := session.NewAuth(api)
	nearbySession := session.New(session.Config{
		ServerURL: cfg.ServerURL,
		Vicinity:  cfg.Vicinity,
		Token:     api.Token,
	})

	resolver := &consentResolver{
		prompts: prompts,
		record: func(accept bool) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return api.SetNearbyConsent(ctx, accept)
		},
	}

	controller, err := callingcard.NewController(loop, view, nearbySession, auth, resolver, api, callingcard.Options{
		Card: card,
		TTL:  cfg.TTL,
	})
	if err != nil {
		return err
	}
	nearbySession.SetConnectionCallbacks(controller)

	if signInErr == nil {
		auth.MarkConnected()
	}
	controller.HandleSignInResult(signInErr == nil)
	if signInErr != nil {
		<-view.signedOut
		return fmt.Errorf("sign-in failed: %w", signInErr)
	}

	fmt.Fprintf(out, "Signed in as %s. Vicinity: %s\n%s\n", card, cfg.Vicinity, usage)
	controller.Start()
	defer stopController(controller, loop)

	lines := make(chan string)
	go readLines(in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-view.signedOut:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if prompts.Answer(line) {
				continue
			}
			if quit := dispatch(controller, view, out, line); quit {
				return nil
			}
		}
	}
}

// stopController cancels Nearby operations and waits briefly for the loop to run them.
func stopController(controller *callingcard.Controller, loop *callingcard.Loop) {
	controller.Stop()

	drained := make(chan struct{})
	if !loop.Post(func() { close(drained) }) {
		return
	}
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
	}
}

func signIn(ctx context.Context, api *session.API, cfg *configs.ClientConfig, photoFile string) (user.User, error) {
	card, err := user.New(cfg.Name, cfg.Email, cfg.PhotoURL)
	if err != nil {
		return user.User{}, err
	}
	if !card.Valid() || !card.ValidEmail() {
		return user.User{}, fmt.Errorf("a name and a valid email address are required (-name, -email)")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	profile, err := api.SignIn(ctx, card)
	if err != nil {
		return user.User{}, err
	}

	if photoFile != "" {
		photoURL, err := uploadPhoto(ctx, api, photoFile)
		if err != nil {
			logx.Error(err, "Photo upload failed; continuing without it")
		} else {
			profile.PhotoURL = photoURL
		}
	}

	return profile.Card()
}

func uploadPhoto(ctx context.Context, api *session.API, path string) (string, error) {
	mimeType, ok := storage.ExtToMIME[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("unsupported photo type %q", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return api.UploadPhoto(ctx, mimeType, f)
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// dispatch runs one command line and reports whether the client should quit.
func dispatch(controller *callingcard.Controller, view *terminalView, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "pub", "sub":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Fprintf(out, "usage: %s on|off\n", fields[0])
			return false
		}
		on := fields[1] == "on"
		if fields[0] == "pub" {
			controller.SetPublishing(on)
		} else {
			controller.SetSubscribing(on)
		}

	case "list":
		view.mu.Lock()
		saved, nearby := view.saved, view.nearby
		view.mu.Unlock()
		view.printList("Saved", "s", saved, "No saved users yet.")
		view.printList("Nearby", "n", nearby, "Nobody nearby.")

	case "pick":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: pick n1|s1")
			return false
		}
		u, ok := view.lookup(fields[1])
		if !ok {
			fmt.Fprintf(out, "no card %q\n", fields[1])
			return false
		}
		controller.SelectUser(u)

	case "signout":
		controller.SignOut()

	case "quit", "exit":
		return true

	default:
		fmt.Fprintln(out, usage)
	}

	return false
}
