package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/splax/reelview/internal/client"
	"github.com/splax/reelview/internal/domain"
	"github.com/splax/reelview/internal/tmdb"
	apiclient "github.com/splax/reelview/pkg/api/client"
	"github.com/splax/reelview/pkg/config"
	"github.com/splax/reelview/pkg/logger"
)

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "login":
		err = commandLogin(args)
	case "logout":
		err = commandLogout(args)
	case "whoami":
		err = commandWhoami(args)
	case "trending":
		err = commandTrending(args)
	case "browse":
		err = commandBrowse(args)
	case "details":
		err = commandDetails(args)
	case "watchlist":
		err = commandWatchlist(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if errors.Is(err, client.ErrUnauthenticated) {
		fmt.Fprintln(os.Stderr, "please sign in first: reel login --email you@example.com")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env bundles what every command needs: the API client and the persisted
// client session.
type env struct {
	api     *apiclient.Client
	session *client.Session
	store   client.Store
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

type commonFlags struct {
	api   *string
	state *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	cfg := config.LoadClientConfig()
	return commonFlags{
		api:   fs.String("api", cfg.APIBaseURL, "API base URL (env REEL_API_URL)"),
		state: fs.String("state", cfg.StatePath, "Path of the local state database (env REEL_STATE_PATH)"),
	}
}

func openEnv(ctx context.Context, flags commonFlags) (*env, error) {
	api, err := apiclient.New(*flags.api)
	if err != nil {
		return nil, err
	}
	store, err := client.OpenSQLite(*flags.state)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(os.Stderr, "reel", config.GetLevel("LOG_LEVEL", slog.LevelWarn))
	session, err := client.Load(ctx, store, api, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &env{api: api, session: session, store: store}, nil
}

func readPassword(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Display name (defaults to the email local part)")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	common := addCommonFlags(fs)
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := e.session.Signup(ctx, *name, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("signed up as %s\n", user.Name)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	common := addCommonFlags(fs)
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := e.session.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", user.Name)
	return nil
}

func commandLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func commandWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()
	user, ok := e.session.CurrentUser()
	if !ok {
		return client.ErrUnauthenticated
	}
	fmt.Println(user.Name)
	return nil
}

func parseKindFlag(raw string) (domain.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.KindMovie, nil
	}
	return domain.ParseKind(raw)
}

func commandTrending(args []string) error {
	fs := flag.NewFlagSet("trending", flag.ExitOnError)
	kindFlag := fs.String("type", "movie", "movie or tv")
	common := addCommonFlags(fs)
	fs.Parse(args)

	kind, err := parseKindFlag(*kindFlag)
	if err != nil {
		return err
	}
	api, err := apiclient.New(*common.api)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	titles, err := api.Trending(ctx, kind)
	if err != nil {
		return err
	}
	printTitles(titles)
	return nil
}

func commandBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	kindFlag := fs.String("type", "movie", "movie or tv")
	search := fs.String("search", "", "Free text search (overrides filters)")
	genre := fs.String("genre", "", "TMDB genre id")
	rating := fs.String("rating", "", "Minimum vote average")
	language := fs.String("language", "", "Original language (ISO 639-1)")
	mood := fs.String("mood", "", "happy, sad, excited, scared, romantic, curious, relaxed or thrilling")
	page := fs.Int("page", 1, "Result page")
	common := addCommonFlags(fs)
	fs.Parse(args)

	kind, err := parseKindFlag(*kindFlag)
	if err != nil {
		return err
	}
	api, err := apiclient.New(*common.api)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	titles, err := api.Browse(ctx, domain.BrowseQuery{
		Kind:     kind,
		Page:     *page,
		Search:   *search,
		Genre:    *genre,
		Rating:   *rating,
		Language: *language,
		Mood:     *mood,
	})
	if err != nil {
		return err
	}
	printTitles(titles)
	return nil
}

func printTitles(titles []domain.Title) {
	if len(titles) == 0 {
		fmt.Println("no results")
		return
	}
	for _, t := range titles {
		date := t.ReleaseDate
		if date == "" {
			date = t.FirstAirDate
		}
		fmt.Printf("%d\t%s\t%s\t%.1f\t%s\n", t.ID, t.Type, t.DisplayTitle(), t.VoteAverage, date)
	}
}

func commandDetails(args []string) error {
	fs := flag.NewFlagSet("details", flag.ExitOnError)
	id := fs.Int64("id", 0, "TMDB id")
	kindFlag := fs.String("type", "movie", "movie or tv")
	common := addCommonFlags(fs)
	fs.Parse(args)

	if *id <= 0 {
		return errors.New("--id is required")
	}
	kind, err := parseKindFlag(*kindFlag)
	if err != nil {
		return err
	}
	api, err := apiclient.New(*common.api)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	details, err := api.Details(ctx, kind, *id)
	if err != nil {
		return err
	}
	if details.Details == nil {
		return fmt.Errorf("no details available for %s %d", kind, *id)
	}
	d := details.Details
	fmt.Println(d.DisplayTitle())
	if d.Tagline != "" {
		fmt.Printf("  %s\n", d.Tagline)
	}
	fmt.Printf("Rating: %.1f\n", d.VoteAverage)
	if director := details.Credits.Director(); director != "" {
		fmt.Printf("Director: %s\n", director)
	}
	if details.Credits != nil && len(details.Credits.Cast) > 0 {
		cast := make([]string, 0, 8)
		for i, member := range details.Credits.Cast {
			if i == 8 {
				break
			}
			cast = append(cast, member.Name)
		}
		fmt.Printf("Cast: %s\n", strings.Join(cast, ", "))
	}
	if poster := tmdb.PosterURL(d.PosterPath); poster != "" {
		fmt.Printf("Poster: %s\n", poster)
	}
	if details.TrailerKey != "" {
		fmt.Printf("Trailer: https://youtube.com/watch?v=%s\n", details.TrailerKey)
	}
	if details.OTTLink != "" {
		fmt.Printf("Watch: %s\n", details.OTTLink)
	}
	if d.Overview != "" {
		fmt.Printf("\n%s\n", d.Overview)
	}
	return nil
}

func commandWatchlist(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: reel watchlist [add|list|show|remote|push]")
	}
	sub := args[0]
	switch sub {
	case "add":
		return watchlistAdd(args[1:])
	case "list":
		return watchlistList(args[1:], false)
	case "show":
		return watchlistList(args[1:], true)
	case "remote":
		return watchlistRemote(args[1:])
	case "push":
		return watchlistPush(args[1:])
	default:
		return fmt.Errorf("unknown watchlist command: %s", sub)
	}
}

func watchlistAdd(args []string) error {
	fs := flag.NewFlagSet("watchlist add", flag.ExitOnError)
	id := fs.Int64("id", 0, "TMDB id")
	kindFlag := fs.String("type", "movie", "movie or tv")
	remote := fs.Bool("remote", false, "Store on the server instead of the local list")
	common := addCommonFlags(fs)
	fs.Parse(args)

	kind, err := parseKindFlag(*kindFlag)
	if err != nil {
		return err
	}
	entry := domain.WatchlistEntry{ItemID: *id, Kind: kind}
	if err := entry.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	if *remote {
		if err := e.session.AddRemote(ctx, entry); err != nil {
			return err
		}
		fmt.Println("added to server watchlist")
		return nil
	}
	added, err := e.session.AddLocal(ctx, entry)
	if err != nil {
		return err
	}
	if added {
		fmt.Println("added to watchlist")
	} else {
		fmt.Println("already in watchlist")
	}
	return nil
}

func watchlistList(args []string, render bool) error {
	name := "watchlist list"
	if render {
		name = "watchlist show"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	entries := e.session.Local()
	if len(entries) == 0 {
		fmt.Println("watchlist is empty")
		return nil
	}
	if !render {
		for _, entry := range entries {
			fmt.Printf("%d\t%s\n", entry.ItemID, entry.Kind)
		}
		return nil
	}
	for _, item := range e.session.Render(ctx, entries) {
		fmt.Printf("%d\t%s\t%s\t%.1f\n", item.Entry.ItemID, item.Entry.Kind, item.Title, item.VoteAverage)
	}
	return nil
}

func watchlistRemote(args []string) error {
	fs := flag.NewFlagSet("watchlist remote", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.session.ListRemote(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("server watchlist is empty")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("%d\t%s\n", entry.ItemID, entry.Kind)
	}
	return nil
}

func watchlistPush(args []string) error {
	fs := flag.NewFlagSet("watchlist push", flag.ExitOnError)
	common := addCommonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	e, err := openEnv(ctx, common)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.session.Push(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %d entries\n", result.Sent)
	for _, entry := range result.Failed {
		fmt.Printf("failed: %d\t%s\n", entry.ItemID, entry.Kind)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d entries could not be pushed", len(result.Failed))
	}
	return nil
}

func printUsage() {
	fmt.Printf("reel CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	reel signup --email user@example.com [--name Ann] [--password secret]
	reel login --email user@example.com [--password secret]
	reel logout
	reel whoami
	reel trending [--type movie|tv]
	reel browse [--type movie|tv] [--search text] [--genre id] [--rating N] [--language xx] [--mood name] [--page N]
	reel details --id N [--type movie|tv]
	reel watchlist add --id N [--type movie|tv] [--remote]
	reel watchlist list
	reel watchlist show
	reel watchlist remote
	reel watchlist push
	reel version

Every command accepts --api URL and --state PATH.
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
