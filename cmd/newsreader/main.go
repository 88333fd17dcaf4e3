package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ZayatsMaxim/news-project/internal/auth"
	"github.com/ZayatsMaxim/news-project/internal/config"
	"github.com/ZayatsMaxim/news-project/internal/core/browse"
	"github.com/ZayatsMaxim/news-project/internal/core/details"
	"github.com/ZayatsMaxim/news-project/internal/core/listing"
	"github.com/ZayatsMaxim/news-project/internal/core/posts"
	"github.com/ZayatsMaxim/news-project/internal/rest"
	"github.com/ZayatsMaxim/news-project/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	style, ok := rest.ParseStyle(cfg.PaginationStyle)
	if !ok {
		fmt.Fprintf(os.Stderr, "config: unknown pagination style %q\n", cfg.PaginationStyle)
		os.Exit(1)
	}

	var kv storage.Store
	session, err := storage.Open(cfg.StateDBPath, cfg.SessionID, logger)
	if err != nil {
		logger.Warn("session storage unavailable, state will not persist", "error", err)
		kv = storage.NewMemory()
	} else {
		defer session.Close()
		kv = session
	}

	mgr := auth.NewManager(cfg.APIBaseURL, kv, logger)
	repo := rest.NewClient(cfg.APIBaseURL, style,
		rest.WithTokenSource(mgr.AccessToken),
		rest.WithLogger(logger))

	list := listing.New(repo, kv, cfg.PageSize, logger)
	cache := details.New(repo, kv, list, logger)
	app := browse.New(list, cache, repo, mgr, logger)
	defer app.Close()

	ctx := context.Background()
	if err := app.EnsureLoaded(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "initial load:", err)
	}
	printPage(app)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			app.CloseModal()
			return
		}
		if line != "" {
			runCommand(ctx, app, mgr, line)
		}
		fmt.Print("> ")
	}
}

func runCommand(ctx context.Context, app *browse.Coordinator, mgr *auth.Manager, line string) {
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "help":
		printHelp()

	case "list":
		printPage(app)

	case "page":
		n, err := strconv.Atoi(args)
		if err != nil {
			fmt.Println("usage: page <n>")
			return
		}
		report(app.LoadPage(ctx, n))
		printPage(app)

	case "search":
		field, query := posts.FieldTitle, args
		if f, rem, ok := strings.Cut(args, " "); ok {
			if parsed, valid := posts.ParseSearchField(f); valid {
				field, query = parsed, strings.TrimSpace(rem)
			}
		}
		report(app.Search(ctx, query, field))
		printPage(app)

	case "refresh":
		report(app.Refresh(ctx))
		printPage(app)

	case "open":
		idx, err := strconv.Atoi(args)
		if err != nil || idx < 1 {
			fmt.Println("usage: open <card number>")
			return
		}
		snap := app.List().Snapshot()
		if idx > len(snap.Posts) {
			fmt.Println("no such card on this page")
			return
		}
		entry, err := app.OpenPostForModal(ctx, snap.Posts[idx-1].ID, idx-1)
		report(err)
		printEntry(app, entry)

	case "next":
		entry, err := app.GoToNextPost(ctx)
		report(err)
		printEntry(app, entry)

	case "prev":
		entry, err := app.GoToPrevPost(ctx)
		report(err)
		printEntry(app, entry)

	case "close":
		app.CloseModal()
		fmt.Println("closed")

	case "edit":
		title, body, ok := strings.Cut(args, "|")
		if !ok {
			fmt.Println("usage: edit <title> | <body>")
			return
		}
		app.Details().EditCurrent(strings.TrimSpace(title), strings.TrimSpace(body), nil)
		fmt.Println("edited (unsaved)")

	case "save":
		entry, ok := app.Details().Current()
		if !ok {
			fmt.Println("nothing open")
			return
		}
		saved, err := app.SaveAndSync(ctx, entry.Post.ID)
		report(err)
		if saved {
			fmt.Println("saved")
		}

	case "revert":
		app.Details().RevertEdits()
		fmt.Println("reverted")

	case "new":
		app.OpenForNewPost()
		fmt.Println("draft open; edit then create")

	case "create":
		created, err := app.CreateFromDraft(ctx)
		report(err)
		if created != nil {
			fmt.Printf("created post %d\n", created.ID)
		}

	case "delete":
		entry, ok := app.Details().Current()
		if !ok {
			fmt.Println("nothing open")
			return
		}
		report(app.DeletePost(ctx, entry.Post.ID))
		printPage(app)

	case "like", "dislike":
		entry, ok := app.Details().Current()
		if !ok {
			fmt.Println("nothing open")
			return
		}
		kind := posts.ReactionLike
		if cmd == "dislike" {
			kind = posts.ReactionDislike
		}
		app.Details().ToggleReaction(ctx, entry.Post.ID, kind)
		printEntryCurrent(app)

	case "likecomment":
		id, err := strconv.Atoi(args)
		if err != nil {
			fmt.Println("usage: likecomment <comment id>")
			return
		}
		app.Details().ToggleCommentLike(ctx, id)
		printEntryCurrent(app)

	case "login":
		user, pass, ok := strings.Cut(args, " ")
		if !ok {
			fmt.Println("usage: login <username> <password>")
			return
		}
		if err := mgr.Login(ctx, user, strings.TrimSpace(pass)); err != nil {
			fmt.Println("login failed:", err)
			return
		}
		fmt.Println("logged in")

	case "logout":
		mgr.Logout()
		fmt.Println("logged out")

	default:
		fmt.Println("unknown command; try help")
	}
}

func printHelp() {
	fmt.Println(`commands:
  list                          show the current page
  page <n>                      go to page n
  search [title|body|userId] <query>
  refresh                       refetch the current page
  open <card number>            open a post from the page
  next / prev / close           navigate or close the detail view
  edit <title> | <body>         edit the open post (unsaved)
  save / revert                 persist or discard edits
  new / create                  draft and publish a post
  delete                        delete the open post
  like / dislike                toggle a reaction on the open post
  likecomment <id>              toggle a like on a comment
  login <user> <pass> / logout
  quit`)
}

func printPage(app *browse.Coordinator) {
	snap := app.List().Snapshot()
	if snap.Query != "" {
		fmt.Printf("search %s=%q, ", snap.Field, snap.Query)
	}
	fmt.Printf("page %d/%d (%d posts)\n", snap.Page, snap.TotalPages, snap.Total)
	for i, p := range snap.Posts {
		fmt.Printf("  %2d. [%d] %s (views %d, +%d/-%d)\n",
			i+1, p.ID, p.Title, p.Views, p.Reactions.Likes, p.Reactions.Dislikes)
	}
}

func printEntry(app *browse.Coordinator, entry *details.Entry) {
	if entry == nil {
		return
	}
	d := app.Details()
	fmt.Printf("#%d %s\n%s\n", entry.Post.ID, entry.Post.Title, entry.Post.Body)
	if len(entry.Post.Tags) > 0 {
		fmt.Println("tags:", strings.Join(entry.Post.Tags, ", "))
	}
	if entry.User != nil {
		fmt.Printf("by %s %s (@%s)\n", entry.User.FirstName, entry.User.LastName, entry.User.Username)
	}
	fmt.Printf("views %d, +%d/-%d", entry.Post.Views, entry.Post.Reactions.Likes, entry.Post.Reactions.Dislikes)
	if r, ok := d.UserReaction(entry.Post.ID); ok {
		fmt.Printf(" (you: %s)", r)
	}
	if d.WasEdited(entry.Post.ID) {
		fmt.Print(" (edited)")
	}
	fmt.Println()
	for _, c := range entry.Comments {
		marker := ""
		if d.LikedComment(c.ID) {
			marker = " *"
		}
		fmt.Printf("  [%d] %s: %s (+%d)%s\n", c.ID, c.User.Username, c.Body, c.Likes, marker)
	}
	if app.HasPrevPost() || app.HasNextPost() {
		fmt.Printf("prev: %v, next: %v\n", app.HasPrevPost(), app.HasNextPost())
	}
}

func printEntryCurrent(app *browse.Coordinator) {
	if entry, ok := app.Details().Current(); ok {
		printEntry(app, &entry)
	}
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
	}
}
