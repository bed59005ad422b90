package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/DocLedger/internal/client"
)

var (
	version   string
	buildDate string
)

const requestTimeout = 30 * time.Second

type shell struct {
	api     *client.API
	session *client.Session
	prompt  *client.Prompter
	out     io.Writer

	// last upload, offered as defaults to mint
	lastContentID   string
	lastContentHash string
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func parseTokenID(w io.Writer, args []string, usage string) (int64, bool) {
	if len(args) < 2 {
		fmt.Fprintln(w, usage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(w, "token id must be an integer")
		return 0, false
	}
	return id, true
}

// run executes a single shell command. It returns false when the shell should stop.
func (s *shell) run(args []string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, "Available commands: help, me, upload <file>, mint, list, all, get <id>, find <contentId>, transfer <id> <owner>, burn <id>, logout, exit")
	case "me":
		var me client.Me
		if me, err = s.api.Me(ctx); err == nil {
			printJSON(s.out, me)
		}
	case "upload":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: upload <file>")
			return true
		}
		up, uerr := s.api.UploadFile(ctx, args[1])
		if err = uerr; err == nil {
			s.lastContentID, s.lastContentHash = up.ContentID, up.ContentHash
			printJSON(s.out, up)
		}
	case "mint":
		mp, perr := s.prompt.MintParams(s.lastContentID, s.lastContentHash)
		if perr != nil {
			return !errors.Is(perr, io.EOF)
		}
		doc, merr := s.api.Mint(ctx, mp)
		if err = merr; err == nil {
			s.lastContentID, s.lastContentHash = "", ""
			printJSON(s.out, doc)
		}
	case "list":
		docs, lerr := s.api.ListOwn(ctx)
		if err = lerr; err == nil {
			printJSON(s.out, docs)
		}
	case "all":
		docs, lerr := s.api.ListAll(ctx)
		if err = lerr; err == nil {
			printJSON(s.out, docs)
		}
	case "get":
		id, ok := parseTokenID(s.out, args, "Usage: get <id>")
		if !ok {
			return true
		}
		doc, gerr := s.api.Get(ctx, id)
		if err = gerr; err == nil {
			printJSON(s.out, doc)
		}
	case "find":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: find <contentId>")
			return true
		}
		doc, gerr := s.api.GetByContent(ctx, args[1])
		if err = gerr; err == nil {
			printJSON(s.out, doc)
		}
	case "transfer":
		if len(args) < 3 {
			fmt.Fprintln(s.out, "Usage: transfer <id> <owner>")
			return true
		}
		id, ok := parseTokenID(s.out, args, "Usage: transfer <id> <owner>")
		if !ok {
			return true
		}
		doc, terr := s.api.Transfer(ctx, id, args[2])
		if err = terr; err == nil {
			printJSON(s.out, doc)
		}
	case "burn":
		id, ok := parseTokenID(s.out, args, "Usage: burn <id>")
		if !ok {
			return true
		}
		yes, cerr := s.prompt.Confirm(fmt.Sprintf("Burn document %d? This cannot be undone", id))
		if cerr != nil || !yes {
			return true
		}
		if err = s.api.Burn(ctx, id); err == nil {
			fmt.Fprintf(s.out, "Document %d burned\n", id)
		}
	case "logout":
		if err = s.session.Clear(); err == nil {
			fmt.Fprintln(s.out, "Logged out")
			return false
		}
	case "exit":
		fmt.Fprintln(s.out, "Bye")
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}

	if err != nil {
		fmt.Fprintln(s.out, "Error:", err)
	}
	return true
}

// repl runs the interactive shell loop until exit or end of input.
func (s *shell) repl() {
	for {
		line, err := s.prompt.Line("docledger> ")
		if err != nil {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if !s.run(args) {
			return
		}
	}
}

// authenticate performs register or login and persists the token.
func authenticate(cmd string, api *client.API, sess *client.Session, p *client.Prompter, baseURL string) error {
	username, password, err := p.Credentials()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if cmd == "register" {
		err = api.Register(ctx, username, password)
	} else {
		err = api.Login(ctx, username, password)
	}
	if err != nil {
		return err
	}
	sess.BaseURL = baseURL
	sess.Username = username
	sess.Token = api.Token()
	return sess.Save()
}

// main parses command-line flags and dispatches to the register, login or shell commands.
func main() {
	var (
		cmd         string
		baseURL     string
		caFile      string
		sessionFile string
		showVer     bool
	)

	flag.StringVar(&cmd, "cmd", "shell", "command: register | login | shell")
	flag.StringVar(&baseURL, "url", "https://localhost:8080", "server base URL")
	flag.StringVar(&caFile, "ca", "", "path to CA cert for a self-signed server")
	flag.StringVar(&sessionFile, "session", "session.json", "path to the session file")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("DocLedger Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	httpClient, err := client.NewHTTPClient(caFile)
	if err != nil {
		log.Fatal(err)
	}
	api := client.NewAPI(baseURL, httpClient)
	sess, err := client.LoadSession(sessionFile)
	if err != nil {
		log.Fatal(err)
	}
	prompt := client.NewPrompter(os.Stdin, os.Stdout)

	switch cmd {
	case "register", "login":
		if err := authenticate(cmd, api, sess, prompt, baseURL); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("✅ Logged in as %s. Session saved to %s\n", sess.Username, sessionFile)
	case "shell":
		if !sess.LoggedIn(baseURL) {
			fmt.Println("No session for this server, please log in.")
			if err := authenticate("login", api, sess, prompt, baseURL); err != nil {
				log.Fatal(err)
			}
		}
		api.SetToken(sess.Token)
		s := &shell{api: api, session: sess, prompt: prompt, out: os.Stdout}
		s.repl()
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
