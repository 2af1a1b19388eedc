package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/i3visio/simplectf"
	"github.com/i3visio/simplectf/internal"
	"github.com/i3visio/simplectf/service"
)

const (
	textPlain = "text/plain; charset=utf-8"
	appJSON   = "application/json"
)

type Server struct {
	svc *service.Service
	now func() time.Time
}

// New returns a ready Server instance.
func New(svc *service.Service) *Server { return &Server{svc: svc, now: time.Now} }

func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	var sb strings.Builder
	sb.WriteString(underline(s.svc.Title(), '='))
	sb.WriteString("\n\n")
	sb.WriteString(s.svc.Description())
	sb.WriteString(`

Instructions
------------

As a user, the only things you need to know are the following:
- Go to /list to show the available challenges.
- Go to /rank to show the current leaderboard.
- Go to /c/<challenge> to show the instructions of that challenge.
- Go to /c/<challenge>/<username>/<answer> to send an answer as username.
- Go to /u/<username> to show the challenges solved by the user.
- Go to /info to show the version of this server.

That's all!

License and Disclaimer
----------------------

This CTF is powered by a simple curl-compliant CTF server licensed as ` + simplectf.License + `.
Its source code and installation instructions can be found at
` + simplectf.SourceCode + `

Because you don't need a web browser to hack like a *pro*! Enjoy! :)
`)

	s.respond(w, r, http.StatusOK, textPlain, sb.String())
}

func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	body, err := json.MarshalIndent(map[string]string{
		"__version__": "SimpleCTF " + simplectf.Version,
		"license":     simplectf.License,
		"server_time": s.now().Format(time.RFC3339),
		"source_code": simplectf.SourceCode,
	}, "", "  ")
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.respond(w, r, http.StatusOK, appJSON, string(body)+"\n")
}

func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	var sb strings.Builder
	sb.WriteString(underline("List of Challenges", '='))
	sb.WriteString("\n\n")

	for _, c := range s.svc.ListChallenges() {
		fmt.Fprintf(&sb, "\t- /c/%s --> [%s] %s (%d points)\n", c.URL, c.Type, c.Title, c.Points)
	}

	s.respond(w, r, http.StatusOK, textPlain, sb.String())
}

func (s *Server) Rank(w http.ResponseWriter, r *http.Request) {
	board, err := s.svc.Rank(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(underline("Current Leaderboard", '='))
	sb.WriteString("\n\n")

	if len(board) == 0 {
		sb.WriteString("No users completed a challenge yet!\n")
	}

	for _, st := range board {
		pos := fmt.Sprintf("%d) ", st.Position)
		if st.Tied {
			pos = " "
		}
		fmt.Fprintf(&sb, "%s\t%s (%d points)\n", pos, st.Username, st.Points)
	}

	s.respond(w, r, http.StatusOK, textPlain, sb.String())
}

func (s *Server) User(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	p, err := s.svc.LookupUser(r.Context(), username)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		s.respond(w, r, http.StatusNotFound, textPlain,
			"No user found with this name: "+username+". Users appear after their first correct answer.\n")
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(underline("@"+username, '='))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "- Points awarded: %d\n\n", p.Points)
	sb.WriteString("- Challenges solved:\n")

	urls := make([]string, 0, len(p.Solved))
	for url := range p.Solved {
		urls = append(urls, url)
	}
	slices.Sort(urls)
	for _, url := range urls {
		fmt.Fprintf(&sb, "\t%s (%d points)\n", url, p.Solved[url])
	}

	s.respond(w, r, http.StatusOK, textPlain, sb.String())
}

func (s *Server) Challenge(w http.ResponseWriter, r *http.Request) {
	url := r.PathValue("challenge")

	c, ok := s.svc.Challenge(url)
	if !ok {
		s.challengeNotFound(w, r, url)
		return
	}

	solvers, err := s.svc.SolvedBy(r.Context(), url)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var sb strings.Builder
	sb.WriteString(underline(c.Title, '='))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "[%s] %d points\n\n", c.Type, c.Points)
	sb.WriteString(c.Description)
	sb.WriteString("\n\n")
	sb.WriteString(underline("How to Push an Answer", '-'))
	sb.WriteString("\nRemember that you can push the solution using the following URL:\n\t/c/" + url + "/<username>/<answer>\n\n")
	sb.WriteString(underline("Solved by:", '-'))
	sb.WriteString("\n")
	for _, u := range solvers {
		sb.WriteString("\t- " + u + "\n")
	}

	s.respond(w, r, http.StatusOK, textPlain, sb.String())
}

// Submit serves both /c/{challenge}/{username} and
// /c/{challenge}/{username}/{answer...}; the first always carries an empty
// answer.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	url := r.PathValue("challenge")
	username := r.PathValue("username")
	answer := r.PathValue("answer")

	result, err := s.svc.Submit(r.Context(), url, username, answer)
	switch {
	case errors.Is(err, service.ErrEmptyUsername):
		s.BadRequest(w, r)
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	internal.GetRequestLogger(r).Debug("submission", "challenge", url, "user", username, "outcome", result.Kind())

	switch result := result.(type) {
	case service.ChallengeNotFound:
		w.Header().Set("Cache-Control", "no-store")
		s.challengeNotFound(w, r, url)
	case service.EmptyAnswer:
		s.respondSubmission(w, r, http.StatusBadRequest, "Bad Request: You have provided no solution!\n")
	case service.IncorrectAnswer:
		s.respondSubmission(w, r, http.StatusOK,
			"Incorrect answer, "+username+"! Try again in the following URL:\n\t/c/"+url+"/"+username+"/<new_answer>\n")
	case service.Awarded:
		var sb strings.Builder
		sb.WriteString("Correct answer, " + username + "!\n\n")
		if result.NewTotal == result.PointsGained {
			fmt.Fprintf(&sb, "You have solved your first challenge!\nYou have been awarded %d points for solving it.\n\n", result.PointsGained)
		} else {
			fmt.Fprintf(&sb, "You have been awarded %d points for solving this challenge.\n\n", result.PointsGained)
		}
		sb.WriteString(balance(username, result.NewTotal))
		s.respondSubmission(w, r, http.StatusOK, sb.String())
	case service.AlreadySolved:
		s.respondSubmission(w, r, http.StatusOK,
			"Correct answer, "+username+"!\n\n"+
				"But you have already resolved the challenge before! No more points awarded.\n"+
				balance(username, result.CurrentTotal))
	default:
		s.internalError(w, r, fmt.Errorf("[unexpected] unknown submission result %T", result))
	}
}

func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", textPlain)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusNotFound, textPlain, `Error 404
=========

Page Not Found. Is this the website you want to visit?

Go back to / to get further instructions.
`)
}

func (s *Server) BadRequest(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusBadRequest, textPlain, `Error 400
=========

Bad Request. Are you sure you made a correct request?

Go back to / to get further instructions.
`)
}

func (s *Server) challengeNotFound(w http.ResponseWriter, r *http.Request, url string) {
	s.respond(w, r, http.StatusNotFound, textPlain,
		"No challenge found with this title: "+url+". Try /list to find the existing challenges.\n")
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	internal.GetRequestLogger(r).Error("request failed", "err", err)
	s.respond(w, r, http.StatusInternalServerError, textPlain, `Error 500
=========

Internal Server Error. This should not be happening. Contact the admin if the
error persists.
`)
}

// respond writes body with an ETag and answers a matching If-None-Match
// with 304. Only read-only pages go through it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, contentType, body string) {
	etag := internal.ETag([]byte(body))
	w.Header().Set("ETag", etag)

	if status == http.StatusOK && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.write(w, r, status, contentType, body)
}

// respondSubmission always writes the full result. A submission changes
// state, so it is never answered from a cached copy.
func (s *Server) respondSubmission(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Cache-Control", "no-store")
	s.write(w, r, status, textPlain, body)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(body)); err != nil {
		internal.GetRequestLogger(r).Debug("can't write response", "err", err)
	}
}

func balance(username string, total int) string {
	return fmt.Sprintf("%s, your current point balance is %d points.\n\nYou can always check the full leaderboard in /rank\n", username, total)
}

func underline(text string, ch rune) string {
	return text + "\n" + strings.Repeat(string(ch), len([]rune(text)))
}
