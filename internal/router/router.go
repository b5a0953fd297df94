// Package router maps the session state and a requested path to the
// screen the shell shows. It has no side effects.
package router

import (
	"strings"

	"github.com/fyrsmithlabs/aicacia/internal/session"
)

// Paths the shell knows.
const (
	PathLogin = "/login"
	PathQuery = "/"
	PathChat  = "/chat"
	PathAdmin = "/admin/feedbacks"
)

// Screen identifies a top-level view.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenQuery
	ScreenChat
	ScreenAdmin
)

func (s Screen) String() string {
	switch s {
	case ScreenLogin:
		return "login"
	case ScreenQuery:
		return "query"
	case ScreenChat:
		return "chat"
	case ScreenAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Route is the outcome of resolving a path.
type Route struct {
	Screen Screen
	// Path is the path actually shown; it differs from the requested
	// path when Redirected is true.
	Path       string
	Redirected bool
}

// Resolve returns the route for path given the session.
//
// Logged out, only /login is reachable. Logged in, /login goes to /,
// /admin/feedbacks requires a verified admin, and unknown paths go to /.
func Resolve(s session.Snapshot, path string) Route {
	path = normalize(path)

	if !s.LoggedIn() {
		return route(ScreenLogin, PathLogin, path)
	}

	switch path {
	case PathQuery:
		return route(ScreenQuery, PathQuery, path)
	case PathChat:
		return route(ScreenChat, PathChat, path)
	case PathAdmin:
		if s.IsAdmin() {
			return route(ScreenAdmin, PathAdmin, path)
		}
	}
	return route(ScreenQuery, PathQuery, path)
}

func route(screen Screen, target, requested string) Route {
	return Route{Screen: screen, Path: target, Redirected: target != requested}
}

// normalize strips a trailing slash so "/chat/" and "/chat" match.
func normalize(path string) string {
	if path == "" {
		return PathQuery
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return PathQuery
		}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Link is a top-bar navigation entry.
type Link struct {
	Label string
	Path  string
	Key   string // shortcut shown in the top bar
}

// Links returns the navigation entries for the session. The admin entry
// is hidden from non-admins; logged out there are none.
func Links(s session.Snapshot) []Link {
	if !s.LoggedIn() {
		return nil
	}
	links := []Link{
		{Label: "Search", Path: PathQuery, Key: "1"},
		{Label: "Chat", Path: PathChat, Key: "2"},
	}
	if s.IsAdmin() {
		links = append(links, Link{Label: "Admin", Path: PathAdmin, Key: "3"})
	}
	return links
}
