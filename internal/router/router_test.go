package router

import (
	"testing"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/session"
	"github.com/stretchr/testify/assert"
)

var (
	loggedOut  = session.Snapshot{State: session.LoggedOut}
	unverified = session.Snapshot{State: session.Unverified}
	member     = session.Snapshot{State: session.Verified, User: &api.UserInfo{Email: "ada@example.org"}}
	admin      = session.Snapshot{State: session.Verified, User: &api.UserInfo{Email: "root@example.org", IsAdmin: true}}
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		session    session.Snapshot
		path       string
		screen     Screen
		want       string
		redirected bool
	}{
		{"logged out login", loggedOut, "/login", ScreenLogin, PathLogin, false},
		{"logged out root", loggedOut, "/", ScreenLogin, PathLogin, true},
		{"logged out chat", loggedOut, "/chat", ScreenLogin, PathLogin, true},
		{"logged out admin", loggedOut, "/admin/feedbacks", ScreenLogin, PathLogin, true},
		{"logged out unknown", loggedOut, "/nowhere", ScreenLogin, PathLogin, true},

		{"login redirects home", member, "/login", ScreenQuery, PathQuery, true},
		{"root", member, "/", ScreenQuery, PathQuery, false},
		{"empty path", member, "", ScreenQuery, PathQuery, false},
		{"chat", member, "/chat", ScreenChat, PathChat, false},
		{"chat trailing slash", member, "/chat/", ScreenChat, PathChat, false},
		{"unknown", member, "/settings", ScreenQuery, PathQuery, true},
		{"admin for member", member, "/admin/feedbacks", ScreenQuery, PathQuery, true},
		{"admin for admin", admin, "/admin/feedbacks", ScreenAdmin, PathAdmin, false},

		{"unverified chat", unverified, "/chat", ScreenChat, PathChat, false},
		{"unverified admin", unverified, "/admin/feedbacks", ScreenQuery, PathQuery, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.session, tt.path)
			assert.Equal(t, tt.screen, r.Screen)
			assert.Equal(t, tt.want, r.Path)
			assert.Equal(t, tt.redirected, r.Redirected)
		})
	}
}

func TestLinks(t *testing.T) {
	assert.Empty(t, Links(loggedOut))

	memberLinks := Links(member)
	assert.Len(t, memberLinks, 2)
	for _, l := range memberLinks {
		assert.NotEqual(t, PathAdmin, l.Path)
	}

	adminLinks := Links(admin)
	assert.Len(t, adminLinks, 3)
	assert.Equal(t, PathAdmin, adminLinks[2].Path)
}

func TestScreen_String(t *testing.T) {
	assert.Equal(t, "login", ScreenLogin.String())
	assert.Equal(t, "admin", ScreenAdmin.String())
	assert.Equal(t, "unknown", Screen(42).String())
}
