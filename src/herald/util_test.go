package herald

import (
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/herald/src/friends"
)

func newTestServer(h *Herald) *httptest.Server {
	return httptest.NewServer(h.Service.Handler())
}

func addFriend(t *testing.T, h *Herald, permalink string, url string) {
	existing, err := h.Friends.Friends()
	if err != nil {
		t.Fatal(err)
	}

	existing = append(existing, &friends.Friend{Permalink: permalink, URL: url})

	if err := h.Friends.SetFriends(existing); err != nil {
		t.Fatal(err)
	}
}
