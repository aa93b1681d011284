package game

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/playperu/agenthunt/internal/persist"
)

// ShareConfig controls the cross-device handoff link.
type ShareConfig struct {
	PublicURL  string
	QREndpoint string
	TTL        time.Duration
}

var defaultShareConfig = ShareConfig{
	PublicURL:  "http://localhost:8080",
	QREndpoint: "https://api.qrserver.com/v1/create-qr-code/",
	TTL:        24 * time.Hour,
}

// ShareLink lets another device pick up a session. QRCodeURL points at an
// external renderer and is never fetched by the server.
type ShareLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	QRCodeURL string    `json:"qrCodeUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Share issues a token for the session. The snapshot is written before the
// token so the other device can load it straight away.
func (s *Service) Share(ctx context.Context, id string) (ShareLink, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return ShareLink{}, err
	}
	st := sess.m.State()
	sess.mu.Unlock()

	if err := s.stores.Snapshots.Save(ctx, st); err != nil {
		return ShareLink{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	token := persist.NewShareToken()
	if err := s.stores.Shares.Put(ctx, token, id, s.share.TTL); err != nil {
		return ShareLink{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	link := s.shareURL(token)
	s.logger.Info("session shared", "session_id", id)
	return ShareLink{
		Token:     token,
		URL:       link,
		QRCodeURL: qrCodeURL(s.share.QREndpoint, link),
		ExpiresAt: s.now().Add(s.share.TTL).UTC(),
	}, nil
}

// Redeem resolves a share token to the session it names.
func (s *Service) Redeem(ctx context.Context, token string) (View, error) {
	id, err := s.stores.Shares.Resolve(ctx, token)
	if errors.Is(err, persist.ErrNotFound) {
		return View{}, ErrUnknownSession
	}
	if err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.Get(ctx, id)
}

func (s *Service) shareURL(token string) string {
	return strings.TrimRight(s.share.PublicURL, "/") + "/?session=" + url.QueryEscape(token)
}

func qrCodeURL(endpoint, data string) string {
	q := url.Values{}
	q.Set("size", "200x200")
	q.Set("data", data)
	return endpoint + "?" + q.Encode()
}
