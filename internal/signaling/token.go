package signaling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aalghamdi/voicedesk/internal/config"
)

// ErrNotConfigured is returned by every signaling operation when the
// connectivity settings are absent from the environment.
var ErrNotConfigured = errors.New("signaling is not configured")

const defaultTokenTTL = 6 * time.Hour

// VideoGrant mirrors the room permissions embedded in an access token.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	RoomCreate   bool   `json:"roomCreate,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	CanPublish   bool   `json:"canPublish,omitempty"`
	CanSubscribe bool   `json:"canSubscribe,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// TokenMinter signs room access tokens with the shared API secret.
type TokenMinter struct {
	settings config.SignalingSettings
}

func NewTokenMinter(settings config.SignalingSettings) *TokenMinter {
	return &TokenMinter{settings: settings}
}

// ParticipantToken mints a join token for one participant in one room.
// Identity defaults to the participant name; TTL <= 0 uses the default.
func (m *TokenMinter) ParticipantToken(room, participantName, identity string, ttl time.Duration) (string, error) {
	if m.settings.Unset() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(room) == "" {
		return "", errors.New("room name is required")
	}
	if strings.TrimSpace(identity) == "" {
		identity = participantName
	}
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("participant identity is required")
	}
	return m.sign(identity, participantName, ttl, VideoGrant{
		Room:         room,
		RoomJoin:     true,
		CanPublish:   true,
		CanSubscribe: true,
	})
}

// adminToken grants room management rights, used by the RoomClient.
func (m *TokenMinter) adminToken() (string, error) {
	if m.settings.Unset() {
		return "", ErrNotConfigured
	}
	return m.sign("voicedesk-api", "", 10*time.Minute, VideoGrant{
		RoomCreate: true,
		RoomList:   true,
	})
}

func (m *TokenMinter) sign(identity, name string, ttl time.Duration, grant VideoGrant) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.settings.APIKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:  name,
		Video: grant,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.settings.APISecret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ServerURL is the websocket URL participants connect to with their token.
func (m *TokenMinter) ServerURL() string { return m.settings.URL }
