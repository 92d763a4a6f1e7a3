// Package content fetches jokes, memes, anime quotes, lyrics and speech from
// public keyless web APIs.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgard/wabot/internal/resilience"
)

var (
	// ErrNotFound is returned when an API answered without the requested item.
	ErrNotFound = errors.New("content not found")
	// ErrBadInput is returned for arguments the API cannot use.
	ErrBadInput = errors.New("invalid input")
)

const (
	maxJSONBytes   = 1 << 20
	maxMediaBytes  = 10 << 20
	maxSpeechChars = 200
)

// Endpoints are the upstream URLs. Fields left empty use DefaultEndpoints.
type Endpoints struct {
	Meme   string
	Joke   string
	Quote  string
	Lyrics string
	Speech string
}

// DefaultEndpoints point at the public services.
var DefaultEndpoints = Endpoints{
	Meme:   "https://meme-api.com/gimme",
	Joke:   "https://v2.jokeapi.dev/joke/Any?safe-mode",
	Quote:  "https://animechan.io/api/v1/quotes/random",
	Lyrics: "https://api.lyrics.ovh/v1",
	Speech: "https://translate.google.com/translate_tts",
}

// Meme is a random meme image.
type Meme struct {
	Title    string
	URL      string
	Data     []byte
	MimeType string
}

// Quote is an anime quote.
type Quote struct {
	Content   string
	Character string
	Anime     string
}

// Format renders the quote for chat.
func (q *Quote) Format() string {
	return fmt.Sprintf("\"%s\"\n\n— %s (%s)", q.Content, q.Character, q.Anime)
}

// Client talks to the content APIs through a shared breaker.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	breaker   *resilience.Breaker
	retry     resilience.RetryConfig
	logger    *slog.Logger
}

// New returns a client. A nil httpClient uses a 20 second timeout.
func New(httpClient *http.Client, endpoints Endpoints, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if endpoints.Meme == "" {
		endpoints.Meme = DefaultEndpoints.Meme
	}
	if endpoints.Joke == "" {
		endpoints.Joke = DefaultEndpoints.Joke
	}
	if endpoints.Quote == "" {
		endpoints.Quote = DefaultEndpoints.Quote
	}
	if endpoints.Lyrics == "" {
		endpoints.Lyrics = DefaultEndpoints.Lyrics
	}
	if endpoints.Speech == "" {
		endpoints.Speech = DefaultEndpoints.Speech
	}
	log := logger.With("component", "content")
	return &Client{
		http:      httpClient,
		endpoints: endpoints,
		breaker:   resilience.NewBreaker(resilience.BreakerConfig{Name: "content", MaxFailures: 5, OpenFor: time.Minute, Logger: log}),
		retry:     resilience.RetryConfig{MaxAttempts: 2, InitialInterval: 300 * time.Millisecond, Multiplier: 2},
		logger:    log,
	}
}

// Joke returns a single-line joke or a setup and delivery pair.
func (c *Client) Joke(ctx context.Context) (string, error) {
	var data struct {
		Error    bool   `json:"error"`
		Type     string `json:"type"`
		Joke     string `json:"joke"`
		Setup    string `json:"setup"`
		Delivery string `json:"delivery"`
	}
	if err := c.getJSON(ctx, c.endpoints.Joke, &data); err != nil {
		return "", err
	}
	if data.Type == "single" && data.Joke != "" {
		return data.Joke, nil
	}
	if data.Setup == "" {
		return "", ErrNotFound
	}
	return data.Setup + "\n\n" + data.Delivery, nil
}

// Meme fetches a random meme and downloads its image.
func (c *Client) Meme(ctx context.Context) (*Meme, error) {
	var data struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := c.getJSON(ctx, c.endpoints.Meme, &data); err != nil {
		return nil, err
	}
	if data.URL == "" {
		return nil, ErrNotFound
	}
	body, mime, err := c.getBytes(ctx, data.URL, maxMediaBytes)
	if err != nil {
		return nil, err
	}
	return &Meme{Title: data.Title, URL: data.URL, Data: body, MimeType: mime}, nil
}

// Quote returns a random anime quote.
func (c *Client) Quote(ctx context.Context) (*Quote, error) {
	var data struct {
		Content   string `json:"content"`
		Character any    `json:"character"`
		Anime     any    `json:"anime"`
	}
	if err := c.getJSON(ctx, c.endpoints.Quote, &data); err != nil {
		return nil, err
	}
	if data.Content == "" {
		return nil, ErrNotFound
	}
	return &Quote{Content: data.Content, Character: nameOf(data.Character), Anime: nameOf(data.Anime)}, nil
}

// nameOf accepts either a plain string or an object with a name field.
func nameOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name
		}
	}
	return "Unknown"
}

// Lyrics returns the lyrics of a song.
func (c *Client) Lyrics(ctx context.Context, artist, song string) (string, error) {
	artist, song = strings.TrimSpace(artist), strings.TrimSpace(song)
	if artist == "" || song == "" {
		return "", ErrBadInput
	}
	endpoint := strings.TrimRight(c.endpoints.Lyrics, "/") + "/" + url.PathEscape(artist) + "/" + url.PathEscape(song)

	var data struct {
		Lyrics string `json:"lyrics"`
	}
	if err := c.getJSON(ctx, endpoint, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.Lyrics) == "" {
		return "", ErrNotFound
	}
	return data.Lyrics, nil
}

// Speech returns MP3 audio speaking text in English.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxSpeechChars {
		return nil, ErrBadInput
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", "en")
	q.Set("client", "tw-ob")

	body, _, err := c.getBytes(ctx, c.endpoints.Speech+"?"+q.Encode(), maxMediaBytes)
	return body, err
}

// SplitArtistSong splits "Artist - Song" at the first dash.
func SplitArtistSong(input string) (string, string, bool) {
	artist, song, ok := strings.Cut(input, "-")
	if !ok {
		return "", "", false
	}
	artist, song = strings.TrimSpace(artist), strings.TrimSpace(song)
	return artist, song, artist != "" && song != ""
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	body, _, err := c.getBytes(ctx, endpoint, maxJSONBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", hostOf(endpoint), err)
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, endpoint string, limit int64) ([]byte, string, error) {
	var body []byte
	var mime string
	var notFound bool
	err := resilience.WithRetry(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wabot)")

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("request to %s failed: %w", hostOf(endpoint), err)
			}
			defer resp.Body.Close()

			// A missing item is an answer, not an outage.
			if resp.StatusCode == http.StatusNotFound {
				notFound = true
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s returned status %d", hostOf(endpoint), resp.StatusCode)
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			if int64(len(data)) > limit {
				return fmt.Errorf("response from %s exceeds %d bytes", hostOf(endpoint), limit)
			}
			body = data
			mime = resp.Header.Get("Content-Type")
			return nil
		})
	}, c.retry)
	if err != nil {
		c.logger.WarnContext(ctx, "Content request failed", "host", hostOf(endpoint), "error", err)
		return nil, "", err
	}
	if notFound {
		return nil, "", ErrNotFound
	}
	return body, mime, nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "unknown"
	}
	return u.Host
}
