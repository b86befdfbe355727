package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Oracle supplies externally agreed data. The game never talks to the network itself.
type Oracle interface {
	FetchAgreedWebpage(ctx context.Context, url string) (string, error)
	FetchAgreedPromptResult(ctx context.Context, prompt, criteria string) (string, error)
}

type Mode string

const (
	ModeCrypto   Mode = "crypto"
	ModeWeather  Mode = "weather"
	ModeNews     Mode = "news"
	ModeTrending Mode = "trending"
)

// Modes is the rotation used by ModeForRound.
var Modes = []Mode{ModeCrypto, ModeWeather, ModeNews, ModeTrending}

// ModeForRound picks the challenge category for a round number.
func ModeForRound(round int) Mode {
	return Modes[round%len(Modes)]
}

// Objective reports whether answers are ranked by numeric distance.
// Other modes are ranked by the AI judge.
func (m Mode) Objective() bool {
	return m == ModeCrypto || m == ModeWeather
}

const (
	cryptoURL   = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"
	weatherURL  = "https://api.open-meteo.com/v1/forecast?latitude=40.71&longitude=-74.01&current_weather=true"
	newsURL     = "https://feeds.bbci.co.uk/news/world/rss.xml"
	trendingURL = "https://trends.google.com/trending/rss?geo=US"

	// Feeds are cut before being handed to the prompt runner.
	maxPromptPage = 6000
)

type source struct {
	url       string
	fallback  string
	extract   func(ctx context.Context, o Oracle, page string) (string, error)
	challenge func(hidden string) string
}

var sources = map[Mode]source{
	ModeCrypto: {
		url:      cryptoURL,
		fallback: "50000",
		extract: func(_ context.Context, _ Oracle, page string) (string, error) {
			var body struct {
				Bitcoin struct {
					USD json.Number `json:"usd"`
				} `json:"bitcoin"`
			}
			if err := decodeNumberJSON(page, &body); err != nil {
				return "", err
			}
			return normalizeNumber(body.Bitcoin.USD)
		},
		challenge: func(string) string { return "Guess the current Bitcoin price in USD" },
	},
	ModeWeather: {
		url:      weatherURL,
		fallback: "20",
		extract: func(_ context.Context, _ Oracle, page string) (string, error) {
			var body struct {
				CurrentWeather struct {
					Temperature json.Number `json:"temperature"`
				} `json:"current_weather"`
			}
			if err := decodeNumberJSON(page, &body); err != nil {
				return "", err
			}
			return normalizeNumber(body.CurrentWeather.Temperature)
		},
		challenge: func(string) string { return "Guess the current temperature in New York City in °C" },
	},
	ModeNews: {
		url:      newsURL,
		fallback: "Central banks signal a pause in interest rate hikes",
		extract: func(ctx context.Context, o Oracle, page string) (string, error) {
			return extractLine(ctx, o,
				"Below is a news feed. Reply with the single most prominent headline, copied verbatim, and nothing else.",
				"The reply is exactly one headline that appears in the feed.",
				page)
		},
		challenge: func(headline string) string {
			return fmt.Sprintf("Headline: %q. How will this news move the markets? Explain your prediction.", headline)
		},
	},
	ModeTrending: {
		url:      trendingURL,
		fallback: "Artificial intelligence",
		extract: func(ctx context.Context, o Oracle, page string) (string, error) {
			return extractLine(ctx, o,
				"Below is a feed of trending searches. Reply with the name of the top trending topic and nothing else.",
				"The reply is exactly one topic name that appears in the feed.",
				page)
		},
		challenge: func(topic string) string {
			return fmt.Sprintf("%q is trending right now. Explain why.", topic)
		},
	},
}

// resolveChallenge fetches the ground truth for mode. External failures fall back
// to the mode's fixed value so a round can always start.
func resolveChallenge(ctx context.Context, o Oracle, mode Mode) (challenge, hidden string) {
	src := sources[mode]
	hidden, err := fetchHidden(ctx, o, src)
	if err != nil {
		log.Warn().Err(err).Str("mode", string(mode)).Str("fallback", src.fallback).Msg("challenge data unavailable, using fallback")
		hidden = src.fallback
	}
	return src.challenge(hidden), hidden
}

func fetchHidden(ctx context.Context, o Oracle, src source) (string, error) {
	if o == nil {
		return "", errors.New("no oracle configured")
	}
	page, err := o.FetchAgreedWebpage(ctx, src.url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", src.url, err)
	}
	hidden, err := src.extract(ctx, o, page)
	if err != nil {
		return "", fmt.Errorf("extract from %s: %w", src.url, err)
	}
	return hidden, nil
}

func decodeNumberJSON(page string, v any) error {
	dec := json.NewDecoder(strings.NewReader(page))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeNumber(n json.Number) (string, error) {
	if n == "" {
		return "", errors.New("value missing")
	}
	d, ok := parseNumber(n.String())
	if !ok {
		return "", fmt.Errorf("value %q is not a finite number", n)
	}
	return d.String(), nil
}

// clipPage cuts page to at most maxPromptPage bytes without splitting a rune.
func clipPage(page string) string {
	if len(page) <= maxPromptPage {
		return page
	}
	end := maxPromptPage
	for end > 0 && !utf8.RuneStart(page[end]) {
		end--
	}
	return page[:end]
}

func extractLine(ctx context.Context, o Oracle, instruction, criteria, page string) (string, error) {
	out, err := o.FetchAgreedPromptResult(ctx, instruction+"\n\n"+clipPage(page), criteria)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.Trim(line, "\"'` ")
	if line == "" {
		return "", errors.New("empty extraction")
	}
	return line, nil
}
