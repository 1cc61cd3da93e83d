package bot

import (
	"net/http"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Pool rotates chunk traffic across several bot accounts so one account's
// rate limit does not throttle a whole batch.
type Pool struct {
	bots    []*tgbotapi.BotAPI
	current uint64
}

func NewPool(tokens []string) (*Pool, error) {
	// Shared client with a long timeout: chunk uploads over slow links can
	// take minutes.
	client := &http.Client{
		Timeout: 10 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var bots []*tgbotapi.BotAPI
	for _, t := range tokens {
		if t == "" {
			continue
		}
		b, err := tgbotapi.NewBotAPIWithClient(t, tgbotapi.APIEndpoint, client)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return &Pool{bots: bots}, nil
}

func (p *Pool) Next() *tgbotapi.BotAPI {
	if len(p.bots) == 0 {
		return nil
	}
	idx := atomic.AddUint64(&p.current, 1)
	return p.bots[(idx-1)%uint64(len(p.bots))]
}

func (p *Pool) ByUsername(username string) *tgbotapi.BotAPI {
	for _, b := range p.bots {
		if b.Self.UserName == username {
			return b
		}
	}
	return nil
}

func (p *Pool) Size() int {
	return len(p.bots)
}
