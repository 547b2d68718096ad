package tgstore

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Store posts artifacts to a telegram chat as documents.
type Store struct {
	bot   *tgbot.BotAPI
	chat  int64
	debug bool
}

func New(token string, chat int64, proxy string, debug bool) (*Store, error) {
	client := &http.Client{
		Timeout: 60 * time.Second,
	}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("tgstore: invalid proxy %s: %w", proxy, err)
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	bot, err := tgbot.NewBotAPIWithClient(token, client)
	if err != nil {
		return nil, fmt.Errorf("tgstore: couldn't create bot: %w", err)
	}

	// Check that chatID is valid
	if _, err := bot.GetChat(tgbot.ChatConfig{ChatID: chat}); err != nil {
		return nil, fmt.Errorf("tgstore: invalid chat id: %w", err)
	}
	return &Store{
		bot:   bot,
		chat:  chat,
		debug: debug,
	}, nil
}

var backoff = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	1 * time.Minute,
}

func (s *Store) Upload(ctx context.Context, name string, data []byte) error {
	doc := tgbot.NewDocumentUpload(s.chat, tgbot.FileBytes{
		Name:  path.Base(name),
		Bytes: data,
	})
	doc.Caption = name

	maxAttempts := 3
	attempts := 0
	for {
		msg, err := s.bot.Send(doc)
		if err == nil {
			if s.debug {
				log.Printf("tgstore: sent %s as message %d\n", name, msg.MessageID)
			}
			return nil
		}

		// Increase attempts and check if we should stop
		attempts++
		if attempts >= maxAttempts {
			return fmt.Errorf("tgstore: couldn't send file: %w", err)
		}
		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		wait := backoff[idx]
		t := time.NewTimer(wait)
		if s.debug {
			log.Printf("%v (retrying in %s)\n", err, wait)
		}
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("tgstore: send file cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}
