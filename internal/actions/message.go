package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
	"tabletop/internal/template"
)

// KindMessage posts a text message to a chat channel through the Telegram
// bot API.
//
// Event data: message (may contain placeholders).
// Configuration: telegramAuthToken, telegramChatId, telegramApiUrl
// (optional).
const KindMessage = "message"

const defaultTelegramAPI = "https://api.telegram.org"

type messageAction struct {
	caller
	event scenario.Event
	cfg   scenario.Configuration
}

func validateMessage(data map[string]any) error {
	msg, err := text(data, "message")
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: empty message", scenario.ErrInvalidEvent)
	}
	return nil
}

func (a *messageAction) Execute(ctx context.Context) core.ExecutionReport {
	start := time.Now()
	status, err := a.execute(ctx)
	return finish(KindMessage, start, status, nil, err)
}

func (a *messageAction) execute(ctx context.Context) (int, error) {
	token, err := a.cfg.Property("telegramAuthToken")
	if err != nil {
		return 0, err
	}
	chat, err := a.cfg.Property("telegramChatId")
	if err != nil {
		return 0, err
	}
	api, err := a.cfg.Property("telegramApiUrl")
	if err != nil {
		api = defaultTelegramAPI
	}

	raw, err := text(a.event.Data, "message")
	if err != nil {
		return 0, err
	}
	msg, err := template.Substitute(raw, variables(a.event, a.cfg))
	if err != nil {
		return 0, err
	}

	body, err := mustJSON(map[string]any{"chat_id": chat, "text": msg})
	if err != nil {
		return 0, err
	}
	resp, err := a.do(ctx, request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(api, "/"), token),
		body:   body,
		check:  checkTelegramOK,
	})
	if err != nil && resp.status >= 300 {
		if desc, ok := template.Lookup(resp.body, "$.description"); ok {
			err = fmt.Errorf("%w: %s", err, desc.String())
		}
	}
	return resp.status, err
}

func checkTelegramOK(body []byte) error {
	ok, found := template.Lookup(body, "$.ok")
	if !found || !ok.Bool() {
		if desc, found := template.Lookup(body, "$.description"); found {
			return errors.New("telegram: " + desc.String())
		}
		return errors.New("telegram: request not acknowledged")
	}
	return nil
}
