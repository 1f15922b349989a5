package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/example/slotsync/internal/domain"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/timegrid"
	"github.com/example/slotsync/internal/transport"
)

// LoadWindow fetches the three entity kinds for a date window and replaces
// the corresponding cache entries. The cache is rebuilt from the server on
// every view mount; nothing is persisted locally.
func (p *Pipeline) LoadWindow(ctx context.Context, employeeID string, window timegrid.Window) error {
	key := store.KeyFor(employeeID, window)

	p.store.Slots.SetStatus(key, store.StatusLoading)
	p.store.Sessions.SetStatus(key, store.StatusLoading)
	p.store.RecurringDates.SetStatus(key, store.StatusLoading)

	query := url.Values{}
	query.Set("employeeId", employeeID)
	query.Set("start", key.Start)
	query.Set("end", key.End)
	encoded := "?" + query.Encode()

	var slots []domain.Slot
	if err := p.fetch(ctx, "/api/slots"+encoded, &slots); err != nil {
		p.markFailed(key)
		return err
	}
	var sessions []domain.Session
	if err := p.fetch(ctx, "/api/sessions"+encoded, &sessions); err != nil {
		p.markFailed(key)
		return err
	}
	var days []domain.RecurringDate
	if err := p.fetch(ctx, "/api/days/recurring"+encoded, &days); err != nil {
		p.markFailed(key)
		return err
	}

	p.store.Slots.Replace(key, slots)
	p.store.Sessions.Replace(key, sessions)
	p.store.RecurringDates.Replace(key, days)
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, path string, out any) error {
	resp, err := p.caller.Call(ctx, transport.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return &ResponseShapeError{Command: "load_window", Reason: "undecodable list payload", Err: err}
	}
	return nil
}

func (p *Pipeline) markFailed(key store.Key) {
	p.store.Slots.SetStatus(key, store.StatusFailed)
	p.store.Sessions.SetStatus(key, store.StatusFailed)
	p.store.RecurringDates.SetStatus(key, store.StatusFailed)
}
