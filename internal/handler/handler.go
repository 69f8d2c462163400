// Package handler implements the JSON API handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/nonna/internal/metrics"
	"github.com/dukerupert/nonna/internal/model"
	"github.com/dukerupert/nonna/internal/respond"
	"github.com/dukerupert/nonna/internal/websocket"
)

const maxBodyBytes = 1 << 20

// base carries what every handler needs: a logger for 500s and the hub for
// change notifications.
type base struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

func (b base) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Err(w, r, b.logger, err)
}

// changed broadcasts a write to clients watching vaultID and counts it.
func (b base) changed(vaultID, entity, action, id string) {
	metrics.RecordWrite(entity, action)
	if b.hub != nil && vaultID != "" {
		b.hub.Broadcast(websocket.NewMessage(vaultID, entity, action, id))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	respond.WriteJSON(w, status, v)
}

// decode reads a JSON body into v, then validates it. Fields absent from the
// body keep whatever v already held.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		var big *http.MaxBytesError
		switch {
		case errors.As(err, &typ):
			return model.Invalid(typ.Field, "wrong type")
		case errors.As(err, &big):
			return &model.ValidationError{Message: "request body too large"}
		case errors.As(err, &syn):
			return &model.ValidationError{Message: "invalid JSON"}
		default:
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				return verr
			}
			return &model.ValidationError{Message: "invalid JSON"}
		}
	}
	return validate(v)
}

func pathInt(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		// a malformed id can never name a row
		return 0, model.ErrNotFound
	}
	return id, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.ToLower(r.URL.Query().Get(name))
	switch raw {
	case "":
		return nil, nil
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	}
	return nil, model.Invalid(name, "must be true or false")
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.Invalid(name, "must be an integer")
	}
	return n, nil
}

// list makes nil slices encode as [].
func list[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
