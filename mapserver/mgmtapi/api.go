// Copyright 2025 The lispmap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mgmtapi implements the management API of the map server.
//
// All endpoints live under /api/v1. Eids and xTR-IDs are passed in their
// text form as query parameters, because prefixes contain slashes.
package mgmtapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/lispmap/lispmap/mapserver/mapservice"
	"github.com/lispmap/lispmap/mapserver/mapsys"
	"github.com/lispmap/lispmap/pkg/eid"
	"github.com/lispmap/lispmap/pkg/log"
	"github.com/lispmap/lispmap/pkg/mapping"
	api "github.com/lispmap/lispmap/private/mgmtapi"
)

// Server implements the management API.
type Server struct {
	Service *mapservice.Service
	// Events streams change events. Optional.
	Events *EventHub
	// LogLevel serves the log level. Optional.
	LogLevel http.Handler
}

// Handler returns the router of the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
	}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/mappings", s.GetMappings)
		r.Post("/mappings", s.AddMapping)
		r.Delete("/mappings", s.RemoveMapping)
		r.Get("/mappings/table", s.GetMappingTable)
		r.Get("/lookup", s.Lookup)
		r.Post("/refresh", s.Refresh)
		r.Get("/subscribers", s.GetSubscribers)
		r.Get("/keys", s.GetKeyTable)
		r.Put("/keys", s.AddKey)
		r.Delete("/keys", s.RemoveKey)
		r.Get("/gaps", s.GetGaps)
		r.Get("/settings", s.GetSettings)
		r.Put("/settings", s.SetSettings)
		r.Post("/caches/clean", s.CleanCaches)
		if s.Events != nil {
			r.Get("/events", s.Events.ServeHTTP)
		}
		if s.LogLevel != nil {
			r.Get("/log/level", s.LogLevel.ServeHTTP)
			r.Put("/log/level", s.LogLevel.ServeHTTP)
		}
	})
	return r
}

// GetMappings lists the mappings of one or both caches.
func (s *Server) GetMappings(w http.ResponseWriter, r *http.Request) {
	origins := []mapping.Origin{mapping.Policy, mapping.Registration}
	if q := r.URL.Query().Get("origin"); q != "" {
		o, err := mapping.ParseOrigin(q)
		if err != nil {
			badRequest(w, "malformed origin", err)
			return
		}
		origins = []mapping.Origin{o}
	}
	core := s.Service.Core()
	out := []Mapping{}
	for _, o := range origins {
		for _, e := range core.Entries(o) {
			out = append(out, newMapping(e.Origin, e.Key, e.Data))
		}
	}
	writeJSON(w, out)
}

// GetMappingTable prints the mappings as a table.
func (s *Server) GetMappingTable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	s.Service.Core().PrintMappings(w)
}

// AddMapping stores the mapping in the request body.
func (s *Server) AddMapping(w http.ResponseWriter, r *http.Request) {
	var m Mapping
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		badRequest(w, "malformed mapping", err)
		return
	}
	origin, key, data, err := m.parse()
	if err != nil {
		badRequest(w, "invalid mapping", err)
		return
	}
	if err := s.Service.AddMapping(r.Context(), origin, key, data); err != nil {
		if errors.Is(err, mapsys.ErrNoXtrID) || errors.Is(err, mapsys.ErrInvalidMapping) {
			badRequest(w, "mapping rejected", err)
			return
		}
		internalError(w, "storing mapping", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMapping removes the mapping of the eid parameter.
func (s *Server) RemoveMapping(w http.ResponseWriter, r *http.Request) {
	key, ok := eidParam(w, r, "eid")
	if !ok {
		return
	}
	origin, err := mapping.ParseOrigin(r.URL.Query().Get("origin"))
	if err != nil {
		badRequest(w, "malformed origin", err)
		return
	}
	if err := s.Service.RemoveMapping(r.Context(), origin, key); err != nil {
		internalError(w, "removing mapping", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lookup answers a lookup for dst. With resolve=true a miss installs a
// negative mapping. With xtr_id the record of that xTR is returned.
func (s *Server) Lookup(w http.ResponseWriter, r *http.Request) {
	dst, ok := eidParam(w, r, "dst")
	if !ok {
		return
	}
	var src eid.Eid
	if r.URL.Query().Get("src") != "" {
		if src, ok = eidParam(w, r, "src"); !ok {
			return
		}
	}
	core := s.Service.Core()
	var data *mapping.Data
	switch q := r.URL.Query(); {
	case q.Get("xtr_id") != "":
		id, err := mapping.ParseXtrID(q.Get("xtr_id"))
		if err != nil {
			badRequest(w, "malformed xtr_id", err)
			return
		}
		data = core.GetXtrMapping(r.Context(), src, dst, id)
	case q.Get("resolve") != "":
		resolve, err := strconv.ParseBool(q.Get("resolve"))
		if err != nil {
			badRequest(w, "malformed resolve flag", err)
			return
		}
		if resolve {
			data = core.Resolve(r.Context(), src, dst)
		} else {
			data = core.GetMapping(r.Context(), src, dst)
		}
	default:
		data = core.GetMapping(r.Context(), src, dst)
	}
	if data == nil || data.Record == nil {
		api.ErrorResponse(w, api.Problem{
			Status: http.StatusNotFound,
			Title:  "no mapping",
			Type:   api.StringRef(api.NotFound),
		})
		return
	}
	writeJSON(w, newMapping(mapping.Registration, data.Record.Eid, data))
}

// Refresh refreshes the registration in the request body.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req Refresh
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed refresh", err)
		return
	}
	key, err := eid.Parse(req.Eid)
	if err != nil {
		badRequest(w, "malformed eid", err)
		return
	}
	var id mapping.XtrID
	if req.XtrID != "" {
		if id, err = mapping.ParseXtrID(req.XtrID); err != nil {
			badRequest(w, "malformed xtr_id", err)
			return
		}
	}
	found, err := s.Service.RefreshMappingRegistration(r.Context(), key, id,
		s.Service.Core().Now())
	if err != nil {
		internalError(w, "refreshing registration", err)
		return
	}
	if !found {
		api.ErrorResponse(w, api.Problem{
			Status: http.StatusNotFound,
			Title:  "no registration",
			Type:   api.StringRef(api.NotFound),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSubscribers lists the live subscribers of the eid parameter.
func (s *Server) GetSubscribers(w http.ResponseWriter, r *http.Request) {
	key, ok := eidParam(w, r, "eid")
	if !ok {
		return
	}
	out := []Subscriber{}
	for _, sub := range s.Service.Core().Subscribers(eid.Normalize(key)) {
		out = append(out, newSubscriber(sub))
	}
	writeJSON(w, out)
}

// GetKeyTable prints the authentication keys as a table. Secrets are not
// shown.
func (s *Server) GetKeyTable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	s.Service.Core().PrintKeys(w)
}

// AddKey stores the key in the request body.
func (s *Server) AddKey(w http.ResponseWriter, r *http.Request) {
	var req AuthKey
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed key", err)
		return
	}
	key, err := eid.Parse(req.Eid)
	if err != nil {
		badRequest(w, "malformed eid", err)
		return
	}
	kt, err := mapping.ParseKeyType(req.Type)
	if err != nil {
		badRequest(w, "malformed key type", err)
		return
	}
	err = s.Service.AddAuthenticationKey(r.Context(), key, mapping.AuthKey{Type: kt, Key: req.Key})
	if err != nil {
		internalError(w, "storing key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveKey removes the key of the eid parameter.
func (s *Server) RemoveKey(w http.ResponseWriter, r *http.Request) {
	key, ok := eidParam(w, r, "eid")
	if !ok {
		return
	}
	if err := s.Service.RemoveAuthenticationKey(r.Context(), key); err != nil {
		internalError(w, "removing key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGaps lists the address space without a positive mapping.
func (s *Server) GetGaps(w http.ResponseWriter, r *http.Request) {
	var vni uint64
	if q := r.URL.Query().Get("vni"); q != "" {
		var err error
		if vni, err = strconv.ParseUint(q, 10, 32); err != nil {
			badRequest(w, "malformed vni", err)
			return
		}
	}
	gaps, err := s.Service.Core().Gaps(uint32(vni))
	if err != nil {
		internalError(w, "computing gaps", err)
		return
	}
	out := make([]string, 0, len(gaps))
	for _, p := range gaps {
		out = append(out, p.String())
	}
	writeJSON(w, out)
}

// GetSettings reports the runtime toggles.
func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	core := s.Service.Core()
	policy := core.LookupPolicy().String()
	merge := core.MappingMerge()
	writeJSON(w, Settings{LookupPolicy: &policy, MappingMerge: &merge})
}

// SetSettings changes the toggles present in the request body.
func (s *Server) SetSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "malformed settings", err)
		return
	}
	core := s.Service.Core()
	if req.LookupPolicy != nil {
		p, err := mapsys.ParseLookupPolicy(*req.LookupPolicy)
		if err != nil {
			badRequest(w, "malformed lookup policy", err)
			return
		}
		core.SetLookupPolicy(p)
	}
	if req.MappingMerge != nil {
		core.SetMappingMerge(*req.MappingMerge)
	}
	log.FromCtx(r.Context()).Info("Changed mapping system settings",
		"lookup_policy", core.LookupPolicy(), "mapping_merge", core.MappingMerge())
	s.GetSettings(w, r)
}

// CleanCaches empties the in-memory caches. The store is left untouched, so
// a restart restores the stored state.
func (s *Server) CleanCaches(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Core().CleanCaches(); err != nil {
		internalError(w, "cleaning caches", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func eidParam(w http.ResponseWriter, r *http.Request, name string) (eid.Eid, bool) {
	q := r.URL.Query().Get(name)
	if q == "" {
		api.ErrorResponse(w, api.Problem{
			Status: http.StatusBadRequest,
			Title:  "missing parameter " + name,
			Type:   api.StringRef(api.BadRequest),
		})
		return eid.Eid{}, false
	}
	e, err := eid.Parse(q)
	if err != nil {
		badRequest(w, "malformed "+name, err)
		return eid.Eid{}, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		internalError(w, "unable to marshal response", err)
	}
}

func badRequest(w http.ResponseWriter, title string, err error) {
	api.ErrorResponse(w, api.Problem{
		Detail: api.StringRef(err.Error()),
		Status: http.StatusBadRequest,
		Title:  title,
		Type:   api.StringRef(api.BadRequest),
	})
}

func internalError(w http.ResponseWriter, title string, err error) {
	api.ErrorResponse(w, api.Problem{
		Detail: api.StringRef(err.Error()),
		Status: http.StatusInternalServerError,
		Title:  title,
		Type:   api.StringRef(api.InternalError),
	})
}
