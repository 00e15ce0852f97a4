package daemon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rattab/slick/pkg/slick/gossip"
)

// registerRoutes sets up the daemon's read-only introspection routes.
// There are no mutation endpoints: Publish/Discover/Retract/Forget/Lost
// are in-process Go calls against slick.Discovery only.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/nodes", s.handleNodes)
	mux.HandleFunc("GET /v1/keys", s.handleKeys)
	mux.HandleFunc("GET /v1/watches", s.handleWatches)
}

// --- Format helpers ---

// wantsText returns true if the client prefers plain text output.
func wantsText(r *http.Request) bool {
	if r.URL.Query().Get("format") == "text" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/plain")
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// respondText writes a plain text response.
func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}

// snapshotRequestTimeout bounds how long a request waits for the poll
// goroutine to assemble a snapshot. The poll goroutine services one
// tick/message/defer at a time, so under normal load this resolves in
// well under a millisecond; this guards against a wedged engine
// leaving HTTP handlers blocked forever.
const snapshotRequestTimeout = 5 * time.Second

func (s *Server) snapshot(r *http.Request) (gossip.Snapshot, error) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotRequestTimeout)
	defer cancel()
	return s.runtime.Snapshot(ctx)
}

// --- Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	addrs := make([]string, 0, len(snap.SelfLoc))
	for _, a := range snap.SelfLoc {
		addrs = append(addrs, a.String())
	}
	resp := StatusResponse{
		NodeID:        snap.Self.String(),
		Version:       s.version,
		UptimeSeconds: int(time.Since(snap.StartedAt).Seconds()),
		Addresses:     addrs,
		Connections:   snap.ConnectionCount,
		Edges:         snap.EdgeCount,
	}

	if wantsText(r) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "node_id: %s\n", resp.NodeID)
		fmt.Fprintf(&sb, "version: %s\n", resp.Version)
		fmt.Fprintf(&sb, "uptime: %ds\n", resp.UptimeSeconds)
		fmt.Fprintf(&sb, "connections: %d\n", resp.Connections)
		fmt.Fprintf(&sb, "edges: %d\n", resp.Edges)
		fmt.Fprintf(&sb, "addresses: %d\n", len(resp.Addresses))
		for _, a := range resp.Addresses {
			fmt.Fprintf(&sb, "  %s\n", a)
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	entries := make([]NodeEntry, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		addrs := make([]string, 0, len(n.Addrs))
		for _, a := range n.Addrs {
			addrs = append(addrs, a.String())
		}
		entries = append(entries, NodeEntry{
			NodeID:          n.ID.String(),
			Addresses:       addrs,
			TTLMs:           n.TTLMs,
			Edge:            n.Edge,
			Self:            n.SelfNode,
			ConnectionCount: n.ConnectionCount,
			AvgSessionMs:    n.AvgSessionMs,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })

	if wantsText(r) {
		var sb strings.Builder
		for _, n := range entries {
			flag := ""
			if n.Self {
				flag = " (self)"
			} else if n.Edge {
				flag = " (edge)"
			}
			fmt.Fprintf(&sb, "%s\tttl=%dms\tconns=%d\tavg_session=%.0fms%s\n",
				n.NodeID, n.TTLMs, n.ConnectionCount, n.AvgSessionMs, flag)
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	entries := make([]KeyEntry, 0, len(snap.Keys))
	for _, k := range snap.Keys {
		entries = append(entries, KeyEntry{
			Key:   k.Key,
			KeyID: hex.EncodeToString(k.KeyID[:]),
			TTLMs: k.TTLMs,
			Local: k.Local,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key != entries[j].Key {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].KeyID < entries[j].KeyID
	})

	if wantsText(r) {
		var sb strings.Builder
		for _, k := range entries {
			local := ""
			if k.Local {
				local = " (local)"
			}
			fmt.Fprintf(&sb, "%s\t%s\tttl=%dms%s\n", k.Key, k.KeyID, k.TTLMs, local)
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWatches(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	entries := make([]WatchEntry, 0, len(snap.Watches))
	for _, w := range snap.Watches {
		entries = append(entries, WatchEntry{Key: w.Key, Count: w.Count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	if wantsText(r) {
		var sb strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&sb, "%s\t%d\n", e.Key, e.Count)
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
