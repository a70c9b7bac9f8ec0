// mock-backend stands in for the analysis and search services during local
// development. It also tails the anomaly subject when a NATS URL is given.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/events"
)

type clip struct {
	Video             string `json:"video"`
	AbsoluteStartTime string `json:"absolute_start_time"`
	AbsoluteEndTime   string `json:"absolute_end_time"`
	Document          string `json:"document"`
	ClipPath          string `json:"clip_path"`
}

var library = []clip{
	{"gate_cam_0412.mp4", "2024-04-12T08:14:02Z", "2024-04-12T08:14:31Z", "A person in a red jacket walks through the north gate", "/data/clips/gate_cam_0412_081402.mp4"},
	{"lobby_cam_0412.mp4", "2024-04-12T09:02:45Z", "2024-04-12T09:03:10Z", "Two people talk near the reception desk", "/data/clips/lobby_cam_0412_090245.mp4"},
	{"parking_cam_0411.mp4", "2024-04-11T22:40:00Z", "2024-04-11T22:41:12Z", "A white van parks in an unlit corner after hours", "/data/clips/parking_cam_0411_224000.mp4"},
	{"dock_cam_0411.mp4", "2024-04-11T23:55:18Z", "2024-04-11T23:56:02Z", "Someone climbs the loading dock fence", "/data/clips/dock_cam_0411_235518.mp4"},
}

var anomalyWords = []string{"intruder", "fence", "weapon", "fight"}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	mediaDir := flag.String("media", "", "directory clips are served from (placeholder bytes when empty)")
	natsURL := flag.String("nats", "", "NATS URL to tail anomaly events from")
	subject := flag.String("subject", events.DefaultSubject, "anomaly subject")
	delay := flag.Duration("delay", 2*time.Second, "simulated analysis time")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("ts-console-mock"))
		if err != nil {
			log.Fatal("nats connect failed", zap.Error(err))
		}
		defer nc.Drain()
		_, err = nc.Subscribe(*subject, func(m *nats.Msg) {
			var e events.AnomalyEvent
			if err := json.Unmarshal(m.Data, &e); err != nil {
				log.Warn("undecodable anomaly event", zap.Error(err))
				return
			}
			log.Info("anomaly event",
				zap.String("console_id", e.ConsoleID),
				zap.String("file", e.FileName),
				zap.String("message", e.Message))
		})
		if err != nil {
			log.Fatal("subscribe failed", zap.String("subject", *subject), zap.Error(err))
		}
		log.Info("tailing anomaly events", zap.String("subject", *subject))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Post("/process-video", processVideo(log, *delay))
	r.Get("/search", searchClips)
	// Playback URLs are the media base plus the clip file name.
	r.Get("/{name}", serveMedia(*mediaDir))

	log.Info("mock backend listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func processVideo(log *zap.Logger, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("video")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "video field required"})
			return
		}
		n, _ := io.Copy(io.Discard, file)
		file.Close()
		log.Info("analyzing upload", zap.String("file", hdr.Filename), zap.Int64("bytes", n))

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		name := strings.ToLower(hdr.Filename)
		resp := map[string]any{
			"scene_description": "A static view of " + hdr.Filename + " with normal foot traffic.",
		}
		for _, word := range anomalyWords {
			if strings.Contains(name, word) {
				resp["message"] = "Possible " + word + " activity detected"
				resp["scene_description"] = "Unusual movement involving " + word + " in " + hdr.Filename + "."
				break
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func searchClips(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	results := make([]clip, 0, len(library))
	for _, c := range library {
		haystack := strings.ToLower(c.Video + " " + c.Document + " " + c.AbsoluteStartTime)
		for _, term := range strings.Fields(q) {
			if strings.Contains(haystack, term) {
				results = append(results, c)
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func serveMedia(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(chi.URLParam(r, "name"))
		if dir != "" {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				http.ServeFile(w, r, path)
				return
			}
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mock clip " + name))
	}
}
