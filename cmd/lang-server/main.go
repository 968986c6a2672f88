// Package main serves the interactive prediction demo: a form for pasting a
// project description and JSON endpoints over the trained models.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ilnaes/github-analysis/internal/config"
	"github.com/ilnaes/github-analysis/pkg/modelstore"
	"github.com/ilnaes/github-analysis/pkg/transformer"
)

// predictor is the surface shared by every loadable model family.
type predictor interface {
	PredictText(text string) (int, []float64, error)
}

type server struct {
	model  predictor
	labels []string
	family string
}

type prediction struct {
	Description   string             `json:"description"`
	Language      string             `json:"language"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Model         string             `json:"model"`
}

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx := context.Background()

	model, labels, family, err := loadModel(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}
	log.Info().Str("model", family).Strs("labels", labels).Msg("model loaded")

	s := &server{model: model, labels: labels, family: family}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/", s.handleIndex)
	e.POST("/predict", s.handlePredictForm)
	e.GET("/api/predict", s.handlePredictAPI)
	e.GET("/healthz", s.handleHealth)

	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Msg("demo server listening")
		if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

// loadModel resolves SERVER_MODEL to a fitted predictor from the artifact
// store, or from the transformer weight directory for the transformer.
func loadModel(ctx context.Context, cfg *config.Config) (predictor, []string, string, error) {
	family := strings.ToLower(strings.TrimSpace(cfg.ServerModel))
	if family == "transformer" {
		m, err := transformer.LoadDir(cfg.TransformerDir)
		if err != nil {
			return nil, nil, "", fmt.Errorf("load transformer from %s: %w", cfg.TransformerDir, err)
		}
		return m, m.Cfg.Labels, family, nil
	}

	store, err := modelstore.NewLocalStore(cfg.ArtifactsDir)
	if err != nil {
		return nil, nil, "", fmt.Errorf("open artifact store: %w", err)
	}
	defer store.Close()

	saved, found, err := modelstore.LoadModel(ctx, store, family)
	if err != nil {
		return nil, nil, "", err
	}
	if !found {
		return nil, nil, "", fmt.Errorf("no saved %q model in %s, run the trainer first", family, cfg.ArtifactsDir)
	}
	if saved.Stacking != nil {
		return saved.Stacking, saved.Labels, family, nil
	}
	return saved.Pipeline, saved.Labels, family, nil
}

func (s *server) predict(text string) (*prediction, error) {
	id, probs, err := s.model.PredictText(text)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string]float64, len(probs))
	for i, p := range probs {
		if i < len(s.labels) {
			byLabel[s.labels[i]] = p
		}
	}
	language := ""
	if id >= 0 && id < len(s.labels) {
		language = s.labels[id]
	}
	confidence := 0.0
	if id >= 0 && id < len(probs) {
		confidence = probs[id]
	}
	return &prediction{
		Description:   text,
		Language:      language,
		Confidence:    confidence,
		Probabilities: byLabel,
		Model:         s.family,
	}, nil
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *server) handleIndex(c echo.Context) error {
	return s.renderPage(c, "", nil)
}

func (s *server) handlePredictForm(c echo.Context) error {
	text := strings.TrimSpace(c.FormValue("description"))
	if text == "" {
		return s.renderPage(c, "", nil)
	}
	pred, err := s.predict(text)
	if err != nil {
		log.Error().Err(err).Msg("prediction failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "prediction failed")
	}
	return s.renderPage(c, text, pred)
}

func (s *server) handlePredictAPI(c echo.Context) error {
	text := strings.TrimSpace(c.QueryParam("text"))
	if text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "query parameter text is required",
		})
	}
	pred, err := s.predict(text)
	if err != nil {
		log.Error().Err(err).Msg("prediction failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "prediction failed",
		})
	}
	return c.JSON(http.StatusOK, pred)
}

func (s *server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"model":  s.family,
	})
}

// =============================================================================
// PAGE RENDERING
// =============================================================================

type probRow struct {
	Label   string
	Percent float64
}

type pageData struct {
	Model         string
	Description   string
	Result        *prediction
	ConfidencePct float64
	Rows          []probRow
}

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Language Predictor</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; }
textarea { width: 100%; font-size: 1em; }
table { border-collapse: collapse; margin-top: 1em; }
td, th { border: 1px solid #ccc; padding: 4px 12px; text-align: left; }
.verdict { font-size: 1.2em; margin-top: 1em; }
</style>
</head>
<body>
<h1>Language Predictor</h1>
<p>Paste a project description and the <b>{{.Model}}</b> model will guess its programming language.</p>
<form method="POST" action="/predict">
<textarea name="description" rows="4" placeholder="e.g. a lightweight web framework with async support">{{.Description}}</textarea>
<p><button type="submit">Predict</button></p>
</form>
{{if .Result}}
<div class="verdict">Predicted language: <b>{{.Result.Language}}</b> ({{printf "%.1f%%" .ConfidencePct}} confidence)</div>
<table>
<tr><th>Language</th><th>Probability</th></tr>
{{range .Rows}}<tr><td>{{.Label}}</td><td>{{printf "%.1f%%" .Percent}}</td></tr>
{{end}}</table>
{{end}}
</body>
</html>
`))

func (s *server) renderPage(c echo.Context, text string, pred *prediction) error {
	data := pageData{Model: s.family, Description: text, Result: pred}
	if pred != nil {
		data.ConfidencePct = pred.Confidence * 100
		for label, p := range pred.Probabilities {
			data.Rows = append(data.Rows, probRow{Label: label, Percent: p * 100})
		}
		sort.Slice(data.Rows, func(i, j int) bool {
			if data.Rows[i].Percent != data.Rows[j].Percent {
				return data.Rows[i].Percent > data.Rows[j].Percent
			}
			return data.Rows[i].Label < data.Rows[j].Label
		})
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}
	return c.HTML(http.StatusOK, buf.String())
}
